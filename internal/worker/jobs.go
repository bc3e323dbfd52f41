package worker

import (
	"fmt"
	"time"
)

// Deterministic job ids. Both publish paths (minute drain and store
// fallback) derive the same id for a post, so double-enqueue dedups.
func PublishJobID(postID int64) string {
	return fmt.Sprintf("publish-post-%d", postID)
}

func ExternalPublishJobID(postID int64) string {
	return fmt.Sprintf("wp-publish-%d", postID)
}

func GenerationJobID(ownerID int64, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("generate-%d-%s-%02d:%02d",
		ownerID, at.Format("2006-01-02"), at.Hour(), at.Minute())
}

// GenerationPayload asks for content to be generated for an owner's slot.
type GenerationPayload struct {
	OwnerID   int64     `json:"owner_id"`
	PublishAt time.Time `json:"publish_at"`
}

// PublishPayload identifies the post a publish job acts on.
type PublishPayload struct {
	PostID int64 `json:"post_id"`
}
