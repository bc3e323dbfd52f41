package domain

import "time"

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusScheduled PostStatus = "scheduled"
	StatusPublished PostStatus = "published"
	StatusFailed    PostStatus = "failed"
)

// Post is a unit of content owned by the authoritative store. The pipeline
// only reads posts and transitions their status; ScheduledFor is non-nil
// exactly when Status is scheduled.
type Post struct {
	ID                int64      `json:"id"`
	OwnerID           int64      `json:"owner_id"`
	Title             string     `json:"title"`
	Status            PostStatus `json:"status"`
	ScheduledFor      *time.Time `json:"scheduled_for,omitempty"`
	ExternalPublishID string     `json:"external_publish_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DueMinute reports the UTC minute the post is scheduled for, truncated to
// minute granularity. Second field is false for non-scheduled posts.
func (p *Post) DueMinute() (time.Time, bool) {
	if p.ScheduledFor == nil {
		return time.Time{}, false
	}
	return p.ScheduledFor.UTC().Truncate(time.Minute), true
}
