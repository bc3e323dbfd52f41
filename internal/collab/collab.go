// Package collab declares the narrow contracts of the external collaborators
// the pipeline drives. Real adapters (AI generation, WordPress, email) live
// outside this repository; the Noop* implementations keep a dev instance
// runnable end to end.
package collab

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GenerateOptions carries the slot a generated post must be scheduled into.
type GenerateOptions struct {
	PublishAt time.Time
}

// GeneratedPost is the content produced by the generation collaborator.
type GeneratedPost struct {
	Title string
}

// ContentGenerator produces content for an owner's publication slot.
type ContentGenerator interface {
	Generate(ctx context.Context, ownerID int64, opts GenerateOptions) (GeneratedPost, error)
}

// BlogPublisher pushes a finished post to the external platform and returns
// the platform-assigned id. Expected to be rate-limited and occasionally
// transiently unavailable; callers retry with backoff.
type BlogPublisher interface {
	Publish(ctx context.Context, ownerID int64, postID int64, title string) (externalID string, err error)
}

// Notifier delivers owner-facing notifications. Fire-and-forget: failures
// are logged by callers, never propagated.
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, kind string, data map[string]any) error
}

type NoopGenerator struct {
	Log zerolog.Logger
}

func (g NoopGenerator) Generate(_ context.Context, ownerID int64, opts GenerateOptions) (GeneratedPost, error) {
	g.Log.Info().Int64("owner_id", ownerID).Time("publish_at", opts.PublishAt).
		Msg("noop generator invoked")
	return GeneratedPost{Title: "Draft for " + opts.PublishAt.Format(time.RFC3339)}, nil
}

type NoopPublisher struct {
	Log zerolog.Logger
}

func (p NoopPublisher) Publish(_ context.Context, ownerID, postID int64, title string) (string, error) {
	p.Log.Info().Int64("owner_id", ownerID).Int64("post_id", postID).Str("title", title).
		Msg("noop publisher invoked")
	return "noop-" + time.Now().UTC().Format("20060102150405"), nil
}

type NoopNotifier struct {
	Log zerolog.Logger
}

func (n NoopNotifier) Notify(_ context.Context, ownerID int64, kind string, _ map[string]any) error {
	n.Log.Info().Int64("owner_id", ownerID).Str("kind", kind).Msg("noop notification")
	return nil
}
