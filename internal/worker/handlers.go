// Package worker holds the queue consumers that turn jobs into side effects
// against the external collaborators, and record terminal post state.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"postflow/internal/collab"
	"postflow/internal/domain"
	"postflow/internal/queue"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// CollaboratorError marks a failure returned by an external collaborator;
// the queue retries it per its backoff policy.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Store is the slice of the authoritative store workers need.
type Store interface {
	GetPostByID(ctx context.Context, id int64) (*domain.Post, error)
	InsertPost(ctx context.Context, p *domain.Post) error
	FindPostByOwnerAndTime(ctx context.Context, ownerID int64, at time.Time) (*domain.Post, error)
	UpdatePostStatus(ctx context.Context, id int64, status domain.PostStatus, externalID string) error
}

// Enqueuer matches queue.Queue's enqueue surface.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload any, opts queue.Options) (bool, error)
}

// Events is the bus emit contract.
type Events interface {
	Publish(ctx context.Context, ev domain.Event)
}

type Workers struct {
	store    Store
	external Enqueuer
	bus      Events
	gen      collab.ContentGenerator
	pub      collab.BlogPublisher
	notify   collab.Notifier

	// publishSpread randomizes external-publish start times so a burst of
	// simultaneously-due posts doesn't hammer the rate-limited platform.
	publishSpread time.Duration

	log zerolog.Logger
}

func New(
	store Store,
	external Enqueuer,
	bus Events,
	gen collab.ContentGenerator,
	pub collab.BlogPublisher,
	notify collab.Notifier,
	publishSpread time.Duration,
	log zerolog.Logger,
) *Workers {
	return &Workers{
		store:         store,
		external:      external,
		bus:           bus,
		gen:           gen,
		pub:           pub,
		notify:        notify,
		publishSpread: publishSpread,
		log:           log.With().Str("component", "worker").Logger(),
	}
}

// ProcessGeneration creates a scheduled post for one owner slot. Re-running
// the job is safe: a post already occupying the slot short-circuits.
func (w *Workers) ProcessGeneration(ctx context.Context, job queue.Job) error {
	var p GenerationPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("dropping malformed generation payload")
		return nil
	}

	existing, err := w.store.FindPostByOwnerAndTime(ctx, p.OwnerID, p.PublishAt)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if existing != nil {
		w.log.Info().Int64("owner_id", p.OwnerID).Time("publish_at", p.PublishAt).
			Msg("slot already has a post, skipping generation")
		return nil
	}

	generated, err := w.gen.Generate(ctx, p.OwnerID, collab.GenerateOptions{PublishAt: p.PublishAt})
	if err != nil {
		return &CollaboratorError{Op: "generate content", Err: err}
	}

	at := p.PublishAt.UTC()
	post := domain.Post{
		OwnerID:      p.OwnerID,
		Title:        generated.Title,
		Status:       domain.StatusScheduled,
		ScheduledFor: &at,
	}
	if err := w.store.InsertPost(ctx, &post); err != nil {
		return fmt.Errorf("insert generated post: %w", err)
	}

	w.bus.Publish(ctx, domain.Event{Kind: domain.EventScheduled, Post: post})
	w.log.Info().Int64("post_id", post.ID).Int64("owner_id", p.OwnerID).
		Time("publish_at", at).Msg("post generated and scheduled")
	return nil
}

// ProcessPublishing moves a due post from the publishing queue onto the
// external-publish queue. Re-checks status first: the store is shared and
// another instance may already have moved the post on.
func (w *Workers) ProcessPublishing(ctx context.Context, job queue.Job) error {
	var p PublishPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("dropping malformed publish payload")
		return nil
	}

	post, err := w.store.GetPostByID(ctx, p.PostID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.log.Warn().Int64("post_id", p.PostID).Msg("publish job for missing post, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if post.Status != domain.StatusScheduled {
		w.log.Info().Int64("post_id", post.ID).Str("status", string(post.Status)).
			Msg("post no longer scheduled, skipping")
		return nil
	}
	// A reschedule leaves the old minute-set entry behind, so a drained job
	// can reference a post whose time moved. Discard it; the minute and
	// fallback triggers re-enqueue when the new time arrives.
	if due, ok := post.DueMinute(); ok && due.After(time.Now().UTC()) {
		w.log.Info().Int64("post_id", post.ID).Time("scheduled_for", due).
			Msg("post rescheduled to a later time, discarding stale publish job")
		return queue.ErrObsolete
	}

	var opts queue.Options
	if w.publishSpread > 0 {
		opts.Delay = rand.N(w.publishSpread)
	}
	if _, err := w.external.Enqueue(ctx, ExternalPublishJobID(post.ID), PublishPayload{PostID: post.ID}, opts); err != nil {
		return fmt.Errorf("enqueue external publish: %w", err)
	}
	return nil
}

// ProcessExternalPublish pushes a post to the external platform and records
// the published transition.
func (w *Workers) ProcessExternalPublish(ctx context.Context, job queue.Job) error {
	var p PublishPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("dropping malformed external payload")
		return nil
	}

	post, err := w.store.GetPostByID(ctx, p.PostID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.log.Warn().Int64("post_id", p.PostID).Msg("external publish for missing post, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if post.Status == domain.StatusPublished {
		return nil
	}
	// Same reschedule race as the publishing queue, narrower window.
	if due, ok := post.DueMinute(); ok && due.After(time.Now().UTC()) {
		w.log.Info().Int64("post_id", post.ID).Time("scheduled_for", due).
			Msg("post rescheduled to a later time, discarding stale publish job")
		return queue.ErrObsolete
	}

	externalID, err := w.pub.Publish(ctx, post.OwnerID, post.ID, post.Title)
	if err != nil {
		return &CollaboratorError{Op: "external publish", Err: err}
	}

	if err := w.store.UpdatePostStatus(ctx, post.ID, domain.StatusPublished, externalID); err != nil {
		return fmt.Errorf("record published status: %w", err)
	}
	post.Status = domain.StatusPublished
	post.ExternalPublishID = externalID
	w.bus.Publish(ctx, domain.Event{Kind: domain.EventPublished, Post: *post})

	if err := w.notify.Notify(ctx, post.OwnerID, "post_published", map[string]any{
		"post_id":     post.ID,
		"title":       post.Title,
		"external_id": externalID,
	}); err != nil {
		w.log.Warn().Err(err).Int64("owner_id", post.OwnerID).Msg("publish notification failed")
	}

	w.log.Info().Int64("post_id", post.ID).Str("external_id", externalID).Msg("post published")
	return nil
}

// OnPublishExhausted runs when a publish job burns its last attempt: the
// post is moved to failed so the owner sees an explicit terminal state, and
// the owner is notified.
func (w *Workers) OnPublishExhausted(ctx context.Context, job queue.Job, cause error) {
	var p PublishPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return
	}
	post, err := w.store.GetPostByID(ctx, p.PostID)
	if err != nil || post.Status == domain.StatusPublished {
		return
	}
	if err := w.store.UpdatePostStatus(ctx, post.ID, domain.StatusFailed, ""); err != nil {
		w.log.Error().Err(err).Int64("post_id", post.ID).Msg("record failed status failed")
		return
	}
	if err := w.notify.Notify(ctx, post.OwnerID, "post_publish_failed", map[string]any{
		"post_id": post.ID,
		"title":   post.Title,
		"reason":  cause.Error(),
	}); err != nil {
		w.log.Warn().Err(err).Int64("owner_id", post.OwnerID).Msg("failure notification failed")
	}
	w.log.Error().Int64("post_id", post.ID).Msg("post publishing failed permanently")
}
