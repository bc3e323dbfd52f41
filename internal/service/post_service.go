// Package service glues external-facing post mutations to persistence and
// event emission. The HTTP layer calls in here; the event bus carries the
// mutation out to the cache listener.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postflow/internal/domain"
	"postflow/internal/eventbus"
	"postflow/internal/repo"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostService struct {
	db  *pgxpool.Pool
	bus *eventbus.Bus
}

func NewPostService(db *pgxpool.Pool, bus *eventbus.Bus) *PostService {
	return &PostService{db: db, bus: bus}
}

// SchedulePost creates a post scheduled for a future minute. The timestamp
// is truncated to minute granularity, the pipeline's scheduling precision.
func (s *PostService) SchedulePost(ctx context.Context, ownerID int64, title string, at time.Time) (*domain.Post, error) {
	at = at.UTC().Truncate(time.Minute)
	post := domain.Post{
		OwnerID:      ownerID,
		Title:        title,
		Status:       domain.StatusScheduled,
		ScheduledFor: &at,
	}
	if err := repo.InsertPost(ctx, s.db, &post); err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	s.bus.Publish(ctx, domain.Event{Kind: domain.EventScheduled, Post: post})
	return &post, nil
}

// ReschedulePost moves an existing post to a new publication time.
func (s *PostService) ReschedulePost(ctx context.Context, id int64, at time.Time) (*domain.Post, error) {
	at = at.UTC().Truncate(time.Minute)
	if err := repo.UpdatePostSchedule(ctx, s.db, id, at); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	post, err := repo.GetPostByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("reload post: %w", err)
	}
	s.bus.Publish(ctx, domain.Event{Kind: domain.EventUpdated, Post: *post})
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	return repo.GetPostByID(ctx, s.db, id)
}

// SetPreference validates and stores an owner's generation schedule.
func (s *PostService) SetPreference(ctx context.Context, ownerID int64, enabled bool, times json.RawMessage) error {
	if _, err := domain.ParseScheduleTimes(times); err != nil {
		return fmt.Errorf("invalid schedule times: %w", err)
	}
	return repo.UpsertPreference(ctx, s.db, ownerID, enabled, times)
}
