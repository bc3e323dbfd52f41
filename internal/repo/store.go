package repo

import (
	"context"
	"time"

	"postflow/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store bundles the authoritative-store queries the pipeline consumes, so
// triggers and workers can take a narrow interface instead of a pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewStore(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "store").Logger()}
}

func (s *Store) GetPostByID(ctx context.Context, id int64) (*domain.Post, error) {
	return GetPostByID(ctx, s.pool, id)
}

func (s *Store) InsertPost(ctx context.Context, p *domain.Post) error {
	return InsertPost(ctx, s.pool, p)
}

func (s *Store) FindDuePosts(ctx context.Context, now time.Time) ([]domain.Post, error) {
	return FindDuePosts(ctx, s.pool, now)
}

func (s *Store) FindScheduledInWindow(ctx context.Context, from, to time.Time) ([]domain.Post, error) {
	return FindScheduledInWindow(ctx, s.pool, from, to)
}

func (s *Store) FindPostByOwnerAndTime(ctx context.Context, ownerID int64, at time.Time) (*domain.Post, error) {
	return FindPostByOwnerAndTime(ctx, s.pool, ownerID, at)
}

func (s *Store) UpdatePostStatus(ctx context.Context, id int64, status domain.PostStatus, externalID string) error {
	return UpdatePostStatus(ctx, s.pool, id, status, externalID)
}

func (s *Store) UpdatePostSchedule(ctx context.Context, id int64, at time.Time) error {
	return UpdatePostSchedule(ctx, s.pool, id, at)
}

func (s *Store) ListEnabledPreferences(ctx context.Context, day time.Weekday) ([]domain.SchedulePreference, error) {
	return ListEnabledPreferences(ctx, s.pool, day, s.log)
}
