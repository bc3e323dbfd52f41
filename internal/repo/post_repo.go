package repo

import (
	"context"
	"errors"
	"time"

	"postflow/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postColumns = `id, owner_id, title, status, scheduled_for, external_publish_id, created_at, updated_at`

func scanPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	var external *string
	if err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Status, &p.ScheduledFor, &external,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if external != nil {
		p.ExternalPublishID = *external
	}
	return &p, nil
}

// InsertPost stores a new post and fills in its generated id.
func InsertPost(ctx context.Context, db *pgxpool.Pool, p *domain.Post) error {
	return db.QueryRow(ctx, `
		INSERT INTO posts (owner_id, title, status, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, p.OwnerID, p.Title, p.Status, p.ScheduledFor).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func GetPostByID(ctx context.Context, db *pgxpool.Pool, id int64) (*domain.Post, error) {
	return scanPost(db.QueryRow(ctx, `
		SELECT `+postColumns+` FROM posts WHERE id=$1
	`, id))
}

// FindDuePosts returns scheduled posts whose publish time has passed.
func FindDuePosts(ctx context.Context, db *pgxpool.Pool, now time.Time) ([]domain.Post, error) {
	rows, err := db.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE status=$1 AND scheduled_for <= $2
		ORDER BY scheduled_for
	`, domain.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// FindScheduledInWindow returns scheduled posts with scheduled_for in
// [from, to).
func FindScheduledInWindow(ctx context.Context, db *pgxpool.Pool, from, to time.Time) ([]domain.Post, error) {
	rows, err := db.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE status=$1 AND scheduled_for >= $2 AND scheduled_for < $3
		ORDER BY scheduled_for
	`, domain.StatusScheduled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// FindPostByOwnerAndTime looks up a post already occupying an owner's exact
// publication slot. Returns (nil, nil) when the slot is free.
func FindPostByOwnerAndTime(ctx context.Context, db *pgxpool.Pool, ownerID int64, at time.Time) (*domain.Post, error) {
	p, err := scanPost(db.QueryRow(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE owner_id=$1 AND scheduled_for=$2 AND status <> $3
		LIMIT 1
	`, ownerID, at, domain.StatusFailed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePostStatus transitions a post's status. externalID, when non-empty,
// records the id assigned by the external publishing platform.
func UpdatePostStatus(ctx context.Context, db *pgxpool.Pool, id int64, status domain.PostStatus, externalID string) error {
	if externalID != "" {
		_, err := db.Exec(ctx, `
			UPDATE posts SET status=$2, external_publish_id=$3, updated_at=NOW()
			WHERE id=$1
		`, id, status, externalID)
		return err
	}
	_, err := db.Exec(ctx, `
		UPDATE posts SET status=$2, updated_at=NOW()
		WHERE id=$1
	`, id, status)
	return err
}

// UpdatePostSchedule moves a post to a new publication time and back to
// scheduled status.
func UpdatePostSchedule(ctx context.Context, db *pgxpool.Pool, id int64, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE posts SET status=$2, scheduled_for=$3, updated_at=NOW()
		WHERE id=$1
	`, id, domain.StatusScheduled, at)
	return err
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	var res []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}
