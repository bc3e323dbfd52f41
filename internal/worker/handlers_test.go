package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"postflow/internal/collab"
	"postflow/internal/domain"
	"postflow/internal/queue"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	posts     map[int64]*domain.Post
	slots     map[string]*domain.Post
	nextID    int64
	inserted  []domain.Post
	statuses  map[int64]domain.PostStatus
	externals map[int64]string
	insertErr error
	statusErr error
}

func newMemStore() *memStore {
	return &memStore{
		posts:     map[int64]*domain.Post{},
		slots:     map[string]*domain.Post{},
		nextID:    100,
		statuses:  map[int64]domain.PostStatus{},
		externals: map[int64]string{},
	}
}

func memSlotKey(ownerID int64, at time.Time) string {
	return strconv.FormatInt(ownerID, 10) + "@" + at.UTC().Format(time.RFC3339)
}

func (s *memStore) GetPostByID(_ context.Context, id int64) (*domain.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) InsertPost(_ context.Context, p *domain.Post) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	p.ID = s.nextID
	s.posts[p.ID] = p
	s.inserted = append(s.inserted, *p)
	return nil
}

func (s *memStore) FindPostByOwnerAndTime(_ context.Context, ownerID int64, at time.Time) (*domain.Post, error) {
	return s.slots[memSlotKey(ownerID, at)], nil
}

func (s *memStore) UpdatePostStatus(_ context.Context, id int64, status domain.PostStatus, externalID string) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statuses[id] = status
	if externalID != "" {
		s.externals[id] = externalID
	}
	if p, ok := s.posts[id]; ok {
		p.Status = status
	}
	return nil
}

type recordingEnqueuer struct {
	calls []enqueued
	err   error
}

type enqueued struct {
	jobID string
	opts  queue.Options
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, jobID string, _ any, opts queue.Options) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	e.calls = append(e.calls, enqueued{jobID: jobID, opts: opts})
	return true, nil
}

type recordingBus struct {
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.events = append(b.events, ev)
}

type stubGenerator struct {
	title string
	err   error
}

func (g stubGenerator) Generate(_ context.Context, _ int64, _ collab.GenerateOptions) (collab.GeneratedPost, error) {
	return collab.GeneratedPost{Title: g.title}, g.err
}

type stubPublisher struct {
	externalID string
	err        error
	calls      int
}

func (p *stubPublisher) Publish(_ context.Context, _ int64, _ int64, _ string) (string, error) {
	p.calls++
	return p.externalID, p.err
}

type stubNotifier struct {
	kinds []string
	err   error
}

func (n *stubNotifier) Notify(_ context.Context, _ int64, kind string, _ map[string]any) error {
	n.kinds = append(n.kinds, kind)
	return n.err
}

type fixture struct {
	store    *memStore
	external *recordingEnqueuer
	bus      *recordingBus
	gen      stubGenerator
	pub      *stubPublisher
	notify   *stubNotifier
}

func newFixture() *fixture {
	return &fixture{
		store:    newMemStore(),
		external: &recordingEnqueuer{},
		bus:      &recordingBus{},
		gen:      stubGenerator{title: "Generated title"},
		pub:      &stubPublisher{externalID: "wp-900"},
		notify:   &stubNotifier{},
	}
}

func (f *fixture) workers(t *testing.T) *Workers {
	t.Helper()
	return New(f.store, f.external, f.bus, f.gen, f.pub, f.notify, 0, zerolog.Nop())
}

func jobWith(t *testing.T, id string, payload any) queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Job{ID: id, Payload: raw, Attempt: 1, MaxAttempts: 3}
}

var slotAt = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func TestProcessGenerationCreatesScheduledPost(t *testing.T) {
	f := newFixture()
	w := f.workers(t)

	job := jobWith(t, GenerationJobID(7, slotAt), GenerationPayload{OwnerID: 7, PublishAt: slotAt})
	require.NoError(t, w.ProcessGeneration(context.Background(), job))

	require.Len(t, f.store.inserted, 1)
	got := f.store.inserted[0]
	assert.Equal(t, int64(7), got.OwnerID)
	assert.Equal(t, "Generated title", got.Title)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	require.NotNil(t, got.ScheduledFor)
	assert.Equal(t, slotAt, got.ScheduledFor.UTC())

	require.Len(t, f.bus.events, 1)
	assert.Equal(t, domain.EventScheduled, f.bus.events[0].Kind)
}

func TestProcessGenerationSkipsOccupiedSlot(t *testing.T) {
	f := newFixture()
	f.store.slots[memSlotKey(7, slotAt)] = &domain.Post{ID: 1, OwnerID: 7}
	w := f.workers(t)

	job := jobWith(t, GenerationJobID(7, slotAt), GenerationPayload{OwnerID: 7, PublishAt: slotAt})
	require.NoError(t, w.ProcessGeneration(context.Background(), job))
	assert.Empty(t, f.store.inserted)
	assert.Empty(t, f.bus.events)
}

func TestProcessGenerationDropsMalformedPayload(t *testing.T) {
	f := newFixture()
	w := f.workers(t)

	job := queue.Job{ID: "generate-x", Payload: json.RawMessage(`{"owner_id": "seven"}`)}
	assert.NoError(t, w.ProcessGeneration(context.Background(), job))
	assert.Empty(t, f.store.inserted)
}

func TestProcessGenerationCollaboratorFailureRetries(t *testing.T) {
	f := newFixture()
	f.gen = stubGenerator{err: errors.New("model overloaded")}
	w := f.workers(t)

	job := jobWith(t, GenerationJobID(7, slotAt), GenerationPayload{OwnerID: 7, PublishAt: slotAt})
	err := w.ProcessGeneration(context.Background(), job)
	require.Error(t, err)
	var cerr *CollaboratorError
	assert.ErrorAs(t, err, &cerr)
}

func TestProcessPublishingForwardsToExternalQueue(t *testing.T) {
	f := newFixture()
	past := time.Now().UTC().Add(-2 * time.Minute)
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Status: domain.StatusScheduled, ScheduledFor: &past}
	w := f.workers(t)

	job := jobWith(t, PublishJobID(42), PublishPayload{PostID: 42})
	require.NoError(t, w.ProcessPublishing(context.Background(), job))

	require.Len(t, f.external.calls, 1)
	assert.Equal(t, "wp-publish-42", f.external.calls[0].jobID)
}

func TestProcessPublishingDiscardsRescheduledPost(t *testing.T) {
	f := newFixture()
	later := time.Now().UTC().Add(40 * time.Minute)
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Status: domain.StatusScheduled, ScheduledFor: &later}
	w := f.workers(t)

	job := jobWith(t, PublishJobID(42), PublishPayload{PostID: 42})
	err := w.ProcessPublishing(context.Background(), job)
	assert.ErrorIs(t, err, queue.ErrObsolete)
	assert.Empty(t, f.external.calls)
}

func TestProcessExternalPublishDiscardsRescheduledPost(t *testing.T) {
	f := newFixture()
	later := time.Now().UTC().Add(40 * time.Minute)
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Status: domain.StatusScheduled, ScheduledFor: &later}
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	err := w.ProcessExternalPublish(context.Background(), job)
	assert.ErrorIs(t, err, queue.ErrObsolete)
	assert.Zero(t, f.pub.calls)
	assert.Empty(t, f.store.statuses)
}

func TestProcessPublishingSkipsMissingPost(t *testing.T) {
	f := newFixture()
	w := f.workers(t)

	job := jobWith(t, PublishJobID(42), PublishPayload{PostID: 42})
	assert.NoError(t, w.ProcessPublishing(context.Background(), job))
	assert.Empty(t, f.external.calls)
}

func TestProcessPublishingSkipsNonScheduled(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, Status: domain.StatusPublished}
	w := f.workers(t)

	job := jobWith(t, PublishJobID(42), PublishPayload{PostID: 42})
	assert.NoError(t, w.ProcessPublishing(context.Background(), job))
	assert.Empty(t, f.external.calls)
}

func TestProcessExternalPublishRecordsPublished(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Title: "Hello", Status: domain.StatusScheduled}
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	require.NoError(t, w.ProcessExternalPublish(context.Background(), job))

	assert.Equal(t, domain.StatusPublished, f.store.statuses[42])
	assert.Equal(t, "wp-900", f.store.externals[42])
	require.Len(t, f.bus.events, 1)
	assert.Equal(t, domain.EventPublished, f.bus.events[0].Kind)
	assert.Equal(t, []string{"post_published"}, f.notify.kinds)
}

func TestProcessExternalPublishIdempotentOnPublished(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, Status: domain.StatusPublished}
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	require.NoError(t, w.ProcessExternalPublish(context.Background(), job))
	assert.Zero(t, f.pub.calls)
	assert.Empty(t, f.bus.events)
}

func TestProcessExternalPublishPlatformFailureRetries(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, Status: domain.StatusScheduled}
	f.pub.err = errors.New("rate limited")
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	err := w.ProcessExternalPublish(context.Background(), job)
	require.Error(t, err)
	var cerr *CollaboratorError
	assert.ErrorAs(t, err, &cerr)
	assert.Empty(t, f.store.statuses)
}

func TestNotificationFailureDoesNotFailPublish(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Status: domain.StatusScheduled}
	f.notify.err = errors.New("smtp down")
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	assert.NoError(t, w.ProcessExternalPublish(context.Background(), job))
	assert.Equal(t, domain.StatusPublished, f.store.statuses[42])
}

func TestOnPublishExhaustedMarksFailedAndNotifies(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, OwnerID: 7, Title: "Hello", Status: domain.StatusScheduled}
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	w.OnPublishExhausted(context.Background(), job, errors.New("platform unreachable"))

	assert.Equal(t, domain.StatusFailed, f.store.statuses[42])
	assert.Equal(t, []string{"post_publish_failed"}, f.notify.kinds)
}

func TestOnPublishExhaustedLeavesPublishedAlone(t *testing.T) {
	f := newFixture()
	f.store.posts[42] = &domain.Post{ID: 42, Status: domain.StatusPublished}
	w := f.workers(t)

	job := jobWith(t, ExternalPublishJobID(42), PublishPayload{PostID: 42})
	w.OnPublishExhausted(context.Background(), job, errors.New("late failure"))
	assert.Empty(t, f.store.statuses)
	assert.Empty(t, f.notify.kinds)
}
