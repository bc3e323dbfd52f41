package domain

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventScheduled EventKind = "scheduled"
	EventPublished EventKind = "published"
	EventDeleted   EventKind = "deleted"
)

// Event is the in-process signal emitted when a post is mutated. Payload is
// the post entity itself; delivery is process-local only.
type Event struct {
	Kind EventKind
	Post Post
}
