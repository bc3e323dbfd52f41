package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The entry encoding is a cross-instance contract: every instance must be
// able to read what any other instance wrote.
func TestEntryWireFormat(t *testing.T) {
	b, err := json.Marshal(Entry{
		ID:           42,
		OwnerID:      7,
		Title:        "Hello",
		ScheduledFor: time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"ownerId":7,"title":"Hello","scheduledFor":"2024-06-01T14:30:00Z"}`, string(b))
}
