package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishJobID(t *testing.T) {
	assert.Equal(t, "publish-post-42", PublishJobID(42))
}

func TestExternalPublishJobID(t *testing.T) {
	assert.Equal(t, "wp-publish-42", ExternalPublishJobID(42))
}

func TestGenerationJobID(t *testing.T) {
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "generate-7-2024-06-03-09:00", GenerationJobID(7, at))
}

// The same slot must produce the same id regardless of the zone the caller
// held the timestamp in, so reruns dedup.
func TestGenerationJobIDNormalizesZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	utc := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	local := utc.In(loc)
	assert.Equal(t, GenerationJobID(7, utc), GenerationJobID(7, local))
}
