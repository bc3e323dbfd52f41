package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterBounds(t *testing.T) {
	base := 200 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := jitter(base)
		assert.GreaterOrEqual(t, d, base/2)
		assert.Less(t, d, 3*base/2)
	}
}
