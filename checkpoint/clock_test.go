package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogicalClock(t *testing.T) {
	now := time.UnixMilli(1000)
	c := NewLogicalClock(func() time.Time { return now })

	assert.Equal(t, int64(1000), c.Next("a"))
	assert.Equal(t, int64(1001), c.Next("a"))
	assert.Equal(t, int64(1000), c.Next("b"), "queries are independent")

	now = time.UnixMilli(5000)
	assert.Equal(t, int64(5000), c.Next("a"))

	c.Observe("a", 9000)
	assert.Equal(t, int64(9001), c.Next("a"))

	c.Observe("a", 10)
	assert.Equal(t, int64(9002), c.Next("a"), "observing an older timestamp is a no-op")
}
