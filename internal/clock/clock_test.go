package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_Now_IsUTC(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestManual(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	assert.Equal(t, start, c.Now())

	c.Advance(15 * time.Minute)
	assert.Equal(t, start.Add(15*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
