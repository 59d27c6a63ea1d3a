// ABOUTME: Tests for the TTL read cache
// ABOUTME: Expiry on a fake clock and prefix invalidation

package readcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driftline/driftline-console/internal/platform"
)

func TestGetPut(t *testing.T) {
	clock := platform.NewFakeClock(time.Now())
	c := New(time.Minute, clock)

	c.Put("/api/admin/links", []string{"a"})
	v, ok := c.Get("/api/admin/links")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	_, ok = c.Get("/api/admin/media")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	clock := platform.NewFakeClock(time.Now())
	c := New(30*time.Second, clock)

	c.Put("k", 1)
	clock.Advance(29 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	clock := platform.NewFakeClock(time.Now())
	c := New(0, clock)

	c.Put("k", 1)
	clock.Advance(24 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestInvalidateByPrefix(t *testing.T) {
	c := New(time.Minute, platform.NewFakeClock(time.Now()))

	c.Put("/api/admin/announcements?status=draft", 1)
	c.Put("/api/admin/announcements?status=published", 2)
	c.Put("/api/admin/links", 3)

	c.Invalidate("/api/admin/announcements")

	_, ok := c.Get("/api/admin/announcements?status=draft")
	assert.False(t, ok)
	_, ok = c.Get("/api/admin/announcements?status=published")
	assert.False(t, ok)
	_, ok = c.Get("/api/admin/links")
	assert.True(t, ok)
}
