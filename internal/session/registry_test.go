package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func descriptions(acts []Activity) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Description
	}
	return out
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	s := r.GetOrCreate(42, "alice")
	assert.Equal(t, int64(42), s.UserID)
	assert.Equal(t, "alice", s.DisplayName)
	assert.False(t, s.Authenticated)

	s = r.GetOrCreate(42, "")
	assert.Equal(t, "alice", s.DisplayName, "empty name keeps the stored one")

	s = r.GetOrCreate(42, "alice2")
	assert.Equal(t, "alice2", s.DisplayName)

	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Authenticate(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsAuthenticated(1), "unknown user")

	r.GetOrCreate(1, "bob")
	assert.False(t, r.IsAuthenticated(1))

	r.Authenticate(1)
	r.Authenticate(1)
	assert.True(t, r.IsAuthenticated(1))
	assert.Equal(t, []string{"Authentication successful"}, descriptions(r.Activities(1)))

	r.Authenticate(2)
	_, ok := r.Get(2)
	assert.False(t, ok, "authenticate never creates a session")
}

func TestRegistry_RecordActivity(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.now))

	r.RecordActivity(7, "ignored")
	assert.Nil(t, r.Activities(7))
	assert.Equal(t, 0, r.Count())

	r.GetOrCreate(7, "carol")
	clock.advance(time.Minute)
	r.RecordActivity(7, "Listed files")
	clock.advance(time.Minute)
	r.RecordActivity(7, "Uploaded file: a.txt")

	acts := r.Activities(7)
	require.Len(t, acts, 2)
	assert.Equal(t, "Listed files", acts[0].Description)
	assert.Equal(t, clock.t.Add(-time.Minute), acts[0].Time)

	s, ok := r.Get(7)
	require.True(t, ok)
	assert.Equal(t, clock.t, s.LastActivity)
}

func TestRegistry_Touch(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.now))
	r.GetOrCreate(3, "dave")

	clock.advance(time.Hour)
	r.Touch(3)

	s, _ := r.Get(3)
	assert.Equal(t, clock.t, s.LastActivity)
	assert.Empty(t, r.Activities(3))
}

func TestRegistry_ActivityLimit(t *testing.T) {
	r := NewRegistry(WithActivityLimit(3))
	r.GetOrCreate(1, "")

	for i := 1; i <= 5; i++ {
		r.RecordActivity(1, fmt.Sprintf("a%d", i))
	}

	assert.Equal(t, []string{"a3", "a4", "a5"}, descriptions(r.Activities(1)))
}

func TestRegistry_ActivityUnbounded(t *testing.T) {
	r := NewRegistry(WithActivityLimit(0))
	r.GetOrCreate(1, "")

	for i := 0; i < DefaultActivityLimit+10; i++ {
		r.RecordActivity(1, "x")
	}

	assert.Len(t, r.Activities(1), DefaultActivityLimit+10)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for u := int64(0); u < 8; u++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.GetOrCreate(id, "")
			r.Authenticate(id)
			for i := 0; i < 50; i++ {
				r.RecordActivity(id, "tick")
				_ = r.IsAuthenticated(id)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 8, r.Count())
	for u := int64(0); u < 8; u++ {
		assert.Len(t, r.Activities(u), 51)
	}
}
