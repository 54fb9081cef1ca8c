package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIsCreatedOnceAndStable(t *testing.T) {
	s := New()
	id := s.ID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, s.ID())

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestResetReplacesToken(t *testing.T) {
	s := New()
	old := s.ID()
	fresh := s.Reset()
	assert.NotEqual(t, old, fresh)
	assert.Equal(t, fresh, s.ID())
}

func TestConcurrentFirstUseAgrees(t *testing.T) {
	s := New()
	ids := make([]string, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.ID()
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestNewIDsDoNotCollide(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
