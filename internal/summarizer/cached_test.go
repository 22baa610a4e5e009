package summarizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tldr-app/uploader/internal/models"
)

type countingSummarizer struct {
	calls int
	text  string
	err   error
}

func (s *countingSummarizer) Summarize(_ context.Context, _ *models.SelectedFile) (string, error) {
	s.calls++
	return s.text, s.err
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, hash string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	s, ok := c.entries[hash]
	return s, ok, nil
}

func (c *memoryCache) Put(_ context.Context, hash, _, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = summary
	return nil
}

func TestCached_HitSkipsRemote(t *testing.T) {
	next := &countingSummarizer{text: "remote"}
	cache := newMemoryCache()
	c := NewCached(next, cache, nil)
	file := &models.SelectedFile{Name: "a.pdf", Hash: "abc"}

	first, err := c.Summarize(context.Background(), file)
	require.NoError(t, err)
	second, err := c.Summarize(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, "remote", first)
	assert.Equal(t, "remote", second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "remote", cache.entries["abc"])
}

func TestCached_FailuresAreNotStored(t *testing.T) {
	next := &countingSummarizer{err: errors.New("down")}
	cache := newMemoryCache()
	c := NewCached(next, cache, nil)

	_, err := c.Summarize(context.Background(), &models.SelectedFile{Hash: "abc"})
	require.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestCached_NoHashBypassesCache(t *testing.T) {
	next := &countingSummarizer{text: "remote"}
	cache := newMemoryCache()
	c := NewCached(next, cache, nil)

	_, err := c.Summarize(context.Background(), nil)
	require.NoError(t, err)
	_, err = c.Summarize(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
	assert.Empty(t, cache.entries)
}

func TestCached_LookupErrorFallsThrough(t *testing.T) {
	next := &countingSummarizer{text: "remote"}
	cache := newMemoryCache()
	cache.getErr = errors.New("db locked")
	c := NewCached(next, cache, nil)

	text, err := c.Summarize(context.Background(), &models.SelectedFile{Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "remote", text)
	assert.Equal(t, 1, next.calls)
}
