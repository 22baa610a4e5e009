package summarizer

import (
	"context"

	"github.com/tldr-app/uploader/internal/models"
	"go.uber.org/zap"
)

// Cache stores summaries keyed by content hash.
type Cache interface {
	Get(ctx context.Context, hash string) (string, bool, error)
	Put(ctx context.Context, hash, fileName, summary string) error
}

// Cached serves repeated files from a Cache and forwards misses to next.
// Cache errors are logged and otherwise ignored.
type Cached struct {
	next   Summarizer
	cache  Cache
	logger *zap.Logger
}

// NewCached wraps next with cache.
func NewCached(next Summarizer, cache Cache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, logger: logger.Named("summary-cache")}
}

func (c *Cached) Summarize(ctx context.Context, file *models.SelectedFile) (string, error) {
	if file == nil || file.Hash == "" {
		return c.next.Summarize(ctx, file)
	}

	text, ok, err := c.cache.Get(ctx, file.Hash)
	switch {
	case err != nil:
		c.logger.Warn("cache lookup failed", zap.String("hash", file.Hash), zap.Error(err))
	case ok:
		c.logger.Debug("cache hit", zap.String("file", file.Name), zap.String("hash", file.Hash))
		return text, nil
	}

	text, err = c.next.Summarize(ctx, file)
	if err != nil {
		return "", err
	}

	if err := c.cache.Put(ctx, file.Hash, file.Name, text); err != nil {
		c.logger.Warn("cache store failed", zap.String("hash", file.Hash), zap.Error(err))
	}
	return text, nil
}
