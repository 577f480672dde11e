package supervisor

import (
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"
)

// Resumer locates the checkpoint to resume an interrupted collection from.
type Resumer struct {
	layout Layout
	logger *zap.Logger
}

// NewResumer returns a Resumer for the given layout.
func NewResumer(layout Layout, logger *zap.Logger) *Resumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resumer{layout: layout, logger: logger}
}

// NextConfig returns the most recently written checkpoint in the crawls
// directory, to be used as the next attempt's configuration. The staged
// configuration itself is never a checkpoint candidate. It is only called
// after an Interrupted classification; finding no checkpoint then means the
// engine broke its checkpointing promise, which wraps ErrNoCheckpoint.
func (r *Resumer) NextConfig() (string, error) {
	staged := r.layout.StagedConfigName()
	path, err := newestFile(r.layout.CrawlsDir(), func(name string) bool {
		return name == staged
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", r.layout.CrawlsDir(), ErrNoCheckpoint)
		}
		return "", fmt.Errorf("find checkpoint: %w", err)
	}

	r.logger.Info("resuming from checkpoint",
		zap.String("collection", r.layout.Collection),
		zap.String("checkpoint", path),
	)
	return path, nil
}
