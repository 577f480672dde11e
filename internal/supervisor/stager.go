package supervisor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/hash/sha256"
)

// Stager copies the crawl's starting configuration into the collection's
// working directory and establishes the directory tree every other component
// assumes exists. Staging happens once per run, before any attempt.
type Stager struct {
	layout Layout
	logger *zap.Logger
}

// NewStager returns a Stager for the given layout.
func NewStager(layout Layout, logger *zap.Logger) *Stager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stager{layout: layout, logger: logger}
}

// Stage creates the collection layout (idempotently) and copies the source
// configuration under its collection-qualified name. An unreadable source is
// an error; the caller treats it as fatal.
func (s *Stager) Stage(srcConfig string) (string, error) {
	for _, dir := range []string{s.layout.CrawlsDir(), s.layout.LogsDir(), s.layout.ArchiveDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create collection dir %s: %w", dir, err)
		}
	}

	src, err := os.Open(srcConfig)
	if err != nil {
		return "", fmt.Errorf("open source config %s: %w", srcConfig, err)
	}
	defer src.Close()

	target := s.layout.StagedConfigPath()
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("create staged config %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy config to %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close staged config %s: %w", target, err)
	}

	digest, err := sha256.SumFile(target)
	if err != nil {
		return "", fmt.Errorf("digest staged config %s: %w", target, err)
	}

	s.logger.Info("staged crawl config",
		zap.String("collection", s.layout.Collection),
		zap.String("source", filepath.Clean(srcConfig)),
		zap.String("staged", target),
		zap.String("sha256", digest),
	)
	return target, nil
}
