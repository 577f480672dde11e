package supervisor

import (
	"fmt"
	"path/filepath"
)

// Layout describes the working directory of one collection. All components
// derive paths from it so the on-disk contract lives in one place:
//
//	<root>/<collection>/crawls/config.<collection>.yaml  staged config
//	<root>/<collection>/crawls/<checkpoint>              engine checkpoints
//	<root>/<collection>/logs/<log>                       per-attempt logs
//	<root>/<collection>/archive/*                        captured output
type Layout struct {
	Root       string
	Collection string
}

// Dir is the collection's working directory.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, l.Collection)
}

// CrawlsDir holds the staged configuration and engine checkpoints.
func (l Layout) CrawlsDir() string {
	return filepath.Join(l.Dir(), "crawls")
}

// LogsDir holds one structured log file per attempt.
func (l Layout) LogsDir() string {
	return filepath.Join(l.Dir(), "logs")
}

// ArchiveDir holds captured data for downstream uploaders.
func (l Layout) ArchiveDir() string {
	return filepath.Join(l.Dir(), "archive")
}

// StagedConfigName is the collection-qualified file name the source
// configuration is staged under.
func (l Layout) StagedConfigName() string {
	return fmt.Sprintf("config.%s.yaml", l.Collection)
}

// StagedConfigPath is the full host path of the staged configuration.
func (l Layout) StagedConfigPath() string {
	return filepath.Join(l.CrawlsDir(), l.StagedConfigName())
}
