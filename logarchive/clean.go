package logarchive

import (
	"arena-harness/applog"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"os"
)

// DefaultCleanPatterns are the artifacts a tournament leaves behind, relative
// to the working directory.
var DefaultCleanPatterns = []string{
	"black*.txt",
	"white*.txt",
	"moves*.txt",
	"Logs/*.log",
	"Logs/*.txt",
	"Logs/*.gz",
}

// Clean removes every regular file under dir matching patterns. Patterns with
// no matches are skipped silently.
func Clean(dir string, patterns []string) ([]string, error) {
	files, err := matchFiles(dir, patterns)
	if err != nil {
		return nil, err
	}

	var removed []string
	var errs []error
	for _, f := range files {
		if err = os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", f, err))
			continue
		}
		removed = append(removed, f)
	}

	applog.Info("Removed log files", zap.String("dir", dir), zap.Int("files", len(removed)))
	return removed, errors.Join(errs...)
}
