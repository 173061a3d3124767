package topology

import (
	"arena-harness/applog"
	"errors"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// processLogs holds the per-process stdout/stderr files of one match.
type processLogs struct {
	files []*os.File
}

// open returns writers for <dir>/<base>.out.log and <dir>/<base>.err.log. With
// an empty dir or on any file error it returns nil writers and the process
// output is only kept in memory.
func (l *processLogs) open(dir, base string) (io.Writer, io.Writer) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		applog.Warn("Cannot create process log directory", zap.String("dir", dir), zap.Error(err))
		return nil, nil
	}

	base = unsafeFileChars.ReplaceAllString(base, "_")
	outF, err := os.Create(filepath.Join(dir, base+".out.log"))
	if err != nil {
		applog.Warn("Cannot create process log", zap.String("base", base), zap.Error(err))
		return nil, nil
	}
	errF, err := os.Create(filepath.Join(dir, base+".err.log"))
	if err != nil {
		_ = outF.Close()
		applog.Warn("Cannot create process log", zap.String("base", base), zap.Error(err))
		return nil, nil
	}

	l.files = append(l.files, outF, errF)
	return outF, errF
}

func (l *processLogs) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}
