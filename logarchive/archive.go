package logarchive

import (
	"arena-harness/applog"
	"context"
	"errors"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Archive collects the artifacts players and the framework leave in SourceDir
// (board dumps, move lists) into the log directory.
type Archive struct {
	SourceDir string
	Patterns  []string
	Dir       string
	// Compress stores every artifact as <name>.gz.
	Compress bool
}

// Move is best-effort per file: a failed artifact is reported in the joined
// error but does not stop the others. No matching files is not an error.
func (a *Archive) Move(ctx context.Context) ([]string, error) {
	files, err := matchFiles(a.SourceDir, a.Patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		applog.Debug("No log artifacts to move", zap.Strings("patterns", a.Patterns))
		return nil, nil
	}

	if err = os.MkdirAll(a.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	var moved []string
	var errs []error
	for _, src := range files {
		if err = ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		dst := filepath.Join(a.Dir, filepath.Base(src))
		if a.Compress {
			dst += ".gz"
			err = compressFile(src, dst)
		} else {
			err = moveFile(src, dst)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("archiving %s: %w", src, err))
			continue
		}
		moved = append(moved, dst)
	}

	applog.Info("Moved log artifacts",
		zap.String("dir", a.Dir),
		zap.Int("files", len(moved)),
		zap.Bool("compressed", a.Compress))
	return moved, errors.Join(errs...)
}

func matchFiles(dir string, patterns []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	return files, nil
}

func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err = copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return err
	}
	zw.Name = filepath.Base(src)
	zw.ModTime = info.ModTime()

	if _, err = io.Copy(zw, in); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}

	_ = in.Close()
	return os.Remove(src)
}

// Open reads an archived artifact, decompressing it when it ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".gz" {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}
