package builder

import (
	"arena-harness/applog"
	"arena-harness/runner"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"strings"
)

var (
	ErrBuildFailed       = errors.New("build failed")
	ErrMissingDependency = errors.New("missing dependency")
)

type Builder struct {
	CleanCommand string
	BuildCommand string
}

func New(cleanCommand, buildCommand string) *Builder {
	return &Builder{
		CleanCommand: cleanCommand,
		BuildCommand: buildCommand,
	}
}

// Build runs clean, build, clean inside dir so only the final executable is
// left behind. Only the build step decides success.
func (b *Builder) Build(ctx context.Context, dir string) error {
	applog.Info("Building player", zap.String("dir", dir))

	b.clean(ctx, dir)

	res, err := runner.Run(ctx, runner.ShellCommand("build", dir, b.BuildCommand), runner.Options{})
	if err != nil {
		return fmt.Errorf("%w in %s: %w", ErrBuildFailed, dir, err)
	}
	if res.ExitCode != 0 {
		applog.Error("Player build failed",
			zap.String("dir", dir),
			zap.Int("exitCode", res.ExitCode),
			zap.String("stderr", lastLines(res.Stderr, 20)))
		return fmt.Errorf("%w in %s: %q exited with %d", ErrBuildFailed, dir, b.BuildCommand, res.ExitCode)
	}

	b.clean(ctx, dir)

	applog.Info("Player built", zap.String("dir", dir), zap.Duration("duration", res.Duration))
	return nil
}

// BuildAll stops at the first failing directory.
func (b *Builder) BuildAll(ctx context.Context, dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := b.Build(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) clean(ctx context.Context, dir string) {
	if b.CleanCommand == "" {
		return
	}
	res, err := runner.Run(ctx, runner.ShellCommand("clean", dir, b.CleanCommand), runner.Options{})
	if err != nil || res.ExitCode != 0 {
		applog.Warn("Clean step failed",
			zap.String("dir", dir),
			zap.Int("exitCode", res.ExitCode),
			zap.Error(err))
	}
}

// CheckTools runs every probe command (e.g. "mpichversion") and fails on the
// first one that cannot run or exits non-zero.
func CheckTools(ctx context.Context, probes ...string) error {
	for _, probe := range probes {
		if strings.TrimSpace(probe) == "" {
			continue
		}
		res, err := runner.Run(ctx, runner.ShellCommand("probe", "", probe), runner.Options{})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMissingDependency, probe, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%w: %q exited with %d", ErrMissingDependency, probe, res.ExitCode)
		}
		applog.Debug("Dependency present", zap.String("probe", probe))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
