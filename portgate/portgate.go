package portgate

import (
	"arena-harness/applog"
	"arena-harness/runner"
	"arena-harness/util"
	"context"
	"fmt"
	"go.uber.org/zap"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Gate frees the coordination port so a new server can bind it.
type Gate interface {
	Release(ctx context.Context, port int) error
}

// PidFinder lists the processes bound to a port. An error or an empty result
// means nothing holds it.
type PidFinder func(ctx context.Context, port int) ([]int, error)

// LsofGate finds port holders with lsof and asks them to terminate.
type LsofGate struct {
	Host string
	// Wait bounds how long Release polls for the port to be released.
	Wait  time.Duration
	Find  PidFinder
	Kill  func(pid int) error
	Probe func(host string, port int) bool
}

func NewLsofGate(host string) *LsofGate {
	return &LsofGate{
		Host:  host,
		Wait:  2 * time.Second,
		Find:  LsofPids,
		Kill:  terminatePid,
		Probe: InUse,
	}
}

// Release is best-effort and idempotent: a free port, a missing lsof or a
// process that already exited are all reported as success.
func (g *LsofGate) Release(ctx context.Context, port int) error {
	pids, err := g.Find(ctx, port)
	if err != nil || len(pids) == 0 {
		applog.Info("No live server found on coordination port", zap.Int("port", port), zap.NamedError("lookup", err))
		return nil
	}

	applog.Info("Killing old server", zap.Int("port", port), zap.Ints("pids", pids))
	for _, pid := range pids {
		if err = g.Kill(pid); err != nil {
			applog.Warn("Failed to signal process holding the port", zap.Int("pid", pid), zap.Error(err))
		}
	}

	deadline := time.Now().Add(g.Wait)
	tk := time.NewTicker(100 * time.Millisecond)
	defer tk.Stop()
	for time.Now().Before(deadline) {
		if !g.Probe(g.Host, port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
	}

	applog.Warn("Coordination port still busy after release", zap.Int("port", port), zap.Duration("waited", g.Wait))
	return nil
}

// InUse reports whether something accepts connections on host:port.
func InUse(host string, port int) bool {
	return util.IsTcpPortOpen(host, port, 250*time.Millisecond)
}

func LsofPids(ctx context.Context, port int) ([]int, error) {
	res, err := runner.Run(ctx, runner.Command{
		Name: "lsof",
		Path: "lsof",
		Args: []string{"-t", fmt.Sprintf("-i:%d", port)},
	}, runner.Options{})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		// lsof exits 1 when nothing matches.
		return nil, nil
	}
	return ParsePids(res.Stdout), nil
}

// ParsePids reads one PID per whitespace separated token, skipping garbage and
// duplicates.
func ParsePids(out string) []int {
	var pids []int
	seen := map[int]struct{}{}
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	return pids
}

func terminatePid(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = proc.Signal(syscall.SIGTERM)
	if err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
