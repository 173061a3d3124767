package readiness

import (
	"arena-harness/util"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

var ErrProbeTimeout = errors.New("readiness probe timed out")

const defaultInterval = 100 * time.Millisecond

// Probe blocks until a collaborator is ready to accept the next step.
type Probe interface {
	Wait(ctx context.Context) error
	String() string
}

// LineObserver is implemented by probes that watch a process's stdout; the
// observer must be attached before the process starts.
type LineObserver interface {
	Observe(line string)
}

// Sleep is the fallback when the collaborator exposes no readiness signal.
type Sleep struct {
	Delay time.Duration
}

func (s Sleep) String() string { return fmt.Sprintf("Sleep{%s}", s.Delay) }

func (s Sleep) Wait(ctx context.Context) error {
	return util.SleepContext(ctx, s.Delay)
}

// Line is ready once a line matching its pattern has been observed.
type Line struct {
	re      *regexp.Regexp
	timeout time.Duration
	seen    chan struct{}
	once    sync.Once
}

func NewLine(pattern string, timeout time.Duration) (*Line, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid readiness pattern %q: %w", pattern, err)
	}
	return &Line{re: re, timeout: timeout, seen: make(chan struct{})}, nil
}

func (l *Line) String() string { return fmt.Sprintf("Line{%s}", l.re) }

func (l *Line) Observe(line string) {
	if l.re.MatchString(line) {
		l.once.Do(func() { close(l.seen) })
	}
}

func (l *Line) Wait(ctx context.Context) error {
	var deadline <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case <-l.seen:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return fmt.Errorf("%w: no line matching %q within %s", ErrProbeTimeout, l.re, l.timeout)
	}
}

// Port is ready once host:port accepts TCP connections.
type Port struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Interval time.Duration
}

func (p Port) String() string { return fmt.Sprintf("Port{%s:%d}", p.Host, p.Port) }

func (p Port) Wait(ctx context.Context) error {
	return poll(ctx, p.Timeout, p.Interval, func(context.Context) bool {
		return util.IsTcpPortOpen(p.Host, p.Port, 250*time.Millisecond)
	}, p.String())
}

// poll calls check until it reports true, the timeout elapses or ctx ends.
func poll(ctx context.Context, timeout, interval time.Duration, check func(context.Context) bool, what string) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		if check(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && timeout > 0 {
				return fmt.Errorf("%w: %s not ready within %s", ErrProbeTimeout, what, timeout)
			}
			return ctx.Err()
		case <-tk.C:
		}
	}
}

// Factory creates a fresh probe for every use; Line probes are single-shot.
type Factory func() Probe

func SleepFactory(d time.Duration) Factory {
	return func() Probe { return Sleep{Delay: d} }
}

// LineFactory compiles pattern once and hands out a new Line probe per call.
func LineFactory(pattern string, timeout time.Duration) (Factory, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid readiness pattern %q: %w", pattern, err)
	}
	return func() Probe {
		return &Line{re: re, timeout: timeout, seen: make(chan struct{})}
	}, nil
}

func PortFactory(host string, port int, timeout time.Duration) Factory {
	return func() Probe { return Port{Host: host, Port: port, Timeout: timeout} }
}

func HTTPFactory(url string, timeout time.Duration) Factory {
	return func() Probe { return HTTP{URL: url, Timeout: timeout} }
}
