package runner

import (
	"arena-harness/applog"
	"bytes"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrStart is returned when the OS refuses to spawn the command.
var ErrStart = errors.New("could not start process")

const defaultKillGrace = 3 * time.Second

// Command describes one external program invocation.
type Command struct {
	// Name labels the process in logs and echoed output.
	Name string
	Path string
	Args []string
	Dir  string
	Env  []string
}

// ShellCommand runs script through the platform shell, for steps that rely on
// globbing or shell built-ins (make targets, mv *.txt).
func ShellCommand(name, dir, script string) Command {
	path, args := shellArgs(script)
	return Command{Name: name, Path: path, Args: args, Dir: dir}
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// LineHandler observes one line of streamed stdout. Handlers run on the output
// copying goroutine and must not block.
type LineHandler func(line string)

type Options struct {
	// Stream delivers stdout line by line to Echo and OnLine while the process runs.
	Stream bool
	// Echo receives "[name] line" for every streamed line.
	Echo   io.Writer
	OnLine []LineHandler
	// Log and ErrLog receive the raw stdout/stderr bytes (per-process log files).
	Log    io.Writer
	ErrLog io.Writer
	// KillGrace is how long a process group gets between SIGTERM and SIGKILL.
	KillGrace time.Duration
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Process is a handle to one spawned command. It is owned by the routine that
// started it until Wait returns.
type Process struct {
	name    string
	cmd     *exec.Cmd
	ctx     context.Context
	stdout  *lineWriter
	stderr  *lockedBuffer
	started time.Time
	grace   time.Duration

	done   chan struct{}
	result Result
	err    error
	once   sync.Once
}

// Run spawns the command and blocks until it exits. A non-zero exit code is
// reported in Result, not as an error. When ctx ends first the process group is
// terminated and ctx.Err() is returned together with the output captured so far.
func Run(ctx context.Context, c Command, opts Options) (Result, error) {
	p, err := Start(ctx, c, opts)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	return p.Wait()
}

func Start(ctx context.Context, c Command, opts Options) (*Process, error) {
	if c.Name == "" {
		c.Name = c.Path
	}
	grace := opts.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return signalGroup(cmd, false)
	}
	cmd.WaitDelay = grace

	p := &Process{
		name:   c.Name,
		cmd:    cmd,
		ctx:    ctx,
		stderr: &lockedBuffer{},
		grace:  grace,
		done:   make(chan struct{}),
	}

	p.stdout = &lineWriter{}
	if opts.Stream {
		p.stdout.onLine = p.lineFanout(opts)
	}

	cmd.Stdout = teeWriter(p.stdout, opts.Log)
	cmd.Stderr = teeWriter(p.stderr, opts.ErrLog)

	p.started = time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrStart, c.String(), err)
	}

	applog.Debug("Process started",
		zap.String("process", p.name),
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", cmd.Args))

	go p.wait()
	return p, nil
}

func (p *Process) lineFanout(opts Options) func(string) {
	prefix := "[" + p.name + "] "
	return func(line string) {
		if opts.Echo != nil {
			_, _ = io.WriteString(opts.Echo, prefix+line+"\n")
		}
		for _, h := range opts.OnLine {
			h(line)
		}
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.stdout.flush()

	// The leader is gone; make sure nothing it spawned survives it.
	_ = signalGroup(p.cmd, true)

	p.result = Result{
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
		ExitCode: -1,
		Duration: time.Since(p.started),
	}
	if p.cmd.ProcessState != nil {
		p.result.ExitCode = p.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case p.ctx.Err() != nil:
		p.err = p.ctx.Err()
	case err == nil, errors.As(err, &exitErr), errors.Is(err, exec.ErrWaitDelay):
		p.err = nil
	default:
		p.err = fmt.Errorf("waiting for %s: %w", p.name, err)
	}

	applog.Debug("Process exited",
		zap.String("process", p.name),
		zap.Int("exitCode", p.result.ExitCode),
		zap.Duration("duration", p.result.Duration),
		zap.Error(p.err))

	close(p.done)
}

// Wait blocks until the process has exited and its output is fully drained.
func (p *Process) Wait() (Result, error) {
	<-p.done
	return p.result, p.err
}

// Done is closed once Wait would return without blocking.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Output returns the stdout captured so far.
func (p *Process) Output() string {
	return p.stdout.String()
}

// Terminate asks the whole process group to stop and escalates to SIGKILL after
// the kill grace. It is safe to call more than once and after exit.
func (p *Process) Terminate() {
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		applog.Debug("Terminating process group", zap.String("process", p.name), zap.Int("pid", p.Pid()))
		_ = signalGroup(p.cmd, false)

		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				_ = signalGroup(p.cmd, true)
			}
		}()
	})
}

type lineWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	partial []byte
	onLine  func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(b)
	var lines []string
	if w.onLine != nil {
		w.partial = append(w.partial, b...)
		for {
			i := bytes.IndexByte(w.partial, '\n')
			if i < 0 {
				break
			}
			lines = append(lines, strings.TrimRight(string(w.partial[:i]), "\r"))
			w.partial = w.partial[i+1:]
		}
	}
	w.mu.Unlock()

	for _, line := range lines {
		w.onLine(line)
	}
	return len(b), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	rest := w.partial
	w.partial = nil
	w.mu.Unlock()

	if w.onLine != nil && len(rest) > 0 {
		w.onLine(strings.TrimRight(string(rest), "\r"))
	}
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func teeWriter(primary io.Writer, secondary io.Writer) io.Writer {
	if secondary == nil {
		return primary
	}
	return io.MultiWriter(primary, secondary)
}
