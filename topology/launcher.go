package topology

import (
	"arena-harness/applog"
	"arena-harness/framework"
	"arena-harness/portgate"
	"arena-harness/readiness"
	"arena-harness/runner"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"io"
	"sync"
	"time"
)

var (
	ErrServerDown = errors.New("game server is not running")
	ErrNotReady   = errors.New("process exited before it became ready")
)

// Phase is the last stage a match reached.
type Phase string

const (
	PhaseIdle           Phase = "Idle"
	PhaseLobbyStarting  Phase = "LobbyStarting"
	PhaseClientsRunning Phase = "ClientsRunning"
	PhaseJoining        Phase = "Joining"
	PhaseDone           Phase = "MatchDone"
)

// Match is one game between two clients in a freshly created lobby.
type Match struct {
	Index      int
	LobbyID    LobbyID
	ConfigPath string
	// SideA is started first; SideB joins after the stagger probe.
	SideA string
	SideB string
}

type ClientRun struct {
	Username string
	Result   runner.Result
	Err      error
}

type MatchRun struct {
	LobbyID  LobbyID
	Phase    Phase
	Lobby    runner.Result
	LobbyErr error
	Clients  [2]ClientRun
	TimedOut bool
	Duration time.Duration
}

// Client returns the run of the client that joined under username.
func (r *MatchRun) Client(username string) (ClientRun, bool) {
	for _, c := range r.Clients {
		if c.Username == username {
			return c, true
		}
	}
	return ClientRun{}, false
}

// Launcher owns the long-lived game server and spawns the lobby and clients of
// every match. Matches must not overlap.
type Launcher struct {
	Framework *framework.Framework
	Gate      portgate.Gate

	// ServerReady, LobbyReady and Stagger default to fixed sleeps.
	ServerReady readiness.Factory
	LobbyReady  readiness.Factory
	Stagger     readiness.Factory

	// MatchTimeout bounds a whole match; zero disables it.
	MatchTimeout time.Duration
	KillGrace    time.Duration

	// Echo receives live client output for every username EchoFilter accepts.
	Echo       io.Writer
	EchoFilter func(username string) bool

	// LogDir receives one stdout/stderr file pair per process when set.
	LogDir string

	mu           sync.Mutex
	server       *runner.Process
	serverCancel context.CancelFunc
	serverLogs   *processLogs
}

func (l *Launcher) probe(f readiness.Factory, fallback time.Duration) readiness.Probe {
	if f == nil {
		return readiness.Sleep{Delay: fallback}
	}
	return f()
}

// StartServer frees the coordination port and launches the game server. The
// server lives until Shutdown or until ctx ends.
func (l *Launcher) StartServer(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		return nil
	}

	if l.Gate != nil {
		if err := l.Gate.Release(ctx, l.Framework.Port); err != nil {
			return fmt.Errorf("releasing coordination port %d: %w", l.Framework.Port, err)
		}
	}

	serverCtx, cancel := context.WithCancel(ctx)
	logs := &processLogs{}
	probe := l.probe(l.ServerReady, 2*time.Second)

	cmd := l.Framework.Server()
	proc, err := runner.Start(serverCtx, cmd, l.options(logs, "server", probe, false))
	if err != nil {
		cancel()
		_ = logs.Close()
		return fmt.Errorf("starting game server: %w", err)
	}

	applog.Info("Game server started",
		zap.Int("pid", proc.Pid()),
		zap.Int("port", l.Framework.Port),
		zap.String("cmd", cmd.String()))

	err = waitReady(ctx, probe, proc)
	switch {
	case err == nil:
	case errors.Is(err, readiness.ErrProbeTimeout):
		applog.Warn("Game server readiness not confirmed, continuing",
			zap.Stringer("probe", probe), zap.Error(err))
	default:
		proc.Terminate()
		res, _ := proc.Wait()
		cancel()
		_ = logs.Close()
		applog.Error("Game server failed to start",
			zap.Int("exitCode", res.ExitCode),
			zap.String("stderr", res.Stderr))
		return fmt.Errorf("%w: %w", ErrServerDown, err)
	}

	l.server = proc
	l.serverCancel = cancel
	l.serverLogs = logs
	return nil
}

// Shutdown terminates the server and releases the coordination port. Calling
// it without a running server only releases the port.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	proc, cancel, logs := l.server, l.serverCancel, l.serverLogs
	l.server, l.serverCancel, l.serverLogs = nil, nil, nil
	l.mu.Unlock()

	if proc != nil {
		proc.Terminate()
		select {
		case <-proc.Done():
		case <-ctx.Done():
		}
		cancel()
		res, _ := proc.Wait()
		_ = logs.Close()
		applog.Info("Game server stopped", zap.Int("exitCode", res.ExitCode), zap.Duration("uptime", res.Duration))
	}

	if l.Gate != nil {
		return l.Gate.Release(context.WithoutCancel(ctx), l.Framework.Port)
	}
	return nil
}

// ServerRunning reports whether the server process is still alive.
func (l *Launcher) ServerRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server == nil {
		return false
	}
	select {
	case <-l.server.Done():
		return false
	default:
		return true
	}
}

// RunMatch starts the lobby, then both clients, and joins all three before it
// returns. A match that exceeds MatchTimeout has its processes killed and is
// reported with TimedOut set and a nil error. An error is returned only when a
// process could not be started or never became ready, or when ctx itself ended.
func (l *Launcher) RunMatch(ctx context.Context, m Match) (run MatchRun, err error) {
	run = MatchRun{LobbyID: m.LobbyID, Phase: PhaseIdle}
	run.Clients[0].Username = m.SideA
	run.Clients[1].Username = m.SideB

	ctx = applog.WithLobby(applog.WithMatch(ctx, m.Index), m.LobbyID)
	log := applog.FromContext(ctx)

	matchCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.MatchTimeout > 0 {
		matchCtx, cancel = context.WithTimeout(ctx, l.MatchTimeout)
	}
	defer cancel()

	logs := &processLogs{}
	defer func() { _ = logs.Close() }()

	started := time.Now()
	defer func() { run.Duration = time.Since(started) }()

	setPhase := func(p Phase) {
		run.Phase = p
		log.Debug("Match phase", zap.String("phase", string(p)))
	}

	var group sync.WaitGroup
	var procs []*runner.Process
	abort := func() {
		for _, p := range procs {
			p.Terminate()
		}
		group.Wait()
	}

	setPhase(PhaseLobbyStarting)
	lobbyProbe := l.probe(l.LobbyReady, 2*time.Second)
	lobby, err := runner.Start(matchCtx,
		l.Framework.Lobby(m.ConfigPath, m.LobbyID.String()),
		l.options(logs, logBase(m, "lobby"), lobbyProbe, false))
	if err != nil {
		return run, fmt.Errorf("starting lobby: %w", err)
	}
	procs = append(procs, lobby)
	group.Add(1)
	go func() {
		defer group.Done()
		run.Lobby, run.LobbyErr = lobby.Wait()
	}()

	if err = l.await(matchCtx, log, lobbyProbe, lobby); err != nil {
		abort()
		return run, l.notReady(ctx, matchCtx, &run, "lobby", err)
	}

	setPhase(PhaseClientsRunning)
	staggerProbe := l.probe(l.Stagger, time.Second)
	for i, username := range []string{m.SideA, m.SideB} {
		var probe readiness.Probe
		if i == 0 {
			probe = staggerProbe
		}
		client, err := runner.Start(matchCtx,
			l.Framework.Client(m.ConfigPath, username, m.LobbyID.String()),
			l.options(logs, logBase(m, "client-"+username), probe, l.echoes(username)))
		if err != nil {
			abort()
			return run, fmt.Errorf("starting client %s: %w", username, err)
		}
		procs = append(procs, client)

		group.Add(1)
		go func(slot *ClientRun) {
			defer group.Done()
			slot.Result, slot.Err = client.Wait()
		}(&run.Clients[i])

		if i == 0 {
			if err = l.await(matchCtx, log, staggerProbe, client); err != nil {
				abort()
				return run, l.notReady(ctx, matchCtx, &run, username, err)
			}
		}
	}

	setPhase(PhaseJoining)
	group.Wait()

	if err = ctx.Err(); err != nil {
		return run, err
	}
	if errors.Is(matchCtx.Err(), context.DeadlineExceeded) {
		run.TimedOut = true
		log.Warn("Match timed out, processes were terminated", zap.Duration("timeout", l.MatchTimeout))
	}

	setPhase(PhaseDone)
	return run, nil
}

// notReady turns a failed readiness wait into the error RunMatch returns. A
// match timeout is reported through TimedOut instead.
func (l *Launcher) notReady(ctx, matchCtx context.Context, run *MatchRun, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(matchCtx.Err(), context.DeadlineExceeded) {
		run.TimedOut = true
		applog.FromContext(ctx).Warn("Match timed out before it started", zap.String("waitingFor", what))
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (l *Launcher) echoes(username string) bool {
	return l.Echo != nil && (l.EchoFilter == nil || l.EchoFilter(username))
}

// logBase names a match process's log files. Clients carry a "client-" prefix
// so a player called "lobby" cannot share files with the lobby.
func logBase(m Match, name string) string {
	return fmt.Sprintf("match%03d-%s", m.Index, name)
}

func (l *Launcher) options(logs *processLogs, base string, probe readiness.Probe, echo bool) runner.Options {
	out, errOut := logs.open(l.LogDir, base)
	opts := runner.Options{
		Stream:    true,
		Log:       out,
		ErrLog:    errOut,
		KillGrace: l.KillGrace,
	}
	if echo {
		opts.Echo = l.Echo
	}
	if observer, ok := probe.(readiness.LineObserver); ok {
		opts.OnLine = append(opts.OnLine, observer.Observe)
	}
	return opts
}

// await is waitReady for match processes: a probe that only timed out lets the
// match go on as if it had been a plain sleep.
func (l *Launcher) await(ctx context.Context, log *applog.Logger, probe readiness.Probe, proc *runner.Process) error {
	err := waitReady(ctx, probe, proc)
	if errors.Is(err, readiness.ErrProbeTimeout) {
		log.Warn("Readiness not confirmed, continuing",
			zap.String("process", proc.Name()),
			zap.Stringer("probe", probe),
			zap.Error(err))
		return nil
	}
	return err
}

// waitReady waits on probe but gives up as soon as proc exits.
func waitReady(ctx context.Context, probe readiness.Probe, proc *runner.Process) error {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan error, 1)
	go func() { ready <- probe.Wait(probeCtx) }()

	select {
	case err := <-ready:
		return err
	case <-proc.Done():
		return fmt.Errorf("%w: %s (%s)", ErrNotReady, proc.Name(), probe)
	}
}
