//go:build !windows

package topology

import (
	"arena-harness/framework"
	"arena-harness/readiness"
	"bytes"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeFramework stands in for "java -jar <jar> <subcommand> ...". Clients whose
// username contains "hang" never finish, "crash" exits immediately, everyone
// else reports a result and exits.
const fakeFramework = `#!/bin/sh
sub="$3"
case "$sub" in
server)
	echo "server listening"
	exec sleep 30
	;;
create)
	echo "Lobby $9 created"
	sleep 1
	;;
client)
	user="$7"
	case "$user" in
	*hang*)  exec sleep 30 ;;
	*crash*) echo "boom" >&2; exit 3 ;;
	esac
	echo "client $user connected"
	sleep 0.1
	echo "INFO: You ($user) won!"
	;;
*)
	echo "unknown subcommand $sub" >&2
	exit 2
	;;
esac
`

type recordingGate struct {
	mu    sync.Mutex
	ports []int
}

func (g *recordingGate) Release(_ context.Context, port int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ports = append(g.ports, port)
	return nil
}

func (g *recordingGate) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ports)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLauncher(t *testing.T) (*Launcher, *recordingGate) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-java")
	require.NoError(t, os.WriteFile(script, []byte(fakeFramework), 0o755))

	gate := &recordingGate{}
	return &Launcher{
		Framework: &framework.Framework{
			Java:    script,
			Jar:     "fake.jar",
			Referee: "OthelloReferee",
			Engine:  "engine",
			Host:    "localhost",
			Port:    61235,
			Dir:     dir,
		},
		Gate:         gate,
		ServerReady:  readiness.SleepFactory(10 * time.Millisecond),
		LobbyReady:   readiness.SleepFactory(10 * time.Millisecond),
		Stagger:      readiness.SleepFactory(10 * time.Millisecond),
		MatchTimeout: 10 * time.Second,
		KillGrace:    200 * time.Millisecond,
	}, gate
}

func TestNewLobbyID(t *testing.T) {
	a := NewLobbyID("mylobby")
	b := NewLobbyID("mylobby")
	assert.True(t, strings.HasPrefix(a.String(), "mylobby-"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(NewLobbyID("  ").String(), DefaultLobbyPrefix+"-"))
}

func TestRunMatchJoinsLobbyAndBothClients(t *testing.T) {
	l, _ := newTestLauncher(t)
	echo := &syncBuffer{}
	l.Echo = echo
	l.EchoFilter = func(username string) bool { return username == "my_player" }
	l.LogDir = filepath.Join(t.TempDir(), "logs")

	run, err := l.RunMatch(context.Background(), Match{
		Index:      1,
		LobbyID:    "mylobby-1",
		ConfigPath: "Othello.json",
		SideA:      "random_player",
		SideB:      "my_player",
	})
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, run.Phase)
	assert.False(t, run.TimedOut)
	assert.Contains(t, run.Lobby.Stdout, "Lobby mylobby-1 created")

	self, ok := run.Client("my_player")
	require.True(t, ok)
	assert.NoError(t, self.Err)
	assert.Contains(t, self.Result.Stdout, "INFO: You (my_player) won!")

	opp, ok := run.Client("random_player")
	require.True(t, ok)
	assert.Contains(t, opp.Result.Stdout, "INFO: You (random_player) won!")

	assert.Contains(t, echo.String(), "[my_player] INFO: You (my_player) won!")
	assert.NotContains(t, echo.String(), "random_player")

	out, err := os.ReadFile(filepath.Join(l.LogDir, "match001-client-my_player.out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "won!")
	assert.FileExists(t, filepath.Join(l.LogDir, "match001-lobby.err.log"))
}

func TestRunMatchWaitsForLobbyLine(t *testing.T) {
	l, _ := newTestLauncher(t)
	lobbyReady, err := readiness.LineFactory(`Lobby .* created`, 5*time.Second)
	require.NoError(t, err)
	l.LobbyReady = lobbyReady
	clientReady, err := readiness.LineFactory(`connected`, 5*time.Second)
	require.NoError(t, err)
	l.Stagger = clientReady

	run, err := l.RunMatch(context.Background(), Match{Index: 2, LobbyID: "mylobby-2", SideA: "a", SideB: "b"})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, run.Phase)
}

func TestRunMatchTimeoutTerminatesHungClients(t *testing.T) {
	l, _ := newTestLauncher(t)
	l.MatchTimeout = 700 * time.Millisecond

	start := time.Now()
	run, err := l.RunMatch(context.Background(), Match{Index: 3, LobbyID: "mylobby-3", SideA: "hang_a", SideB: "hang_b"})
	require.NoError(t, err)

	assert.True(t, run.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
	for _, c := range run.Clients {
		assert.ErrorIs(t, c.Err, context.DeadlineExceeded)
	}
}

func TestRunMatchFirstClientCrashAbortsMatch(t *testing.T) {
	l, _ := newTestLauncher(t)
	l.Stagger = readiness.SleepFactory(2 * time.Second)

	run, err := l.RunMatch(context.Background(), Match{Index: 4, LobbyID: "mylobby-4", SideA: "crash_bot", SideB: "my_player"})
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, PhaseClientsRunning, run.Phase)
	assert.Equal(t, 3, run.Clients[0].Result.ExitCode)
	assert.Empty(t, run.Clients[1].Result.Stdout)
}

func TestRunMatchMissingExecutable(t *testing.T) {
	l, _ := newTestLauncher(t)
	l.Framework.Java = filepath.Join(t.TempDir(), "missing-java")

	_, err := l.RunMatch(context.Background(), Match{Index: 5, LobbyID: "mylobby-5", SideA: "a", SideB: "b"})
	assert.Error(t, err)
}

func TestRunMatchParentCancellation(t *testing.T) {
	l, _ := newTestLauncher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := l.RunMatch(ctx, Match{Index: 6, LobbyID: "mylobby-6", SideA: "hang_a", SideB: "hang_b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerLifecycle(t *testing.T) {
	l, gate := newTestLauncher(t)

	require.NoError(t, l.StartServer(context.Background()))
	assert.True(t, l.ServerRunning())
	assert.Equal(t, 1, gate.calls())

	// A second start is a no-op while the server runs.
	require.NoError(t, l.StartServer(context.Background()))
	assert.Equal(t, 1, gate.calls())

	require.NoError(t, l.Shutdown(context.Background()))
	assert.False(t, l.ServerRunning())
	assert.Equal(t, 2, gate.calls())

	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, 3, gate.calls())
}

func TestServerThatExitsImmediatelyFailsToStart(t *testing.T) {
	l, _ := newTestLauncher(t)
	l.Framework.Java = "/bin/false"
	l.ServerReady = readiness.SleepFactory(2 * time.Second)

	err := l.StartServer(context.Background())
	assert.ErrorIs(t, err, ErrServerDown)
	assert.False(t, l.ServerRunning())
}

func TestRunMatchProbeTimeoutFallsThrough(t *testing.T) {
	l, _ := newTestLauncher(t)
	never, err := readiness.LineFactory(`never printed`, 50*time.Millisecond)
	require.NoError(t, err)
	l.LobbyReady = never

	run, err := l.RunMatch(context.Background(), Match{Index: 7, LobbyID: "mylobby-7", SideA: "a", SideB: "my_player"})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, run.Phase)
	self, _ := run.Client("my_player")
	assert.Contains(t, self.Result.Stdout, "won!")
}

func TestServerWaitsForReadyLine(t *testing.T) {
	l, _ := newTestLauncher(t)
	ready, err := readiness.LineFactory(`server listening`, 5*time.Second)
	require.NoError(t, err)
	l.ServerReady = ready
	l.LogDir = filepath.Join(t.TempDir(), "logs")

	start := time.Now()
	require.NoError(t, l.StartServer(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, l.ServerRunning())

	require.NoError(t, l.Shutdown(context.Background()))
	out, err := os.ReadFile(filepath.Join(l.LogDir, "server.out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "server listening")
}

func TestClientNamedLobbyKeepsSeparateLogs(t *testing.T) {
	l, _ := newTestLauncher(t)
	l.LogDir = filepath.Join(t.TempDir(), "logs")

	_, err := l.RunMatch(context.Background(), Match{Index: 8, LobbyID: "mylobby-8", SideA: "lobby", SideB: "my_player"})
	require.NoError(t, err)

	lobbyOut, err := os.ReadFile(filepath.Join(l.LogDir, "match008-lobby.out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(lobbyOut), "Lobby mylobby-8 created")

	clientOut, err := os.ReadFile(filepath.Join(l.LogDir, "match008-client-lobby.out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(clientOut), "INFO: You (lobby) won!")
}
