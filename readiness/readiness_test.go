package readiness

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestSleepWaitsForDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep{Delay: 50 * time.Millisecond}.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep{Delay: time.Minute}.Wait(ctx), context.Canceled)
}

func TestLineBecomesReadyOnMatch(t *testing.T) {
	probe, err := NewLine(`Lobby .* created`, time.Second)
	require.NoError(t, err)

	go func() {
		probe.Observe("INFO: starting")
		time.Sleep(20 * time.Millisecond)
		probe.Observe("INFO: Lobby mylobby-1 created")
		probe.Observe("INFO: Lobby mylobby-1 created")
	}()

	assert.NoError(t, probe.Wait(context.Background()))
}

func TestLineTimesOut(t *testing.T) {
	probe, err := NewLine(`never`, 50*time.Millisecond)
	require.NoError(t, err)

	probe.Observe("something else")
	assert.ErrorIs(t, probe.Wait(context.Background()), ErrProbeTimeout)
}

func TestLineRejectsInvalidPattern(t *testing.T) {
	_, err := NewLine(`(`, time.Second)
	assert.Error(t, err)
}

func TestPortProbe(t *testing.T) {
	l, err := nettest.NewLocalListener("tcp4")
	require.NoError(t, err)
	defer l.Close()

	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)

	assert.NoError(t, Port{Host: "127.0.0.1", Port: port, Timeout: time.Second}.Wait(context.Background()))
}

func TestPortProbeTimesOut(t *testing.T) {
	l, err := nettest.NewLocalListener("tcp4")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	require.NoError(t, l.Close())

	err = Port{Host: "127.0.0.1", Port: port, Timeout: 200 * time.Millisecond, Interval: 20 * time.Millisecond}.
		Wait(context.Background())
	assert.ErrorIs(t, err, ErrProbeTimeout)
}

func TestHTTPProbeWaitsForSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := HTTP{URL: srv.URL + "/health", Timeout: 5 * time.Second, Interval: 10 * time.Millisecond}
	require.NoError(t, probe.Wait(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestHTTPProbeTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	probe := HTTP{URL: srv.URL, Timeout: 200 * time.Millisecond, Interval: 20 * time.Millisecond}
	assert.ErrorIs(t, probe.Wait(context.Background()), ErrProbeTimeout)
}

func TestLineFactoryHandsOutIndependentProbes(t *testing.T) {
	factory, err := LineFactory(`ready`, 50*time.Millisecond)
	require.NoError(t, err)

	first := factory()
	first.(LineObserver).Observe("ready")
	assert.NoError(t, first.Wait(context.Background()))

	second := factory()
	assert.ErrorIs(t, second.Wait(context.Background()), ErrProbeTimeout)

	_, err = LineFactory(`[`, time.Second)
	assert.Error(t, err)
}

func TestSleepFactory(t *testing.T) {
	probe := SleepFactory(5 * time.Millisecond)()
	assert.Equal(t, "Sleep{5ms}", probe.String())
	assert.NoError(t, probe.Wait(context.Background()))
}
