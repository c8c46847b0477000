package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	servergrpc "github.com/dmitrijs2005/voicenotes/internal/server/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (f *fakeChecker) Check(ctx context.Context) error {
	f.calls.Add(1)
	if f.up.Load() {
		return nil
	}
	return errors.New("down")
}

func TestSetOnline_SignalsOnlyOnRegain(t *testing.T) {
	m := NewMonitor(nil)
	assert.False(t, m.Online())
	assert.Equal(t, ModeOffline, m.Mode())

	m.SetOnline(false)
	select {
	case <-m.Regained():
		t.Fatal("no transition expected")
	default:
	}

	m.SetOnline(true)
	m.SetOnline(true)
	assert.Equal(t, ModeOnline, m.Mode())

	select {
	case <-m.Regained():
	default:
		t.Fatal("expected a regained signal")
	}
	select {
	case <-m.Regained():
		t.Fatal("signals must coalesce")
	default:
	}

	m.SetOnline(false)
	m.SetOnline(true)
	select {
	case <-m.Regained():
	default:
		t.Fatal("expected a second regained signal")
	}
}

func TestProbe_FollowsChecker(t *testing.T) {
	c := &fakeChecker{}
	m := NewMonitor(c, WithLogger(logging.Nop{}))

	assert.False(t, m.Probe(context.Background()))
	assert.False(t, m.Online())

	c.up.Store(true)
	assert.True(t, m.Probe(context.Background()))
	assert.True(t, m.Online())

	c.up.Store(false)
	assert.False(t, m.Probe(context.Background()))
	assert.False(t, m.Online())
}

func TestProbe_NilCheckerKeepsManualState(t *testing.T) {
	m := NewMonitor(nil)
	m.SetOnline(true)
	assert.True(t, m.Probe(context.Background()))
}

func TestRun_ProbesPeriodicallyUntilCancelled(t *testing.T) {
	c := &fakeChecker{}
	c.up.Store(true)
	m := NewMonitor(c, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Online())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestHealthChecker_AgainstHealthServer(t *testing.T) {
	require.Equal(t, servergrpc.ServiceName, ServiceName)

	srv := servergrpc.NewHealthServer("127.0.0.1:0", logging.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Run(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr() != "127.0.0.1:0" }, 2*time.Second, 5*time.Millisecond)

	hc, err := NewHealthChecker(srv.Addr())
	require.NoError(t, err)
	defer hc.Close()

	m := NewMonitor(hc, WithProbeTimeout(2*time.Second))
	require.Eventually(t, func() bool { return m.Probe(context.Background()) }, 2*time.Second, 20*time.Millisecond)

	srv.SetServing(false)
	assert.False(t, m.Probe(context.Background()))
}

func TestHealthChecker_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	hc, err := NewHealthChecker(addr)
	require.NoError(t, err)
	defer hc.Close()

	m := NewMonitor(hc, WithProbeTimeout(200*time.Millisecond))
	assert.False(t, m.Probe(context.Background()))
}
