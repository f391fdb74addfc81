package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water_heater/internal/osc"
)

type recordingHandler struct {
	mu      sync.Mutex
	packets [][]byte
	fail    error
}

func (h *recordingHandler) HandlePacket(_ context.Context, data []byte, _ net.Addr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, append([]byte(nil), data...))
	if _, err := osc.Decode(data); err != nil {
		return err
	}
	return h.fail
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets)
}

func startServer(t *testing.T, h PacketHandler) (*OSCServer, context.CancelFunc, <-chan error) {
	t.Helper()
	srv, err := ListenOSC("127.0.0.1:0", h, OSCOptions{
		PollTimeout:  5 * time.Millisecond,
		TickInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	return srv, cancel, done
}

func send(t *testing.T, to net.Addr, data []byte) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestOSCServer_DeliversDatagrams(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	srv, cancel, done := startServer(t, h)

	msg, err := osc.Encode("/sensor/pressure", float32(42))
	require.NoError(t, err)
	send(t, srv.Addr(), msg)

	require.Eventually(t, func() bool { return h.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.mu.Lock()
	assert.Equal(t, msg, h.packets[0])
	h.mu.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestOSCServer_BadDatagramDoesNotAffectNext(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	srv, cancel, done := startServer(t, h)
	defer func() {
		cancel()
		<-done
	}()

	send(t, srv.Addr(), []byte("garbage!"))
	require.Eventually(t, func() bool { return h.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	good, err := osc.Encode("/pressure", int32(3))
	require.NoError(t, err)
	send(t, srv.Addr(), good)
	require.Eventually(t, func() bool { return h.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestOSCServer_HandlerErrorKeepsRunning(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{fail: errors.New("display gone")}
	srv, cancel, done := startServer(t, h)
	defer func() {
		cancel()
		<-done
	}()

	msg, err := osc.Encode("/pressure", int32(3))
	require.NoError(t, err)
	send(t, srv.Addr(), msg)
	send(t, srv.Addr(), msg)
	require.Eventually(t, func() bool { return h.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestOSCServer_ClosedSocketEndsRun(t *testing.T) {
	t.Parallel()
	srv, cancel, done := startServer(t, &recordingHandler{})
	defer cancel()

	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestOSCServer_IdlePollsTimeOut(t *testing.T) {
	t.Parallel()
	srv, err := ListenOSC("127.0.0.1:0", &recordingHandler{}, OSCOptions{PollTimeout: time.Millisecond})
	require.NoError(t, err)
	defer srv.Close()

	start := time.Now()
	require.NoError(t, srv.pollOnce(t.Context()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestListenOSC_DefaultsCadence(t *testing.T) {
	t.Parallel()
	srv, err := ListenOSC("127.0.0.1:0", &recordingHandler{}, OSCOptions{})
	require.NoError(t, err)
	defer srv.Close()

	require.Equal(t, DefaultPollTimeout, srv.poll)
	require.Equal(t, DefaultTickInterval, srv.tick)

	srv2, err := ListenOSC("127.0.0.1:0", &recordingHandler{}, OSCOptions{PollTimeout: -1, TickInterval: -time.Second})
	require.NoError(t, err)
	defer srv2.Close()
	require.Equal(t, time.Second, srv2.tick)
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", normalizeAddr(""))
	assert.Equal(t, ":8080", normalizeAddr("8080"))
	assert.Equal(t, ":8080", normalizeAddr(":8080"))
	assert.Equal(t, "127.0.0.1:8080", normalizeAddr("127.0.0.1:8080"))
}
