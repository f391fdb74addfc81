package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"water_heater/internal/logger"
	"water_heater/internal/osc"
)

// PacketHandler consumes one datagram. It runs synchronously on the server
// loop.
type PacketHandler interface {
	HandlePacket(ctx context.Context, data []byte, src net.Addr) error
}

// Receive cadence used when OSCOptions leaves a field zero.
const (
	DefaultPollTimeout  = time.Millisecond
	DefaultTickInterval = time.Second
)

// OSCOptions tunes the receive loop.
type OSCOptions struct {
	// PollTimeout bounds each wait for a datagram.
	PollTimeout time.Duration
	// TickInterval is the pause between polls.
	TickInterval time.Duration
	Log          *logger.Logger
}

// OSCServer polls a UDP socket for OSC datagrams, at most one per tick.
type OSCServer struct {
	conn    net.PacketConn
	handler PacketHandler
	poll    time.Duration
	tick    time.Duration
	log     *logger.Logger
	buf     []byte
}

// ListenOSC binds addr ("host:port") and returns a server ready to Run.
func ListenOSC(addr string, handler PacketHandler, opts OSCOptions) (*OSCServer, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &OSCServer{
		conn:    conn,
		handler: handler,
		poll:    opts.PollTimeout,
		tick:    opts.TickInterval,
		log:     opts.Log,
		// one spare byte detects datagrams over the limit
		buf: make([]byte, osc.MaxDatagramSize+1),
	}, nil
}

// Addr is the bound local address.
func (s *OSCServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the socket. A running Run returns an error afterwards.
func (s *OSCServer) Close() error {
	return s.conn.Close()
}

// Run polls until ctx is done or the socket fails for good. Transient read
// errors and bad datagrams are logged and skipped.
func (s *OSCServer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.log.Infow("osc_server_listening", "addr", s.Addr().String())
	for {
		if err := s.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := sleep(ctx, s.tick); err != nil {
			return err
		}
	}
}

// pollOnce waits up to the poll timeout for one datagram and handles it. Only
// a closed socket is returned as an error.
func (s *OSCServer) pollOnce(ctx context.Context) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	n, src, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			return nil
		case errors.Is(err, net.ErrClosed):
			return fmt.Errorf("osc socket: %w", err)
		default:
			s.log.Warnw("osc_read_failed", "err", err)
			return nil
		}
	}
	if n > osc.MaxDatagramSize {
		s.log.Debugw("osc_datagram_oversized", "src", src.String())
		return nil
	}

	if err := s.handler.HandlePacket(ctx, s.buf[:n], src); err != nil {
		if errors.Is(err, osc.ErrMalformedPacket) {
			s.log.Debugw("osc_datagram_dropped", "src", src.String(), "err", err)
		} else {
			s.log.Warnw("osc_dispatch_failed", "src", src.String(), "err", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
