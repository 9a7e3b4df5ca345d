package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"relay/log"
	"relay/server/hub"
	"relay/telemetry"
)

var (
	// ErrBind is returned by Listen when the address cannot be bound.
	ErrBind = errors.New("server: could not bind listener")
	// ErrServing is returned by Serve when it is called twice.
	ErrServing = errors.New("server: already serving")
)

// DefaultReadBufferSize is the largest chunk a reader relays at once.
const DefaultReadBufferSize = 64

type TcpServer struct {
	hub     *hub.Hub
	bufSize int
	msink   metrics.MetricSink
	labels  []metrics.Label

	closingFlag uint32
	servingFlag uint32
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	l net.Listener
}

// Option configures a TcpServer.
type Option func(*TcpServer) error

// WithReadBufferSize overrides DefaultReadBufferSize.
func WithReadBufferSize(size int) Option {
	return func(s *TcpServer) error {
		if size <= 0 {
			return fmt.Errorf("server.WithReadBufferSize: invalid size (%d)", size)
		}
		s.bufSize = size
		return nil
	}
}

// WithMetricSink chooses how relay metrics are collected.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(s *TcpServer) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		s.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the server.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(s *TcpServer) error {
		s.labels = labels
		return nil
	}
}

// Listen binds addr. Nothing else is started: on error no coordinator exists.
func Listen(addr string, opts ...Option) (*TcpServer, error) {
	s := &TcpServer{
		bufSize: DefaultReadBufferSize,
		msink:   metrics.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s. %w", ErrBind, addr, err)
	}
	s.l = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.hub = hub.New(hub.WithMetricSink(s.msink), hub.WithMetricLabels(s.labels))

	log.Info("server started", telemetry.LabelAddr.L(listener.Addr().String()))
	return s, nil
}

func (s *TcpServer) Addr() net.Addr {
	return s.l.Addr()
}

func (s *TcpServer) Port() int {
	return s.l.Addr().(*net.TCPAddr).Port
}

// Serve starts the coordinator and accepts connections until Shutdown. Each
// connection gets its own reader goroutine.
func (s *TcpServer) Serve() error {
	if !atomic.CompareAndSwapUint32(&s.servingFlag, 0, 1) {
		return ErrServing
	}
	if atomic.LoadUint32(&s.closingFlag) == 1 {
		return nil
	}
	s.wg.Add(1)
	defer s.wg.Done()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	r := &reader{
		events:  s.hub,
		bufSize: s.bufSize,
		msink:   s.msink,
		labels:  s.labels,
	}

	for {
		c, err := s.l.Accept()
		if err != nil {
			if atomic.LoadUint32(&s.closingFlag) == 1 {
				return nil
			}

			s.msink.IncrCounterWithLabels(telemetry.MetricRelayAcceptErrorCount, 1.0, s.labels)
			log.Err("could not accept connection", telemetry.LabelError.L(err))
			continue
		}

		conn := newNetConn(c)
		stop := context.AfterFunc(s.ctx, conn.close)
		s.msink.IncrCounterWithLabels(telemetry.MetricRelayConnAcceptedCount, 1.0, s.labels)

		s.wg.Add(1)
		go func() {
			defer func() {
				stop()
				s.wg.Done()
			}()
			r.run(conn)
		}()
	}
}

// Hub exposes the coordinator. It only processes events while Serve runs.
func (s *TcpServer) Hub() *hub.Hub {
	return s.hub
}

// Shutdown stops accepting, drops every live connection and waits for the
// coordinator and all readers to exit.
func (s *TcpServer) Shutdown() error {
	if !atomic.CompareAndSwapUint32(&s.closingFlag, 0, 1) {
		return nil
	}
	log.Info("shutting down server", telemetry.LabelAddr.L(s.l.Addr().String()))

	err := s.l.Close()
	s.cancel()
	s.hub.Close()
	s.wg.Wait()
	return err
}
