package server

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"relay/client"
	"relay/server/hub"
	"relay/telemetry"
)

type countingSink struct {
	metrics.BlackholeSink
	mu       sync.Mutex
	counters map[string]float32
}

func newCountingSink() *countingSink {
	return &countingSink{counters: map[string]float32{}}
}

func (s *countingSink) IncrCounterWithLabels(key []string, val float32, _ []metrics.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[fmt.Sprint(key)] += val
}

func (s *countingSink) counter(key []string) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[fmt.Sprint(key)]
}

type inbox struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (i *inbox) Handle(_ context.Context, data []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.buf.Write(data)
}

func (i *inbox) Bytes() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]byte(nil), i.buf.Bytes()...)
}

type peer struct {
	*client.Client
	inbox *inbox
	done  chan struct{}
}

func startServer(t *testing.T, opts ...Option) *TcpServer {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", opts...)
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown())
		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})
	return srv
}

func join(t *testing.T, srv *TcpServer) *peer {
	t.Helper()
	c, err := client.Connect(srv.Addr().String())
	require.NoError(t, err)

	p := &peer{Client: c, inbox: &inbox{}, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		_ = c.Handle(context.Background(), p.inbox)
	}()
	t.Cleanup(c.Close)

	require.Eventually(t, func() bool {
		peers, err := srv.Hub().Peers()
		if err != nil {
			return false
		}
		for _, id := range peers {
			if id == hub.PeerID(c.LocalAddr()) {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return p
}

func TestServer_Broadcast(t *testing.T) {
	srv := startServer(t)
	a := join(t, srv)
	b := join(t, srv)

	require.NoError(t, a.Send(context.Background(), []byte{1, 2, 3}))
	require.Eventually(t, func() bool {
		return bytes.Equal(b.inbox.Bytes(), []byte{1, 2, 3})
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.Send(context.Background(), []byte("pong")))
	require.Eventually(t, func() bool {
		return len(a.inbox.Bytes()) == len("pong")
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []byte("pong"), a.inbox.Bytes(), "an author never hears its own bytes")
	require.Equal(t, []byte{1, 2, 3}, b.inbox.Bytes())
}

func TestServer_LargePayloadIsChunked(t *testing.T) {
	sink := newCountingSink()
	srv := startServer(t, WithMetricSink(sink))
	a := join(t, srv)
	b := join(t, srv)

	payload := bytes.Repeat([]byte("relay!"), 100)
	require.NoError(t, a.Send(context.Background(), payload))
	require.Eventually(t, func() bool {
		return bytes.Equal(b.inbox.Bytes(), payload)
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return sink.counter(telemetry.MetricRelayInBytes) == float32(len(payload))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServer_ManyPeers(t *testing.T) {
	srv := startServer(t)

	const n, size = 8, 16
	peers := make([]*peer, n)
	for i := range peers {
		peers[i] = join(t, srv)
	}
	for i, p := range peers {
		require.NoError(t, p.Send(context.Background(), bytes.Repeat([]byte{byte('A' + i)}, size)))
	}

	for i, p := range peers {
		require.Eventually(t, func() bool {
			return len(p.inbox.Bytes()) == (n-1)*size
		}, 2*time.Second, 5*time.Millisecond)

		received := p.inbox.Bytes()
		for j := 0; j < n; j++ {
			expected := size
			if j == i {
				expected = 0
			}
			require.Equal(t, expected, bytes.Count(received, []byte{byte('A' + j)}), "peer %d from peer %d", i, j)
		}
	}
}

func TestServer_PeerLeaves(t *testing.T) {
	sink := newCountingSink()
	srv := startServer(t, WithMetricSink(sink))
	a := join(t, srv)
	b := join(t, srv)

	require.NoError(t, a.Send(context.Background(), []byte("last words")))
	require.Eventually(t, func() bool {
		return string(b.inbox.Bytes()) == "last words"
	}, 2*time.Second, 5*time.Millisecond)
	a.Close()

	require.Eventually(t, func() bool {
		peers, err := srv.Hub().Peers()
		return err == nil && len(peers) == 1 && peers[0] == hub.PeerID(b.LocalAddr())
	}, 2*time.Second, 5*time.Millisecond)

	out := sink.counter(telemetry.MetricRelayOutBytes)
	require.NoError(t, b.Send(context.Background(), []byte("anyone?")))
	require.Eventually(t, func() bool {
		return sink.counter(telemetry.MetricRelayInBytes) == float32(len("last words")+len("anyone?"))
	}, 2*time.Second, 5*time.Millisecond)
	_, err := srv.Hub().Peers()
	require.NoError(t, err)
	require.Equal(t, out, sink.counter(telemetry.MetricRelayOutBytes), "nobody is left to deliver to")
	require.Zero(t, sink.counter(telemetry.MetricRelayOutErrorCount))
}

func TestServer_ShutdownDropsPeers(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	a := join(t, srv)
	require.NoError(t, srv.Shutdown())
	require.NoError(t, <-served)

	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		t.Fatal("client still connected after shutdown")
	}
	_, err = srv.Hub().Peers()
	require.ErrorIs(t, err, hub.ErrHubClosed)
	require.NoError(t, srv.Shutdown())
	require.ErrorIs(t, srv.Serve(), ErrServing)
}

func TestListen_AddressInUse(t *testing.T) {
	first, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer first.Shutdown()

	second, err := Listen(first.Addr().String())
	require.ErrorIs(t, err, ErrBind)
	require.Nil(t, second)
}

func TestListen_InvalidOption(t *testing.T) {
	_, err := Listen("127.0.0.1:0", WithReadBufferSize(0))
	require.Error(t, err)
}
