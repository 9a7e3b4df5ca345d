package hub

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"relay/log"
	"relay/telemetry"
)

// Hub is the coordinator: the only goroutine that touches the registry of
// connected peers. Reader tasks talk to it exclusively through Send.
type Hub struct {
	mailbox *mailbox
	msink   metrics.MetricSink
	labels  []metrics.Label

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetricSink sets where the coordinator reports its counters.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(h *Hub) {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		h.msink = ms
	}
}

// WithMetricLabels adds static labels to every metric emitted by the Hub.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(h *Hub) {
		h.labels = labels
	}
}

func New(opts ...Option) *Hub {
	done := make(chan struct{})
	h := &Hub{
		mailbox: newMailbox(done),
		msink:   metrics.Default(),
		done:    done,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send enqueues an event for the coordinator. It never waits for the
// coordinator to process it and fails only once the Hub is closed.
func (h *Hub) Send(ev Event) error {
	return h.mailbox.send(ev)
}

// Peers returns the identities currently registered, sorted. The snapshot is
// taken by the coordinator between two events.
func (h *Hub) Peers() ([]PeerID, error) {
	q := peersQuery{reply: make(chan []PeerID, 1)}
	if err := h.Send(q); err != nil {
		return nil, err
	}
	select {
	case peers := <-q.reply:
		return peers, nil
	case <-h.done:
		return nil, ErrHubClosed
	}
}

// Close stops the coordinator and waits for it to release every registered
// connection. Calling Close more than once is safe.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	if h.running.Load() {
		<-h.stopped
	}
}

// Run processes events one at a time until Close is called. It must be
// called exactly once.
func (h *Hub) Run() {
	h.running.Store(true)
	defer close(h.stopped)

	clients := make(map[PeerID]Client)
	defer func() {
		for id, c := range clients {
			c.Release()
			delete(clients, id)
		}
	}()

	for {
		select {
		case ev := <-h.mailbox.out:
			h.handle(clients, ev)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(clients map[PeerID]Client, ev Event) {
	switch ev := ev.(type) {
	case Connected:
		if old, ok := clients[ev.Peer]; ok && old != ev.Client {
			old.Release()
		}
		clients[ev.Peer] = ev.Client
		log.Info("client connected",
			telemetry.LabelPeerAddr.L(ev.Peer),
			telemetry.LabelSession.L(ev.Client.Session()),
		)
		h.msink.SetGaugeWithLabels(telemetry.MetricRelayPeersRegistered, float32(len(clients)), h.labels)

	case Disconnected:
		c, ok := clients[ev.Peer]
		if !ok {
			return
		}
		delete(clients, ev.Peer)
		c.Release()
		log.Info("client disconnected",
			telemetry.LabelPeerAddr.L(ev.Peer),
			telemetry.LabelSession.L(c.Session()),
		)
		h.msink.SetGaugeWithLabels(telemetry.MetricRelayPeersRegistered, float32(len(clients)), h.labels)

	case Message:
		h.broadcast(clients, ev.Payload, excludePeer(ev.Peer))

	case peersQuery:
		peers := make([]PeerID, 0, len(clients))
		for id := range clients {
			peers = append(peers, id)
		}
		sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
		ev.reply <- peers
	}
}

// broadcastFilter reports whether a peer should receive a broadcast.
type broadcastFilter func(id PeerID) bool

// excludePeer keeps the author out of its own broadcast.
func excludePeer(author PeerID) broadcastFilter {
	return func(id PeerID) bool {
		return id != author
	}
}

func (h *Hub) broadcast(clients map[PeerID]Client, payload []byte, filters ...broadcastFilter) {
	if len(payload) == 0 {
		return
	}

next:
	for id, c := range clients {
		for _, filter := range filters {
			if !filter(id) {
				continue next
			}
		}

		if err := c.Write(payload); err != nil {
			// best effort, the recipient leaves through its own reader
			h.msink.IncrCounterWithLabels(
				telemetry.MetricRelayOutErrorCount,
				1.0,
				append(slices.Clip(h.labels), telemetry.LabelPeerAddr.M(string(id))),
			)
			log.Debug("could not write message to client",
				telemetry.LabelPeerAddr.L(id),
				telemetry.LabelSession.L(c.Session()),
				telemetry.LabelError.L(err),
			)
			continue
		}
		h.msink.IncrCounterWithLabels(telemetry.MetricRelayOutBytes, float32(len(payload)), h.labels)
	}
}
