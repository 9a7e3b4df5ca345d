package server

import (
	"errors"
	"io"
	"net"
	"slices"

	"github.com/hashicorp/go-metrics"

	"relay/log"
	"relay/server/hub"
	"relay/telemetry"
)

// eventSender is the write side of the coordinator's mailbox.
type eventSender interface {
	Send(ev hub.Event) error
}

type reader struct {
	events  eventSender
	bufSize int
	msink   metrics.MetricSink
	labels  []metrics.Label
}

// run announces conn, relays every chunk read from it and announces the
// disconnection once a read fails. It never returns an error: whatever
// happens here must not affect other peers.
func (r *reader) run(conn *netConn) {
	defer conn.Release()

	if !r.send(conn, hub.Connected{Peer: conn.Identity(), Client: conn}) {
		// the coordinator never took its share, nobody would hear from us
		conn.Release()
		return
	}

	buf := make([]byte, r.bufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if r.send(conn, hub.Message{Peer: conn.Identity(), Payload: payload}) {
				r.msink.IncrCounterWithLabels(telemetry.MetricRelayInBytes, float32(n), r.labels)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Err("could not read message from client",
					telemetry.LabelPeerAddr.L(conn.Identity()),
					telemetry.LabelSession.L(conn.Session()),
					telemetry.LabelError.L(err),
				)
			}
			break
		}
	}

	r.send(conn, hub.Disconnected{Peer: conn.Identity()})
}

func (r *reader) send(conn *netConn, ev hub.Event) bool {
	if err := r.events.Send(ev); err != nil {
		r.msink.IncrCounterWithLabels(
			telemetry.MetricRelayEventErrorCount,
			1.0,
			append(slices.Clip(r.labels), telemetry.LabelEvent.M(hub.EventName(ev))),
		)
		log.Err("could not send event to the coordinator",
			telemetry.LabelEvent.L(hub.EventName(ev)),
			telemetry.LabelPeerAddr.L(conn.Identity()),
			telemetry.LabelSession.L(conn.Session()),
			telemetry.LabelError.L(err),
		)
		return false
	}
	return true
}
