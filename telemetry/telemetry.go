package telemetry

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricRelayConnAcceptedCount counts connections handed to a reader task.
	MetricRelayConnAcceptedCount = []string{"relay", "connection", "accepted", "count"}
	MetricRelayAcceptErrorCount  = []string{"relay", "accept", "error", "count"}
	MetricRelayPeersRegistered   = []string{"relay", "peers", "registered"}
	MetricRelayInBytes           = []string{"relay", "in", "bytes"}
	// MetricRelayOutBytes sums bytes written to recipients, so one inbound
	// chunk counts once per recipient.
	MetricRelayOutBytes        = []string{"relay", "out", "bytes"}
	MetricRelayOutErrorCount   = []string{"relay", "out", "error", "count"}
	MetricRelayEventErrorCount = []string{"relay", "event", "error", "count"}
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelEvent    TelemetryLabel = "event"
	LabelPeerAddr TelemetryLabel = "peer_addr"
	LabelSession  TelemetryLabel = "session"
	LabelAddr     TelemetryLabel = "addr"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
