package agentbus

import "sync/atomic"

// busMetrics uses lock-free atomics shared by all subscriptions of a Bus.
type busMetrics struct {
	published        atomic.Uint64
	publishErrors    atomic.Uint64
	consumed         atomic.Uint64
	acked            atomic.Uint64
	decodeFailures   atomic.Uint64
	yielded          atomic.Uint64
	transportRetries atomic.Uint64
}

// Metrics is a point-in-time snapshot of bus telemetry.
//
// PublishErrors is the only caller-visible trace of dropped messages:
// publish is fire-and-forget, so failures never surface as return values.
type Metrics struct {
	Published        uint64
	PublishErrors    uint64
	Consumed         uint64
	Acked            uint64
	DecodeFailures   uint64
	Yielded          uint64
	TransportRetries uint64
}

func (m *busMetrics) snapshot() Metrics {
	return Metrics{
		Published:        m.published.Load(),
		PublishErrors:    m.publishErrors.Load(),
		Consumed:         m.consumed.Load(),
		Acked:            m.acked.Load(),
		DecodeFailures:   m.decodeFailures.Load(),
		Yielded:          m.yielded.Load(),
		TransportRetries: m.transportRetries.Load(),
	}
}
