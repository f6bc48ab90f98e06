package agentbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// SourceAgent identifies the producer of a message. Embedded by value;
// never shared or mutated after construction.
type SourceAgent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Envelope is the routing and trace metadata wrapped around a payload.
// All fields are fixed at construction. TimestampUTC reflects when the
// envelope was built, not when the message was published, and is kept as
// the producer's exact RFC 3339 rendering so it survives round trips
// byte-for-byte.
type Envelope struct {
	MessageID    string      `json:"message_id"`
	TimestampUTC string      `json:"timestamp_utc"`
	SourceAgent  SourceAgent `json:"source_agent"`
	TargetStream string      `json:"target_stream"`
}

// Time parses the envelope timestamp.
func (e Envelope) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.TimestampUTC)
}

// StandardMessage is the unit of transport on the bus: one Envelope plus
// one opaque business Payload. Created once by the producer and never
// mutated afterwards.
type StandardMessage struct {
	Envelope Envelope `json:"envelope"`
	Payload  Payload  `json:"payload"`
}

// NewMessage builds a ready-to-publish StandardMessage around payload.
// The message id is a fresh random UUID and the timestamp is taken from
// the default clock at call time. Empty sourceName/sourceVersion is a
// caller bug, not a runtime fault, so there is no error return.
func NewMessage(payload Payload, sourceName, sourceVersion, targetStream string) *StandardMessage {
	return newMessageAt(payload, sourceName, sourceVersion, targetStream, xclock.Default())
}

func newMessageAt(payload Payload, sourceName, sourceVersion, targetStream string, clock xclock.Clock) *StandardMessage {
	return &StandardMessage{
		Envelope: Envelope{
			MessageID:    uuid.NewString(),
			TimestampUTC: clock.Now().UTC().Format(time.RFC3339Nano),
			SourceAgent:  SourceAgent{Name: sourceName, Version: sourceVersion},
			TargetStream: targetStream,
		},
		Payload: payload,
	}
}

// validate enforces the envelope schema on decoded messages. Any miss is
// a schema violation, not a transport error.
func (m *StandardMessage) validate() error {
	if m.Envelope.MessageID == "" {
		return schemaErr("envelope.message_id is empty")
	}
	if m.Envelope.TimestampUTC == "" {
		return schemaErr("envelope.timestamp_utc is empty")
	}
	if _, err := m.Envelope.Time(); err != nil {
		return schemaErr("envelope.timestamp_utc is not RFC 3339")
	}
	if m.Envelope.SourceAgent.Name == "" {
		return schemaErr("envelope.source_agent.name is empty")
	}
	if m.Envelope.SourceAgent.Version == "" {
		return schemaErr("envelope.source_agent.version is empty")
	}
	if m.Envelope.TargetStream == "" {
		return schemaErr("envelope.target_stream is empty")
	}
	if m.Payload == nil {
		return schemaErr("payload is missing")
	}
	return nil
}
