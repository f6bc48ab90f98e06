package agentbus

import (
	"encoding/json"
	"fmt"
)

// fieldBody is the one stream-record field the codec cares about. Any
// other fields on a record are ignored.
const fieldBody = "body"

// Codec serializes StandardMessages to and from the wire. The wire format
// is field-tagged JSON of the whole message, stored under the record's
// "body" field; it round-trips exactly but is not guaranteed byte-stable
// across versions.
type Codec struct{}

// Encode renders the message as its JSON wire form.
func (Codec) Encode(m *StandardMessage) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a raw message body.
func (c Codec) Decode(body []byte) (*StandardMessage, error) {
	var m StandardMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeRecord parses a stream record's value map as produced by
// XREADGROUP. The record contract is a single "body" field holding the
// encoded message; its absence is a distinct failure from a malformed
// body, and both are reported as wrapped sentinels rather than panics so
// the delivery loop can treat them as skip-and-acknowledge.
func (c Codec) DecodeRecord(values map[string]any) (*StandardMessage, error) {
	raw, ok := values[fieldBody]
	if !ok {
		return nil, ErrMissingBody
	}
	return c.Decode(asBytes(raw))
}

// asBytes coerces the value types go-redis hands back for record fields.
func asBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return []byte(fmt.Sprintf("%v", b))
	}
}
