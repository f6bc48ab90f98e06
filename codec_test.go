package agentbus

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	var codec Codec

	orig := NewMessage(Payload{
		"data":   Int(123),
		"text":   Str("sighting at ridge line"),
		"tags":   Array(Str("photo"), Str("raw")),
		"detail": Object(map[string]Value{"lat": Float(47.61), "ok": Bool(true)}),
		"gap":    Null(),
	}, "photo-agent", "1.4.0", "clues.photo.raw")

	body, err := codec.Encode(orig)
	require.NoError(t, err)

	// Records carry unrelated fields; the codec must ignore them.
	got, err := codec.DecodeRecord(map[string]any{
		"body":    body,
		"trace":   "abc123",
		"attempt": "2",
	})
	require.NoError(t, err)

	assert.Equal(t, orig.Envelope, got.Envelope, "identity and timestamp are preserved, not regenerated")
	assert.True(t, orig.Payload.Equal(got.Payload))
}

func TestCodec_BodyAsString(t *testing.T) {
	var codec Codec
	orig := NewMessage(Payload{"data": Int(1)}, "a", "1", "s")
	body, err := codec.Encode(orig)
	require.NoError(t, err)

	got, err := codec.DecodeRecord(map[string]any{"body": string(body)})
	require.NoError(t, err)
	assert.Equal(t, orig.Envelope.MessageID, got.Envelope.MessageID)
}

func TestCodec_MissingBody(t *testing.T) {
	var codec Codec
	_, err := codec.DecodeRecord(map[string]any{"payload": "misplaced"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingBody))
	assert.False(t, errors.Is(err, ErrMalformedBody))
}

func TestCodec_MalformedBody(t *testing.T) {
	var codec Codec
	for _, body := range []string{"{not json", "", "[1,2", `"`} {
		_, err := codec.DecodeRecord(map[string]any{"body": body})
		require.Error(t, err, "body %q", body)
		assert.True(t, errors.Is(err, ErrMalformedBody), "body %q", body)
	}
}

func TestCodec_SchemaViolations(t *testing.T) {
	var codec Codec

	base := func() map[string]any {
		return map[string]any{
			"envelope": map[string]any{
				"message_id":    "0d6af1e6-46e5-4c54-9f3a-0a4f3bb2a111",
				"timestamp_utc": "2026-08-23T10:00:00Z",
				"source_agent":  map[string]any{"name": "agent", "version": "1.0"},
				"target_stream": "clues.raw",
			},
			"payload": map[string]any{"data": 123},
		}
	}

	mutate := map[string]func(m map[string]any){
		"missing source_agent": func(m map[string]any) {
			delete(m["envelope"].(map[string]any), "source_agent")
		},
		"empty source name": func(m map[string]any) {
			m["envelope"].(map[string]any)["source_agent"].(map[string]any)["name"] = ""
		},
		"empty source version": func(m map[string]any) {
			m["envelope"].(map[string]any)["source_agent"].(map[string]any)["version"] = ""
		},
		"missing message_id": func(m map[string]any) {
			delete(m["envelope"].(map[string]any), "message_id")
		},
		"missing timestamp": func(m map[string]any) {
			delete(m["envelope"].(map[string]any), "timestamp_utc")
		},
		"non-RFC3339 timestamp": func(m map[string]any) {
			m["envelope"].(map[string]any)["timestamp_utc"] = "23/08/2026 10:00"
		},
		"empty target_stream": func(m map[string]any) {
			m["envelope"].(map[string]any)["target_stream"] = ""
		},
		"missing payload": func(m map[string]any) {
			delete(m, "payload")
		},
		"missing envelope": func(m map[string]any) {
			delete(m, "envelope")
		},
	}

	for name, mut := range mutate {
		t.Run(name, func(t *testing.T) {
			m := base()
			mut(m)
			body, err := json.Marshal(m)
			require.NoError(t, err)

			_, err = codec.DecodeRecord(map[string]any{"body": body})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation), "got: %v", err)
			assert.False(t, errors.Is(err, ErrMalformedBody))
		})
	}

	// The unmutated record is valid.
	body, err := json.Marshal(base())
	require.NoError(t, err)
	msg, err := codec.DecodeRecord(map[string]any{"body": body})
	require.NoError(t, err)
	assert.Equal(t, "clues.raw", msg.Envelope.TargetStream)
	assert.True(t, msg.Payload.Equal(Payload{"data": Int(123)}))
}

func TestCodec_EmptyPayloadObjectIsValid(t *testing.T) {
	var codec Codec
	orig := NewMessage(Payload{}, "a", "1", "s")
	body, err := codec.Encode(orig)
	require.NoError(t, err)

	got, err := codec.DecodeRecord(map[string]any{"body": body})
	require.NoError(t, err)
	assert.NotNil(t, got.Payload)
	assert.Len(t, got.Payload, 0)
}
