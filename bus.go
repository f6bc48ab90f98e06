package agentbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Bus is one session against the broker. It is explicitly constructed and
// explicitly owned; there is no package-level default instance. A Bus is
// not safe for overlapping publish/subscribe calls from multiple
// goroutines without external synchronization; give each logical worker
// its own handle.
type Bus struct {
	client  *redis.Client
	codec   Codec
	clock   xclock.Clock
	logger  *xlog.Logger
	cfg     Config
	metrics *busMetrics

	closeOnce sync.Once
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock injects a custom xclock clock, used to stamp envelopes built
// via Bus.NewMessage.
func WithClock(c xclock.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// New connects to the broker and verifies liveness with a ping probe.
// An unreachable broker is the one failure that propagates instead of
// being retried: there is no meaningful degraded mode at startup.
func New(cfg Config, opts ...Option) (*Bus, error) {
	cfg = cfg.withDefaults()

	b := &Bus{
		cfg:     cfg,
		clock:   xclock.Default(),
		logger:  xlog.Default(),
		metrics: &busMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}

	ropts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("agentbus: invalid broker url %q: %w", cfg.URL, err)
	}
	b.client = redis.NewClient(ropts)

	if err := b.ping(); err != nil {
		_ = b.client.Close()
		return nil, fmt.Errorf("agentbus: broker unreachable at %s: %w", cfg.URL, err)
	}

	b.logger.With(xlog.Str("url", cfg.URL)).Info().Msg("agentbus: connected")
	return b, nil
}

func (b *Bus) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PingTimeout)
	defer cancel()

	res, err := b.client.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected ping result: %s", res)
	}
	return nil
}

// NewMessage builds a StandardMessage stamped with the bus clock.
func (b *Bus) NewMessage(payload Payload, sourceName, sourceVersion, targetStream string) *StandardMessage {
	return newMessageAt(payload, sourceName, sourceVersion, targetStream, b.clock)
}

// Publish encodes msg and appends it to the stream named by
// envelope.target_stream. Fire-and-forget: transport failures are logged
// and the message is dropped: producers stay simple at the
// cost of silent loss on transient broker errors. Metrics carry the
// error count for anyone who needs the signal.
func (b *Bus) Publish(ctx context.Context, msg *StandardMessage) {
	stream := msg.Envelope.TargetStream

	body, err := b.codec.Encode(msg)
	if err != nil {
		b.metrics.publishErrors.Add(1)
		b.logger.With(xlog.Str("stream", stream)).Error().Err(err).Msg("agentbus: encode failed, message dropped")
		return
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{fieldBody: body},
	}).Err()
	if err != nil {
		b.metrics.publishErrors.Add(1)
		b.logger.With(xlog.Str("stream", stream)).Error().Err(err).Msg("agentbus: publish failed, message dropped")
		return
	}

	b.metrics.published.Add(1)
	b.logger.With(
		xlog.Str("stream", stream),
		xlog.Str("message_id", msg.Envelope.MessageID),
	).Debug().Msg("agentbus: published")
}

// EnsureGroup creates stream (if absent) and a consumer group over it
// positioned at the start of the log. Idempotent: an already existing
// group is not an error. Anything else indicates a permission or
// configuration problem that will recur, and propagates.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			b.logger.With(
				xlog.Str("stream", stream),
				xlog.Str("group", group),
			).Debug().Msg("agentbus: group already exists")
			return nil
		}
		return fmt.Errorf("agentbus: create group %q on %q: %w", group, stream, err)
	}

	b.logger.With(
		xlog.Str("stream", stream),
		xlog.Str("group", group),
	).Info().Msg("agentbus: created consumer group")
	return nil
}

// Metrics returns a snapshot of the session's counters.
func (b *Bus) Metrics() Metrics {
	return b.metrics.snapshot()
}

// Close releases the broker connection. Subscriptions should be closed
// first; their loops exit on the resulting transport errors only after a
// backoff cycle.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.client.Close()
	})
	return err
}
