package agentbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xlog"
)

// Subscription is one consumer's live membership in a group over a set of
// streams. A dedicated goroutine runs the delivery loop and feeds
// Messages; the loop never terminates on transient errors, only on
// context cancellation or Close.
//
// Each iteration is a blocked read, then decode, then an ack, then either
// a yield or a skip. Unexpected transport errors, on the read or on the
// ack, detour through a fixed backoff and back to the blocked read; only
// acknowledged entries are ever yielded.
type Subscription struct {
	bus      *Bus
	group    string
	consumer string
	streams  []string
	block    time.Duration

	msgs   chan *StandardMessage
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// Subscribe joins group as consumer on streams and starts the delivery
// loop. Each stream's group is ensured first (idempotent); a setup
// failure other than "already exists" aborts the subscription. block
// bounds each broker read; zero or negative blocks indefinitely.
//
// One blocking read is in flight at a time and entries are handled
// strictly in log order. Run multiple subscriptions in the same group,
// in other goroutines or other processes, to split the work; the broker
// hands each undelivered entry to at most one consumer.
func (b *Bus) Subscribe(ctx context.Context, group, consumer string, streams []string, block time.Duration) (*Subscription, error) {
	if group == "" || consumer == "" || len(streams) == 0 {
		return nil, ErrInvalidSubscription
	}
	for _, stream := range streams {
		if err := b.EnsureGroup(ctx, stream, group); err != nil {
			return nil, err
		}
	}
	if block < 0 {
		block = 0
	}

	inner, cancel := context.WithCancel(ctx)
	s := &Subscription{
		bus:      b,
		group:    group,
		consumer: consumer,
		streams:  streams,
		block:    block,
		msgs:     make(chan *StandardMessage),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	b.logger.With(
		xlog.Str("group", group),
		xlog.Str("consumer", consumer),
		xlog.Str("streams", strings.Join(streams, ",")),
	).Info().Msg("agentbus: consumer listening")

	go s.run(inner)
	return s, nil
}

// Messages returns the channel of decoded, validated, already
// acknowledged messages. It is closed when the subscription ends.
func (s *Subscription) Messages() <-chan *StandardMessage {
	return s.msgs
}

// Next is the pull form of Messages: it blocks for the next message,
// returns ErrSubscriptionClosed once the subscription has ended, or the
// context error if ctx finishes first.
func (s *Subscription) Next(ctx context.Context) (*StandardMessage, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the delivery loop and waits for it, then Messages is
// closed. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *Subscription) run(ctx context.Context) {
	defer func() {
		close(s.msgs)
		close(s.done)
	}()

	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  readKeys(s.streams),
		Count:    1,
		Block:    s.block,
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := s.bus.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, redis.Nil) {
				// Block timeout with nothing pending: read again.
				continue
			}
			s.bus.metrics.transportRetries.Add(1)
			s.bus.logger.With(xlog.Str("group", s.group)).Error().Err(err).
				Msg("agentbus: read failed, backing off")
			select {
			case <-time.After(s.bus.cfg.Backoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for i := range res {
			for j := range res[i].Messages {
				if !s.deliver(ctx, res[i].Stream, res[i].Messages[j]) {
					return
				}
			}
		}
	}
}

// deliver handles one entry end to end. The entry is acknowledged whether
// or not it decodes: a permanently malformed record is a poison message
// and must never be retried forever. An entry is only ever yielded after
// a successful ack; an ack failure is a transport fault, so it takes the
// same backoff detour as a failed read and the entry stays pending for
// reclaim rather than being yielded once now and again on redelivery.
// Returns false when the loop should exit.
func (s *Subscription) deliver(ctx context.Context, stream string, entry redis.XMessage) bool {
	s.bus.metrics.consumed.Add(1)

	msg, decodeErr := s.bus.codec.DecodeRecord(entry.Values)
	if decodeErr != nil {
		s.deadLetter(ctx, stream, entry)
	}

	if err := s.bus.client.XAck(ctx, stream, s.group, entry.ID).Err(); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.bus.metrics.transportRetries.Add(1)
		s.bus.logger.With(
			xlog.Str("stream", stream),
			xlog.Str("entry_id", entry.ID),
		).Error().Err(err).Msg("agentbus: ack failed, entry left pending")
		select {
		case <-time.After(s.bus.cfg.Backoff):
		case <-ctx.Done():
			return false
		}
		return true
	}
	s.bus.metrics.acked.Add(1)

	if decodeErr != nil {
		s.bus.metrics.decodeFailures.Add(1)
		s.bus.logger.With(
			xlog.Str("stream", stream),
			xlog.Str("entry_id", entry.ID),
		).Warn().Err(decodeErr).Msg("agentbus: unparseable entry acknowledged and skipped")
		return true
	}

	select {
	case s.msgs <- msg:
		s.bus.metrics.yielded.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// deadLetter copies a poison entry's raw record to the configured
// dead-letter stream. Best effort: a failed copy is logged and the entry
// is still acknowledged.
func (s *Subscription) deadLetter(ctx context.Context, stream string, entry redis.XMessage) {
	dl := s.bus.cfg.DeadLetter
	if dl == "" {
		return
	}
	values := make(map[string]any, 2+len(entry.Values))
	values["orig_stream"] = stream
	values["orig_id"] = entry.ID
	for k, v := range entry.Values {
		values[k] = v
	}
	err := s.bus.client.XAdd(ctx, &redis.XAddArgs{Stream: dl, ID: "*", Values: values}).Err()
	if err != nil && ctx.Err() == nil {
		s.bus.logger.With(
			xlog.Str("stream", dl),
			xlog.Str("orig_id", entry.ID),
		).Error().Err(err).Msg("agentbus: dead-letter copy failed")
	}
}

// readKeys builds the XREADGROUP key list: every stream name followed by
// one ">" cursor per stream.
func readKeys(streams []string) []string {
	keys := make([]string, 0, 2*len(streams))
	keys = append(keys, streams...)
	for range streams {
		keys = append(keys, ">")
	}
	return keys
}
