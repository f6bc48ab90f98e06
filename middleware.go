package agentbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trickstertwo/xlog"
)

// Handler processes one delivered message. By the time a handler runs the
// entry is already acknowledged, so a returned error cannot trigger a
// redelivery; Consume logs it and moves on.
type Handler func(ctx context.Context, msg *StandardMessage) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Chain composes middlewares around a handler in order, first wrapping
// outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// RecoveryMiddleware converts handler panics into errors so one bad
// message cannot take the consumer loop down.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *StandardMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// Consume subscribes and runs handler for every yielded message, with
// recovery wrapped around the whole chain so a panic in the handler or in
// any supplied middleware is logged and the loop keeps going. It returns
// nil when the subscription drains after cancellation, or the context
// error if ctx ends first. Group setup failures propagate before any
// message is read.
func (b *Bus) Consume(ctx context.Context, group, consumer string, streams []string, block time.Duration, handler Handler, mws ...Middleware) error {
	if handler == nil {
		return ErrInvalidSubscription
	}
	sub, err := b.Subscribe(ctx, group, consumer, streams, block)
	if err != nil {
		return err
	}
	defer sub.Close()

	wh := RecoveryMiddleware()(Chain(handler, mws...))

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		if herr := wh(ctx, msg); herr != nil {
			b.logger.With(
				xlog.Str("group", group),
				xlog.Str("message_id", msg.Envelope.MessageID),
			).Warn().Err(herr).Msg("agentbus: handler failed")
		}
	}
}
