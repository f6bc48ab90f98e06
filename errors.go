package agentbus

import (
	"errors"
	"fmt"
)

// Decode failure taxonomy. Every decode error wraps exactly one of these
// sentinels so callers can classify with errors.Is. A failing entry is a
// poison message: the delivery loop acknowledges it and moves on.
var (
	// ErrMissingBody marks a stream record without a "body" field.
	ErrMissingBody = errors.New("agentbus: record has no body field")
	// ErrMalformedBody marks a body that is not parseable JSON.
	ErrMalformedBody = errors.New("agentbus: malformed message body")
	// ErrSchemaViolation marks a parseable body missing required
	// envelope or payload fields.
	ErrSchemaViolation = errors.New("agentbus: message schema violation")
)

// ErrSubscriptionClosed is returned by Subscription.Next after the
// subscription has been closed and drained.
var ErrSubscriptionClosed = errors.New("agentbus: subscription closed")

// ErrInvalidSubscription is returned by Subscribe when the group,
// consumer name or stream list is empty.
var ErrInvalidSubscription = errors.New("agentbus: invalid subscription")

func schemaErr(detail string) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, detail)
}
