// Package agentbus is a reliable agent-to-agent envelope layer on top of
// Redis Streams with consumer-group semantics.
//
// Every message on the bus is a StandardMessage: an Envelope carrying
// identity, trace and routing metadata around an opaque business Payload.
// Producers publish fire-and-forget; consumers subscribe within a named
// group and receive a never-ending, self-healing sequence of validated
// messages with poison entries acknowledged and filtered out.
//
// A message publisher:
//
//	bus, err := agentbus.New(agentbus.Config{})
//	if err != nil {
//		// broker unreachable at startup: abort, there is no degraded mode
//	}
//	msg := agentbus.NewMessage(agentbus.Payload{"data": agentbus.Int(123)},
//		"photo-agent", "1.4.0", "clues.photo.raw")
//	bus.Publish(ctx, msg)
//
// A message subscriber:
//
//	sub, err := bus.Subscribe(ctx, "intelligence-consumers", "clue-meister-1",
//		[]string{"clues.photo.raw", "clues.interview.raw"}, 0)
//	if err != nil {
//		// group setup failed (permission/config problem)
//	}
//	for msg := range sub.Messages() {
//		// msg is decoded, validated and already acknowledged
//	}
//
// Delivery is at-least-once: entries are acknowledged after the blocking
// read returns them and before they are handed to the caller, so a
// consumer crash mid-processing loses at most the entry in hand. Entries
// that fail to decode are acknowledged and skipped so they cannot wedge
// the group.
package agentbus
