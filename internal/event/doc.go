/*
Package event provides a type-safe pub/sub event system for the Warden engine.

The event system enables decoupled communication between components by allowing
publishers to emit events and subscribers to react to them without direct
dependencies. It is the engine's broadcast boundary: publishing with no
subscribers is a no-op.

# Architecture

Dispatch is by direct call so event data keeps its concrete Go type. A
watermill gochannel carries a parallel JSON feed of every event: call Feed and
subscribe to FeedTopic to consume it, e.g. when bridging events onto an
external transport.

# Event Types

Session Events:
  - session.created: New session created
  - session.status: Session status changed
  - session.forked: Session forked from a parent
  - session.archived: Working directory archived

Stream Events:
  - message.created: New message persisted
  - toolcall.updated: Tool call opened or resolved

Enforcement Events:
  - policy.decided: Policy engine produced a verdict
  - hook.executed: Hook pipeline ran a hook

# Basic Usage

Publishing events:

	event.Publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: sess.ID,
		Data:      event.SessionCreatedData{Info: sess},
	})

Subscribing:

	unsub := event.Subscribe(event.SessionStatus, func(e event.Event) {
		data := e.Data.(event.SessionStatusData)
		// react to the transition
	})
	defer unsub()

Session-scoped subscription:

	unsub := event.SubscribeSession(sessionID, func(e event.Event) {
		// receives every event carrying this session id
	})
	defer unsub()

Publish is asynchronous; each subscriber runs in its own goroutine. Use
PublishSync when delivery must complete before continuing (mainly tests).
Reset clears the global bus between tests.
*/
package event
