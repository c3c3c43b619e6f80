// Package broker defines the reactor collaborator the service loop is
// built against (spec §6 "Broker reactor (consumed)"): message handler
// registration, prepare/check/idle watchers, event publish/subscribe,
// heartbeat decode, message copy, and route inspection. The message broker
// and its reactor are explicitly out of scope as a standalone product
// (spec §1); broker/inproc supplies a minimal concrete implementation so
// the service loop has something real to run against.
package broker

// Message is the generic inbound/outbound envelope the reactor delivers to
// handlers. Body carries the decoded JSON document (spec §6: "encodings
// are JSON documents with stable field names"); handlers type-assert the
// fields they expect.
type Message struct {
	Type   string
	Sender string
	Body   map[string]interface{}
}

// Copy returns an independent copy of m, suitable for requeueing on the
// watchlist with a modified field (spec §4.6 watch: "a copy of the
// request ... is queued on the watchlist").
func (m *Message) Copy() *Message {
	body := make(map[string]interface{}, len(m.Body))
	for k, v := range m.Body {
		body[k] = v
	}
	return &Message{Type: m.Type, Sender: m.Sender, Body: body}
}

// HandlerFunc processes one inbound message. A handler may suspend on a
// blocking dependency (a content-store load or store) by kicking off
// Async and returning; its own continuation, not the reactor, decides how
// to finish the request once that work's result lands back on the
// reactor thread, per spec §5.
type HandlerFunc func(msg *Message)

// Reactor is the message-dispatch collaborator the service loop drives.
// Run executes one iteration: prepare watchers, then every queued message
// dispatched to its handler, then check watchers, falling back to idle
// watchers if neither delivered anything (spec §4.6: "a prepare/check
// watcher pair that drains ready commits each reactor iteration").
type Reactor interface {
	RegisterHandler(msgType string, fn HandlerFunc)
	RegisterPrepare(fn func())
	RegisterCheck(fn func())
	RegisterIdle(fn func())

	Publish(event string, payload interface{})
	Subscribe(event string, fn func(payload interface{}))

	// Reply delivers msg along the route of sender (spec §6 "route
	// inspection"): how a reply reaches the client that sent sender is a
	// broker-specific concern the core never needs to know.
	Reply(sender string, msg *Message)

	// Dispatch enqueues an inbound message for the next Run.
	Dispatch(msg *Message)

	// Async runs work on its own goroutine, then arranges for the
	// continuation work returns to run on the reactor's own thread during
	// a later Run (spec §5: cache, fence table and watchlist are mutated
	// only by the reactor thread). This is how a handler suspends on a
	// content-store call without blocking the reactor meanwhile, rather
	// than the collapsed single-goroutine blocking loop spec §9 warns a
	// reactor must actually support structured blocking to get away with.
	Async(work func() func())

	// Run drains one reactor iteration.
	Run()
}

// DecodeHeartbeat extracts the epoch advance carried by an hb event payload
// (spec §4.6 "hb (heartbeat, updates epoch)"). ok is false if payload isn't
// a recognized heartbeat shape.
func DecodeHeartbeat(payload interface{}) (epoch int64, ok bool) {
	switch v := payload.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case map[string]interface{}:
		e, exists := v["epoch"]
		if !exists {
			return 0, false
		}
		return DecodeHeartbeat(e)
	default:
		return 0, false
	}
}
