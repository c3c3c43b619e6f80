// Package inproc is a minimal broker.Reactor: messages are queued by
// Dispatch and delivered on the next Run, all on the caller's goroutine.
// Async work (content-store loads/stores) runs concurrently on its own
// goroutines, but every continuation it produces is handed back to
// whichever goroutine next calls Run — small structs, constructor
// functions, logrus logging, matching the rest of the corpus.
package inproc

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cerc-io/kvs/broker"
)

var _ broker.Reactor = (*Reactor)(nil)

// Reactor is an in-process broker.Reactor. Dispatch/RegisterHandler/Run
// etc. are only ever called from the single goroutine driving the service
// loop (spec §5); Async is the one method safe to have its effects land
// from another goroutine, via the mutex-guarded injected queue.
type Reactor struct {
	log logrus.FieldLogger

	handlers map[string]broker.HandlerFunc
	prepares []func()
	checks   []func()
	idles    []func()
	subs     map[string][]func(interface{})
	queue    []*broker.Message

	mu       sync.Mutex
	injected []func()
	pending  int64 // count of Async calls whose continuation hasn't run yet

	sink func(sender string, msg *broker.Message)
}

// New returns an empty Reactor. log may be nil.
func New(log logrus.FieldLogger) *Reactor {
	if log == nil {
		log = logrus.New()
	}
	return &Reactor{
		log:      log,
		handlers: make(map[string]broker.HandlerFunc),
		subs:     make(map[string][]func(interface{})),
	}
}

// SetSink registers where Reply deliveries go; tests and the daemon's
// transport layer use this to observe outbound replies (spec §6 "route
// inspection" — how a reply reaches its client is broker-specific).
func (r *Reactor) SetSink(fn func(sender string, msg *broker.Message)) {
	r.sink = fn
}

// RegisterHandler implements broker.Reactor.
func (r *Reactor) RegisterHandler(msgType string, fn broker.HandlerFunc) {
	r.handlers[msgType] = fn
}

// RegisterPrepare implements broker.Reactor.
func (r *Reactor) RegisterPrepare(fn func()) { r.prepares = append(r.prepares, fn) }

// RegisterCheck implements broker.Reactor.
func (r *Reactor) RegisterCheck(fn func()) { r.checks = append(r.checks, fn) }

// RegisterIdle implements broker.Reactor.
func (r *Reactor) RegisterIdle(fn func()) { r.idles = append(r.idles, fn) }

// Publish implements broker.Reactor.
func (r *Reactor) Publish(event string, payload interface{}) {
	for _, fn := range r.subs[event] {
		fn(payload)
	}
}

// Subscribe implements broker.Reactor.
func (r *Reactor) Subscribe(event string, fn func(payload interface{})) {
	r.subs[event] = append(r.subs[event], fn)
}

// Reply implements broker.Reactor.
func (r *Reactor) Reply(sender string, msg *broker.Message) {
	if r.sink != nil {
		r.sink(sender, msg)
		return
	}
	r.log.WithFields(logrus.Fields{"sender": sender, "type": msg.Type}).Debug("reply dropped: no sink registered")
}

// Dispatch implements broker.Reactor.
func (r *Reactor) Dispatch(msg *broker.Message) {
	r.queue = append(r.queue, msg)
}

// Async implements broker.Reactor: work runs on its own goroutine; the
// continuation it returns is queued (under mu, since it arrives from that
// goroutine) and only ever executed later by Run, on whatever goroutine
// calls Run.
func (r *Reactor) Async(work func() func()) {
	atomic.AddInt64(&r.pending, 1)
	go func() {
		cont := work()
		r.mu.Lock()
		r.injected = append(r.injected, cont)
		r.mu.Unlock()
	}()
}

// Run implements broker.Reactor: prepare, run any async continuations
// that have landed, deliver every queued message to its handler, check,
// and — only if nothing else ran this iteration — idle.
func (r *Reactor) Run() {
	for _, fn := range r.prepares {
		fn()
	}

	r.mu.Lock()
	landed := r.injected
	r.injected = nil
	r.mu.Unlock()
	for _, cont := range landed {
		cont()
		atomic.AddInt64(&r.pending, -1)
	}

	delivered := len(r.queue) > 0
	pending := r.queue
	r.queue = nil
	for _, msg := range pending {
		fn, ok := r.handlers[msg.Type]
		if !ok {
			r.log.WithField("type", msg.Type).Warn("no handler registered")
			continue
		}
		fn(msg)
	}

	ranCheck := false
	for _, fn := range r.checks {
		fn()
		ranCheck = true
	}

	if !delivered && len(landed) == 0 && !ranCheck {
		for _, fn := range r.idles {
			fn()
		}
	}
}

// RunUntilIdle repeats Run until there is nothing queued and every Async
// call issued so far has had its continuation delivered and run, or 1000
// iterations pass. A real deployment drives Run off a heartbeat ticker and
// never needs this; it exists for tests that exercise a scenario spanning
// an async content-store round trip and need to observe it land.
func (r *Reactor) RunUntilIdle() {
	for i := 0; i < 1000; i++ {
		r.Run()
		r.mu.Lock()
		idle := len(r.queue) == 0 && len(r.injected) == 0 && atomic.LoadInt64(&r.pending) == 0
		r.mu.Unlock()
		if idle {
			return
		}
		runtime.Gosched()
	}
}
