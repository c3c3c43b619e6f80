// Package watch implements the watch engine from spec §4.7: parking
// watchers as saved requests and re-running their lookup whenever the
// service loop's root advances.
package watch

import (
	"github.com/cerc-io/kvs/broker"
	"github.com/cerc-io/kvs/internal/wait"
)

// Entry is one parked watcher: a saved (possibly updated) request message,
// the sender it must be purgeable by, and the handler that re-runs its
// lookup and decides whether to respond.
type Entry struct {
	Msg     *broker.Message
	Sender  string
	Handler func(msg *broker.Message)
}

// List is the per-rank watchlist (spec §3 "Watchlist", §4.7), built on the
// same wait.Queue primitive a stalled lookup or commit suspends on (spec
// §4.1), rather than a separate reimplementation of queue/release.
type List struct {
	q wait.Queue
}

// NewList returns an empty watchlist.
func NewList() *List { return &List{} }

// Add parks e on the list.
func (l *List) Add(e *Entry) {
	l.q.AddQueue(wait.Create(func(data interface{}) {
		entry := data.(*Entry)
		entry.Handler(entry.Msg)
	}, e))
}

// Len reports how many watchers are currently parked.
func (l *List) Len() int { return l.q.Len() }

// RunQueue re-invokes every parked watcher's handler with its saved
// request (spec §4.7 "runqueue(watchlist)"). wait.Queue.RunQueue snapshots
// and empties the queue before firing, so a handler's re-registration
// (List.Add) doesn't get invoked again in the same pass.
func (l *List) RunQueue() { l.q.RunQueue() }

// PurgeSender removes every watcher whose Sender matches sender (spec
// §4.6 "disconnect"), returning the number removed.
func (l *List) PurgeSender(sender string) int {
	return l.q.DestroyMsg(func(data interface{}) bool {
		return data.(*Entry).Sender == sender
	})
}

// PurgeMatching removes every watcher for which predicate returns true
// (spec §4.6 "unwatch"), returning the number removed.
func (l *List) PurgeMatching(predicate func(e *Entry) bool) int {
	return l.q.DestroyMsg(func(data interface{}) bool {
		return predicate(data.(*Entry))
	})
}
