package watch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/broker"
)

func TestRunQueueInvokesEachHandlerOnce(t *testing.T) {
	l := NewList()
	calls := 0
	l.Add(&Entry{Msg: &broker.Message{Type: "watch"}, Handler: func(*broker.Message) { calls++ }})
	l.Add(&Entry{Msg: &broker.Message{Type: "watch"}, Handler: func(*broker.Message) { calls++ }})

	l.RunQueue()
	require.Equal(t, 2, calls)
	require.Equal(t, 0, l.Len(), "expected list drained after RunQueue with no re-registration")
}

func TestRunQueueReRegistrationDoesNotLoopInSamePass(t *testing.T) {
	l := NewList()
	calls := 0
	var reAdd func(msg *broker.Message)
	reAdd = func(msg *broker.Message) {
		calls++
		l.Add(&Entry{Msg: msg, Handler: reAdd})
	}
	l.Add(&Entry{Msg: &broker.Message{Type: "watch"}, Handler: reAdd})

	l.RunQueue()
	require.Equal(t, 1, calls, "expected exactly 1 call in this pass")
	require.Equal(t, 1, l.Len(), "expected the re-registered watcher to remain parked")
}

func TestPurgeSender(t *testing.T) {
	l := NewList()
	l.Add(&Entry{Sender: "c1"})
	l.Add(&Entry{Sender: "c2"})
	l.Add(&Entry{Sender: "c1"})

	removed := l.PurgeSender("c1")
	require.Equal(t, 2, removed)
	require.Equal(t, 1, l.Len())
}

func TestPurgeMatching(t *testing.T) {
	l := NewList()
	l.Add(&Entry{Msg: &broker.Message{Body: map[string]interface{}{"key": "a"}}})
	l.Add(&Entry{Msg: &broker.Message{Body: map[string]interface{}{"key": "b"}}})

	removed := l.PurgeMatching(func(e *Entry) bool { return e.Msg.Body["key"] == "a" })
	require.Equal(t, 1, removed)
	require.Equal(t, 1, l.Len())
}
