package inproc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerc-io/kvs/broker"
)

func TestDispatchDeliversToHandler(t *testing.T) {
	r := New(nil)
	var got *broker.Message
	r.RegisterHandler("get", func(msg *broker.Message) { got = msg })

	r.Dispatch(&broker.Message{Type: "get", Sender: "c1", Body: map[string]interface{}{"key": "a"}})
	r.Run()

	require.NotNil(t, got)
	require.Equal(t, "a", got.Body["key"])
}

func TestPublishSubscribe(t *testing.T) {
	r := New(nil)
	var payload interface{}
	r.Subscribe("kvs.setroot", func(p interface{}) { payload = p })
	r.Publish("kvs.setroot", map[string]interface{}{"rootseq": 1})
	require.NotNil(t, payload, "expected subscriber to receive published event")
}

func TestReplyUsesSink(t *testing.T) {
	r := New(nil)
	var sender string
	var msg *broker.Message
	r.SetSink(func(s string, m *broker.Message) { sender = s; msg = m })
	r.Reply("client-1", &broker.Message{Type: "get.reply"})
	require.Equal(t, "client-1", sender)
	require.Equal(t, "get.reply", msg.Type)
}

func TestCheckRunsEveryIteration(t *testing.T) {
	r := New(nil)
	calls := 0
	r.RegisterCheck(func() { calls++ })
	r.Run()
	r.Run()
	require.Equal(t, 2, calls)
}

func TestIdleOnlyRunsWhenNothingElseHappened(t *testing.T) {
	r := New(nil)
	idleCalls := 0
	r.RegisterIdle(func() { idleCalls++ })
	r.RegisterHandler("noop", func(*broker.Message) {})

	r.Dispatch(&broker.Message{Type: "noop"})
	r.Run()
	require.Equal(t, 0, idleCalls, "expected idle to be skipped when a message was delivered")

	r.Run()
	require.Equal(t, 1, idleCalls, "expected idle to run once the queue is empty")
}

func TestMessageCopyIsIndependent(t *testing.T) {
	orig := &broker.Message{Type: "watch", Body: map[string]interface{}{"val": 1}}
	cp := orig.Copy()
	cp.Body["val"] = 2
	require.Equal(t, 1, orig.Body["val"], "expected Copy to be independent of the original")
}

func TestDecodeHeartbeat(t *testing.T) {
	e, ok := broker.DecodeHeartbeat(int64(5))
	require.True(t, ok)
	require.EqualValues(t, 5, e)

	e, ok = broker.DecodeHeartbeat(map[string]interface{}{"epoch": float64(7)})
	require.True(t, ok)
	require.EqualValues(t, 7, e)

	_, ok = broker.DecodeHeartbeat("garbage")
	require.False(t, ok, "expected unrecognized payload to fail decode")
}

func TestAsyncContinuationLandsOnRun(t *testing.T) {
	r := New(nil)
	landed := false
	r.Async(func() func() {
		return func() { landed = true }
	})
	require.False(t, landed, "continuation must not run before Run")
	r.RunUntilIdle()
	require.True(t, landed, "expected RunUntilIdle to drain the async continuation")
}
