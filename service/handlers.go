package service

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cerc-io/kvs/broker"
	"github.com/cerc-io/kvs/internal/kvserr"
	"github.com/cerc-io/kvs/kvsapi"
	"github.com/cerc-io/kvs/kvstree"
	"github.com/cerc-io/kvs/lookup"
	"github.com/cerc-io/kvs/watch"
)

// handleGet implements spec §4.6 "get": decode (optional root-dirent,
// key, flags), run the lookup engine, respond with the value and the root
// dirent actually used.
func (l *Loop) handleGet(msg *broker.Message) {
	key, _ := msg.Body["key"].(string)
	flags := decodeFlags(msg.Body)

	override, err := decodeOverrideRoot(msg.Body)
	if err != nil {
		l.replyError(msg, kvserr.EProtocol)
		return
	}

	l.resolve(key, flags, override, func(res lookup.Result, err error) {
		if err != nil {
			l.replyError(msg, kvserr.ETransient)
			return
		}
		l.replyLookupResult(msg, res)
	})
}

// handleWatch implements spec §4.6 "watch". It is also used directly as
// the watchlist re-run handler (spec §4.7): re-invoked with the saved
// request, it re-runs the lookup against the (by then advanced) root and
// decides whether to respond and whether to stay registered.
func (l *Loop) handleWatch(msg *broker.Message) {
	key, _ := msg.Body["key"].(string)
	flags := decodeFlags(msg.Body)

	override, err := decodeOverrideRoot(msg.Body)
	if err != nil {
		l.replyError(msg, kvserr.EProtocol)
		return
	}

	l.resolve(key, flags, override, func(res lookup.Result, err error) {
		if err != nil {
			l.replyError(msg, kvserr.ETransient)
			return
		}
		if res.Kind == lookup.ErrorResult {
			l.replyError(msg, res.Errno)
			return
		}

		// A watched key need not exist yet (the common "notify me when
		// it's created" pattern); NotFound is represented as a value of
		// null rather than an error, matching a plain get's not-found
		// errno only for the get handler.
		var value interface{}
		if res.Kind == lookup.Found {
			value = res.Value
		}

		prev, hasPrev := msg.Body["val"]
		unchanged := hasPrev && valuesEqual(value, prev)
		if flags.Has(kvsapi.First) || !unchanged {
			l.watchNotifications++
			l.reactor.Reply(msg.Sender, &broker.Message{
				Type: msg.Type + ".reply",
				Body: map[string]interface{}{"val": value, "errno": int(kvserr.ENone)},
			})
		}

		if flags.Has(kvsapi.Once) {
			return
		}

		next := msg.Copy()
		next.Body["flags"] = float64(flags &^ kvsapi.First)
		next.Body["val"] = value
		l.watches.Add(&watch.Entry{Msg: next, Sender: msg.Sender, Handler: l.handleWatch})
	})
}

// handleUnwatch implements spec §4.6 "unwatch": purge matching entries
// from the watchlist by (sender, key).
func (l *Loop) handleUnwatch(msg *broker.Message) {
	key, _ := msg.Body["key"].(string)
	sender := msg.Sender
	removed := l.watches.PurgeMatching(func(e *watch.Entry) bool {
		return e.Sender == sender && e.Msg.Body["key"] == key
	})
	l.reactor.Reply(sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{"removed": removed, "errno": int(kvserr.ENone)},
	})
}

// handleFence implements spec §4.6 "fence": aggregate locally on the root;
// on a replica, forward via relayfence instead (the response is deferred
// until the corresponding setroot/error event, per drainReadyCommits).
func (l *Loop) handleFence(msg *broker.Message) {
	name, nprocs, ops, noMerge, err := decodeFenceBody(msg.Body)
	if err != nil {
		l.replyError(msg, kvserr.EProtocol)
		return
	}

	if l.cfg.Rank != 0 {
		l.reactor.Dispatch(&broker.Message{Type: "relayfence", Sender: msg.Sender, Body: msg.Body})
		return
	}

	if _, _, err := l.fences.Submit(name, nprocs, ops, msg, noMerge); err != nil {
		l.replyError(msg, kvserr.EInvalid)
	}
}

// handleRelayFence implements spec §4.6 "relayfence": root-only, no
// response, and does not copy a requester.
func (l *Loop) handleRelayFence(msg *broker.Message) {
	if l.cfg.Rank != 0 {
		return
	}
	name, nprocs, ops, noMerge, err := decodeFenceBody(msg.Body)
	if err != nil {
		return
	}
	_, _, _ = l.fences.Submit(name, nprocs, ops, nil, noMerge)
}

// handleSync implements spec §4.6 "sync": respond immediately if the
// caller's required rootseq is already reached, else park on the
// watchlist (re-invoked as the root advances, same as a watch entry).
func (l *Loop) handleSync(msg *broker.Message) {
	minSeq := int64(toFloat(msg.Body["rootseq"]))
	if l.root.seq >= minSeq {
		l.replyRoot(msg)
		return
	}
	l.watches.Add(&watch.Entry{Msg: msg, Sender: msg.Sender, Handler: l.handleSync})
}

// handleGetRoot implements spec §4.6 "getroot".
func (l *Loop) handleGetRoot(msg *broker.Message) {
	l.replyRoot(msg)
}

func (l *Loop) replyRoot(msg *broker.Message) {
	l.reactor.Reply(msg.Sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{
			"rootseq": l.root.seq,
			"rootdir": string(l.root.dir),
			"errno":   int(kvserr.ENone),
		},
	})
}

// handleDropCache implements spec §4.6 "dropcache": force eviction of
// unreferenced clean entries.
func (l *Loop) handleDropCache(msg *broker.Message) {
	evicted := l.cache.ExpireEntries(l.epoch, 0)
	l.reactor.Reply(msg.Sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{"evicted": evicted, "errno": int(kvserr.ENone)},
	})
}

// handleDisconnect implements spec §4.6 "disconnect": purge all waiters
// (watchlist entries, which also cover parked sync requests) whose
// originating sender matches. No response is sent.
func (l *Loop) handleDisconnect(msg *broker.Message) {
	removed := l.watches.PurgeSender(msg.Sender)
	l.log.WithField("sender", msg.Sender).WithField("removed", removed).Debug("disconnect purged waiters")
}

func (l *Loop) resolve(key string, flags kvsapi.Flags, override *kvstree.Dirent, done func(lookup.Result, error)) {
	h := lookup.New(l.cache, l.epoch, l.root.dir, override, key, flags)
	h.SetMaxLinkFollow(l.cfg.LinkFollowLimit)
	lookup.Run(context.Background(), h, l.loader, l.epoch, done)
}

func (l *Loop) replyLookupResult(msg *broker.Message, res lookup.Result) {
	switch res.Kind {
	case lookup.Found:
		l.reactor.Reply(msg.Sender, &broker.Message{
			Type: msg.Type + ".reply",
			Body: map[string]interface{}{"val": res.Value, "root": res.RootUsed, "errno": int(kvserr.ENone)},
		})
	case lookup.NotFound:
		l.replyError(msg, kvserr.ENotFound)
	case lookup.ErrorResult:
		l.replyError(msg, res.Errno)
	}
}

func (l *Loop) replyError(msg *broker.Message, errno kvserr.Errno) {
	l.reactor.Reply(msg.Sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{"errno": int(errno)},
	})
}

func decodeFlags(body map[string]interface{}) kvsapi.Flags {
	return kvsapi.Flags(uint32(toFloat(body["flags"])))
}

func decodeOverrideRoot(body map[string]interface{}) (*kvstree.Dirent, error) {
	raw, ok := body["root"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var d kvstree.Dirent
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeInlineRoot(raw interface{}) (kvstree.Directory, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var d kvstree.Directory
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeFenceBody(body map[string]interface{}) (name string, nprocs int, ops []kvsapi.Operation, noMerge bool, err error) {
	name, _ = body["name"].(string)
	nprocs = int(toFloat(body["nprocs"]))
	noMerge, _ = body["nomerge"].(bool)
	ops, err = decodeOps(body["ops"])
	return
}

// decodeOps decodes a fence request's "ops" array. The wire struct's Dirent
// field is a pointer so a bare JSON null ("delete key", spec §3 "a null
// dirent deletes") decodes to a nil *kvstree.Dirent directly — encoding/json
// never calls (*Dirent).UnmarshalJSON for a null literal targeting a
// pointer field (it assigns nil without dereferencing), so this doesn't
// collide with or fall through to Dirent's single-populated-tag decode at
// all, unlike decoding null against a non-pointer Dirent field would.
func decodeOps(raw interface{}) ([]kvsapi.Operation, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var wire []struct {
		Key    string          `json:"key"`
		Dirent *kvstree.Dirent `json:"dirent"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	ops := make([]kvsapi.Operation, len(wire))
	for i, w := range wire {
		ops[i] = kvsapi.Operation{Key: w.Key, Dirent: w.Dirent}
	}
	return ops, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// valuesEqual compares two decoded lookup values for the watch engine's
// change detection (spec §4.7). reflect.DeepEqual is sufficient since both
// sides are always JSON-decoded interface{} trees (map/slice/scalar), not
// a domain type worth a dedicated equality method.
func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
