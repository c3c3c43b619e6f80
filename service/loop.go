// Package service implements the service loop from spec §4.6: the
// reactor-driven owner of the epoch clock and root state that dispatches
// get/watch/fence/sync/stats requests to the lookup, fence and commit
// engines and publishes setroot/error events on the root rank.
package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cerc-io/kvs/broker"
	"github.com/cerc-io/kvs/commit"
	"github.com/cerc-io/kvs/content"
	"github.com/cerc-io/kvs/fence"
	"github.com/cerc-io/kvs/internal/cache"
	"github.com/cerc-io/kvs/internal/kvserr"
	"github.com/cerc-io/kvs/internal/loader"
	"github.com/cerc-io/kvs/kvstree"
	"github.com/cerc-io/kvs/lookup"
	"github.com/cerc-io/kvs/watch"
)

// DefaultMaxLastUseAge is the max_lastuse_age constant from spec §6.
const DefaultMaxLastUseAge = 5

// Config carries the per-rank module options and constants a Loop runs
// with (spec §6 "Module options", §10.3).
type Config struct {
	// Rank is this node's position in the broker overlay; 0 is the root.
	Rank int
	// MaxLastUseAge is the heartbeat-count eviction threshold (default 5).
	MaxLastUseAge int64
	// LinkFollowLimit bounds symlink recursion (default
	// lookup.DefaultLinkFollowLimit).
	LinkFollowLimit int
	// CommitMerge enables fence.Table.MergeReadyCommits (module option
	// commit-merge).
	CommitMerge bool
}

// rootState is the (rootdir, rootseq) pair from spec §3 "Root state".
type rootState struct {
	dir kvstree.Ref
	seq int64
}

// Loop is the per-rank service loop. It owns the cache, fence table and
// watchlist singletons (spec §5: mutated only by the reactor thread) and
// drives the lookup and commit engines against a content.Store.
type Loop struct {
	log logrus.FieldLogger

	reactor broker.Reactor
	cache   *cache.Cache
	store   content.Store
	loader  *loader.Loader
	fences  *fence.Table
	watches *watch.List

	cfg Config

	epoch              int64
	root               rootState
	hbCount            int64
	watchNotifications int64
	committing         bool // a ready commit is being driven by commit.Run
}

// New wires a Loop to reactor, registering every handler from spec §4.6's
// table and subscribing to the hb/setroot/error/dropcache events. On the
// root rank (cfg.Rank == 0) it also registers the check watcher that
// drains ready commits each reactor iteration.
func New(log logrus.FieldLogger, reactor broker.Reactor, c *cache.Cache, store content.Store, cfg Config) *Loop {
	if cfg.MaxLastUseAge == 0 {
		cfg.MaxLastUseAge = DefaultMaxLastUseAge
	}
	if cfg.LinkFollowLimit == 0 {
		cfg.LinkFollowLimit = lookup.DefaultLinkFollowLimit
	}
	if log == nil {
		log = logrus.New()
	}

	l := &Loop{
		log:     log,
		reactor: reactor,
		cache:   c,
		store:   store,
		loader:  loader.New(c, store, reactor.Async),
		fences:  fence.NewTable(cfg.CommitMerge),
		watches: watch.NewList(),
		cfg:     cfg,
	}

	emptyRef, emptyEnc, err := kvstree.HashDirectory(kvstree.EmptyDirectory)
	if err == nil {
		_ = c.Insert(string(emptyRef), cache.NewValid(kvstree.EmptyDirectory, len(emptyEnc)))
		l.root = rootState{dir: emptyRef}
	}

	l.registerHandlers()
	l.registerEvents()
	if cfg.Rank == 0 {
		l.reactor.RegisterCheck(l.drainReadyCommits)
	}
	return l
}

func (l *Loop) registerHandlers() {
	l.reactor.RegisterHandler("get", l.handleGet)
	l.reactor.RegisterHandler("watch", l.handleWatch)
	l.reactor.RegisterHandler("unwatch", l.handleUnwatch)
	l.reactor.RegisterHandler("fence", l.handleFence)
	l.reactor.RegisterHandler("relayfence", l.handleRelayFence)
	l.reactor.RegisterHandler("sync", l.handleSync)
	l.reactor.RegisterHandler("getroot", l.handleGetRoot)
	l.reactor.RegisterHandler("dropcache", l.handleDropCache)
	l.reactor.RegisterHandler("disconnect", l.handleDisconnect)
	l.reactor.RegisterHandler("stats.get", l.handleStatsGet)
	l.reactor.RegisterHandler("stats.clear", l.handleStatsClear)
}

func (l *Loop) registerEvents() {
	l.reactor.Subscribe("hb", l.onHeartbeat)
	l.reactor.Subscribe("kvs.setroot", l.onSetroot)
	l.reactor.Subscribe("kvs.error", l.onError)
	l.reactor.Subscribe("kvs.dropcache", l.onDropcacheEvent)
}

// onHeartbeat advances the epoch, periodically re-runs the watchlist and
// expires stale cache entries (spec §4.6 "hb").
func (l *Loop) onHeartbeat(payload interface{}) {
	epoch, ok := broker.DecodeHeartbeat(payload)
	if !ok {
		return
	}
	l.epoch = epoch
	l.hbCount++

	// "touches root": keeps the root directory's own cache entry from
	// being seen as stale by ExpireEntries purely because no request
	// happened to resolve it this epoch.
	l.cache.Lookup(string(l.root.dir), l.epoch)

	if l.cfg.MaxLastUseAge > 0 && l.hbCount%l.cfg.MaxLastUseAge == 0 {
		l.watches.RunQueue()
	}
	l.cache.ExpireEntries(l.epoch, l.cfg.MaxLastUseAge)
}

// onSetroot updates root state from a published kvs.setroot event,
// accepting only rootseq values that advance the root (spec §5: "replicas
// accept only rootseq > current"), caches the optionally inlined root
// value, re-fires the watchlist, and retires the named fences.
func (l *Loop) onSetroot(payload interface{}) {
	body, ok := payload.(map[string]interface{})
	if !ok {
		return
	}
	seq := int64(toFloat(body["rootseq"]))
	if l.root.dir != "" && seq <= l.root.seq {
		return
	}
	dirRef, _ := body["rootdir"].(string)
	l.root = rootState{dir: kvstree.Ref(dirRef), seq: seq}

	if inline, has := body["root"]; has && inline != nil {
		if dir, err := decodeInlineRoot(inline); err == nil {
			if err := l.cache.Insert(string(l.root.dir), cache.NewValid(dir, 0)); err != nil {
				l.log.WithField("ref", l.root.dir).Debug("inline setroot root already cached")
			}
		}
	}

	l.watches.RunQueue()
	l.retireFences(body["names"])
}

// onError finalizes the named fences after a commit failure (spec §4.6
// "error"); requesters were already replied to by finishReadyCommit on
// the root before this event was published.
func (l *Loop) onError(payload interface{}) {
	body, ok := payload.(map[string]interface{})
	if !ok {
		return
	}
	l.retireFences(body["names"])
}

func (l *Loop) retireFences(raw interface{}) {
	names, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, n := range names {
		if name, ok := n.(string); ok {
			l.fences.RemoveFence(name)
		}
	}
}

// onDropcacheEvent mirrors the dropcache request handler for the published
// event form (spec §4.6 "dropcache").
func (l *Loop) onDropcacheEvent(interface{}) {
	l.cache.ExpireEntries(l.epoch, 0)
}

// drainReadyCommits is the root-only check watcher that, each reactor
// iteration with no commit in flight, starts processing the ready fences
// (spec §4.6 "a prepare/check watcher pair that drains ready commits").
// Each commit now suspends rather than blocks on its content-store round
// trips (commit.Run), so commits are driven one at a time via
// processNextReadyCommit's continuation instead of a single blocking loop;
// a later reactor iteration picks up where an in-flight commit's async
// work left off.
func (l *Loop) drainReadyCommits() {
	if l.committing || !l.fences.CommitsReady() {
		return
	}
	l.fences.MergeReadyCommits()
	l.processNextReadyCommit()
}

func (l *Loop) processNextReadyCommit() {
	rf, ok := l.fences.GetReadyCommit()
	if !ok {
		l.committing = false
		return
	}
	l.committing = true
	co := commit.New(rf, l.cache)
	commit.Run(context.Background(), co, l.loader, l.epoch, l.root.dir, func(status commit.Status, err error) {
		l.finishReadyCommit(co, status, err)
		l.processNextReadyCommit()
	})
}

// finishReadyCommit replies to a commit's requesters and publishes the
// resulting setroot/error event. Requesters are replied to here, since
// only the root's fence.Table retains real requester objects; replicas
// learn the outcome purely from the published events.
func (l *Loop) finishReadyCommit(co *commit.Commit, status commit.Status, err error) {
	if err != nil || status == commit.StatusError {
		errno := co.Errno()
		if err != nil {
			// spec §7: a load failure the content store also can't
			// supply is "no-entity"; any other store I/O error is
			// "transient".
			errno = kvserr.ETransient
			if errors.Is(err, content.ErrNotFound) {
				errno = kvserr.ENoEntity
			}
		}
		l.replyRequesters(co.Requesters(), errno)
		l.reactor.Publish("kvs.error", map[string]interface{}{
			"names":  co.Names(),
			"errnum": int(errno),
		})
		return
	}

	l.fences.AddNoopStores(co.NoopStores())
	l.replyRequesters(co.Requesters(), kvserr.ENone)

	// Publishing the inline root directory is the §6 "optimization": it
	// lets a replica answer a get for any key already present in the root
	// directory itself without issuing a content.load.
	var inlineRoot interface{}
	if e, hit := l.cache.Lookup(string(co.NewRootRef()), l.epoch); hit && e.Valid() {
		if dir, ok := e.Value().(kvstree.Directory); ok {
			inlineRoot = dir
		}
	}

	l.reactor.Publish("kvs.setroot", map[string]interface{}{
		"rootseq": l.root.seq + 1,
		"rootdir": string(co.NewRootRef()),
		"root":    inlineRoot,
		"names":   co.Names(),
	})
}

func (l *Loop) replyRequesters(requesters []interface{}, errno kvserr.Errno) {
	for _, r := range requesters {
		msg, ok := r.(*broker.Message)
		if !ok {
			continue
		}
		body := map[string]interface{}{"errno": int(errno)}
		if name, ok := msg.Body["name"]; ok {
			body["name"] = name
		}
		l.reactor.Reply(msg.Sender, &broker.Message{Type: msg.Type + ".reply", Body: body})
	}
}
