package service

import (
	"github.com/cerc-io/kvs/broker"
	"github.com/cerc-io/kvs/lookup"
)

// Stats is the JSON-friendly observability payload SPEC_FULL §12 assigns
// to stats.get: the content cache's §4.2 get_stats snapshot, the fence
// aggregator's noop_stores counter (§4.4), the number of watchers currently
// parked (watch and sync requests share the watchlist), the lookup
// engine's stall/resume counters and the count of watch notifications this
// rank has sent.
type Stats struct {
	Count              int    `json:"count"`
	Dirty              int    `json:"dirty"`
	Incomplete         int    `json:"incomplete"`
	SizeBuckets        [8]int `json:"size_buckets"`
	NoopStores         int64  `json:"noop_stores"`
	Watching           int    `json:"watching"`
	LookupStalls       int64  `json:"lookup_stalls"`
	LookupResumes      int64  `json:"lookup_resumes"`
	WatchNotifications int64  `json:"watch_notifications"`
}

func (l *Loop) snapshotStats() Stats {
	cs := l.cache.GetStats()
	stalls, resumes := lookup.Stats()
	return Stats{
		Count:              cs.Count,
		Dirty:              cs.Dirty,
		Incomplete:         cs.Incomplete,
		SizeBuckets:        cs.SizeBuckets,
		NoopStores:         l.fences.NoopStores(),
		Watching:           l.watches.Len(),
		LookupStalls:       stalls,
		LookupResumes:      resumes,
		WatchNotifications: l.watchNotifications,
	}
}

// handleStatsGet implements spec §4.6 "stats.get".
func (l *Loop) handleStatsGet(msg *broker.Message) {
	s := l.snapshotStats()
	l.reactor.Reply(msg.Sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{
			"count":               s.Count,
			"dirty":               s.Dirty,
			"incomplete":          s.Incomplete,
			"size_buckets":        s.SizeBuckets,
			"noop_stores":         s.NoopStores,
			"watching":            s.Watching,
			"lookup_stalls":       s.LookupStalls,
			"lookup_resumes":      s.LookupResumes,
			"watch_notifications": s.WatchNotifications,
			"errno":               0,
		},
	})
}

// handleStatsClear implements spec §4.6 "stats.clear": resets the counters
// that accumulate rather than being recomputed from current state (cache
// and watchlist stats are live snapshots). Only this Loop's noop_stores and
// watch_notifications are reset; the lookup stall/resume counters are
// process-wide and keep counting.
func (l *Loop) handleStatsClear(msg *broker.Message) {
	l.fences.ResetNoopStores()
	l.watchNotifications = 0
	l.reactor.Reply(msg.Sender, &broker.Message{
		Type: msg.Type + ".reply",
		Body: map[string]interface{}{"errno": 0},
	})
}
