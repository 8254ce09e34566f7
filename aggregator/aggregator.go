// Package aggregator implements C6: the hot-path fold of TrafficEvents into
// two maps keyed by StatsKey. The lock region is small and does no I/O, the
// same discipline the teacher applies to its own per-tick collectors
// (collector/network.go reads /proc files outside any lock and only takes
// the snapshot's own short-lived critical section to publish results).
package aggregator

import (
	"sync"

	"github.com/saqw3r/InetMonitor/dnscache"
	"github.com/saqw3r/InetMonitor/geoip"
	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/procname"
)

// Aggregator is C6. One mutex guards both maps; per §4.6 the critical
// section is two map writes and nothing else.
type Aggregator struct {
	mu         sync.Mutex
	deltaboard map[model.StatsKey]model.AccumulatedStats
	cumulative map[model.StatsKey]model.AccumulatedStats

	names *procname.Cache
	dns   *dnscache.Cache
	geo   *geoip.Resolver
}

// New creates an empty Aggregator. names/dns/geo are used only by
// SnapshotCumulative to enrich entries; they may be nil, in which case
// enrichment fields are left empty.
func New(names *procname.Cache, dns *dnscache.Cache, geo *geoip.Resolver) *Aggregator {
	return &Aggregator{
		deltaboard: make(map[model.StatsKey]model.AccumulatedStats),
		cumulative: make(map[model.StatsKey]model.AccumulatedStats),
		names:      names,
		dns:        dns,
		geo:        geo,
	}
}

// ApplyEvent folds one TrafficEvent into both maps under the single lock.
// Called from T-trace, in kernel-delivery order.
func (a *Aggregator) ApplyEvent(ev model.TrafficEvent) {
	key := model.StatsKey{ProcessID: ev.ProcessID, RemoteIP: ev.RemoteIP}

	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.deltaboard[key]
	c := a.cumulative[key]
	switch ev.Direction {
	case model.DirectionUpload:
		d.BytesUp += ev.Bytes
		c.BytesUp += ev.Bytes
	case model.DirectionDownload:
		d.BytesDown += ev.Bytes
		c.BytesDown += ev.Bytes
	default:
		// Unknown direction still counts toward cumulative totals as
		// upload, conservatively, so bytes are never silently dropped;
		// there is no "unknown" bucket in the data model.
		d.BytesUp += ev.Bytes
		c.BytesUp += ev.Bytes
	}
	a.deltaboard[key] = d
	a.cumulative[key] = c
}

// DrainDelta atomically swaps the deltaboard with an empty map and returns
// the swapped-out map as the Persister's private working set. No event is
// counted twice and none is lost across a drain.
func (a *Aggregator) DrainDelta() map[model.StatsKey]model.AccumulatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	drained := a.deltaboard
	a.deltaboard = make(map[model.StatsKey]model.AccumulatedStats)
	return drained
}

// SnapshotCumulative returns a copy of the cumulative map enriched with
// process name, DNS domain, and country, for UI/report consumption.
func (a *Aggregator) SnapshotCumulative() []model.CumulativeEntry {
	a.mu.Lock()
	snapshot := make(map[model.StatsKey]model.AccumulatedStats, len(a.cumulative))
	for k, v := range a.cumulative {
		snapshot[k] = v
	}
	a.mu.Unlock()

	out := make([]model.CumulativeEntry, 0, len(snapshot))
	for k, v := range snapshot {
		entry := model.CumulativeEntry{Key: k, Stats: v}
		if a.names != nil {
			entry.ProcessName = a.names.NameOf(k.ProcessID)
		}
		if a.dns != nil {
			entry.Domain = a.dns.Lookup(k.RemoteIP)
		}
		if a.geo != nil && k.RemoteIP != "" {
			entry.Country = a.geo.CountryOf(k.RemoteIP)
		}
		out = append(out, entry)
	}
	return out
}
