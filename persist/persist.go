// Package persist implements C7: the once-a-second drain loop that turns
// deltaboard entries into display names and traffic_log rows. Its
// sleep-drain-write loop mirrors the teacher's engine.Ticker
// (engine/ticker.go drives the whole collect-and-record cycle on a fixed
// interval) — generalized from "collect metrics" to "drain deltas and
// persist them".
package persist

import (
	"context"
	"time"

	"github.com/saqw3r/InetMonitor/dnscache"
	"github.com/saqw3r/InetMonitor/geoip"
	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/procname"
)

// Store is the minimal persistence contract Persister needs, satisfied by
// *store.Store. Kept narrow so tests can substitute a fake.
type Store interface {
	GetOrAddApp(name string) (int64, error)
	LogTraffic(appID int64, bytesUp, bytesDown uint64) error
}

// Drainer is the minimal aggregator contract Persister needs.
type Drainer interface {
	DrainDelta() map[model.StatsKey]model.AccumulatedStats
}

// Persister is C7.
type Persister struct {
	drainer  Drainer
	store    Store
	names    *procname.Cache
	dns      *dnscache.Cache
	geo      *geoip.Resolver
	interval time.Duration
	logger   model.Logger
}

// New creates a Persister. interval defaults to 1 second if zero.
func New(drainer Drainer, store Store, names *procname.Cache, dns *dnscache.Cache, geo *geoip.Resolver, interval time.Duration, logger model.Logger) *Persister {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &Persister{drainer: drainer, store: store, names: names, dns: dns, geo: geo, interval: interval, logger: logger}
}

// Run blocks, flushing once per interval, until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Flush drains the deltaboard once and writes one row per entry. Errors in
// enrichment or persistence are logged but never stop the loop (§4.7).
func (p *Persister) Flush() {
	delta := p.drainer.DrainDelta()
	for key, stats := range delta {
		name := p.displayName(key)
		appID, err := p.store.GetOrAddApp(name)
		if err != nil {
			p.logger.Errorw("persist: get-or-add app failed", "name", name, "error", err)
			continue
		}
		if err := p.store.LogTraffic(appID, stats.BytesUp, stats.BytesDown); err != nil {
			p.logger.Errorw("persist: log traffic failed", "app_id", appID, "error", err)
		}
	}
}

// displayName builds the deterministic display name §4.7 specifies:
// ProcessName, then " -> " + domain-or-ip, then optionally " [country]".
func (p *Persister) displayName(key model.StatsKey) string {
	name := ""
	if p.names != nil {
		name = p.names.NameOf(key.ProcessID)
	}

	domain := ""
	if p.dns != nil {
		domain = p.dns.Lookup(key.RemoteIP)
	}
	if domain != "" {
		name += " -> " + domain
	} else if key.RemoteIP != "" {
		name += " -> " + key.RemoteIP
	}

	country := ""
	if p.geo != nil && key.RemoteIP != "" {
		country = p.geo.CountryOf(key.RemoteIP)
	}
	if country != "" && country != ".." && country != "Local" {
		name += " [" + country + "]"
	}

	return name
}
