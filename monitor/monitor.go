// Package monitor wires C1 through C9 into the running process: the hot
// path (TraceSession -> EventParser -> Aggregator) on T-trace, the
// Persister on its own ticking goroutine, and the GeoLookup worker, which
// geoip.New starts as soon as New wires the components. Construction takes every dependency as an
// explicit argument — no package-level singletons — mirroring the
// teacher's own engine.NewEngine, which builds and wires its collector
// registry once at startup rather than reaching for global state
// (engine/engine.go).
package monitor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saqw3r/InetMonitor/aggregator"
	"github.com/saqw3r/InetMonitor/analysis"
	"github.com/saqw3r/InetMonitor/config"
	"github.com/saqw3r/InetMonitor/dnscache"
	"github.com/saqw3r/InetMonitor/geoip"
	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/parser"
	"github.com/saqw3r/InetMonitor/persist"
	"github.com/saqw3r/InetMonitor/procname"
	"github.com/saqw3r/InetMonitor/store"
	"github.com/saqw3r/InetMonitor/syslog"
	"github.com/saqw3r/InetMonitor/trace"
)

// Monitor owns the running instance of every core component and their
// shutdown order.
type Monitor struct {
	cfg    config.Config
	logger model.Logger

	session    *trace.Session
	parser     *parser.Parser
	aggregator *aggregator.Aggregator
	names      *procname.Cache
	dns        *dnscache.Cache
	geo        *geoip.Resolver
	persister  *persist.Persister
	store      *store.Store

	peakDetector *analysis.PeakDetector
	correlator   *analysis.Correlator

	debug *debugState

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// debugState is debug_mu (§5): the last-events ring, per-(provider,event)
// counts, and the running total/parsed/DNS counters, mirroring the
// original AppMonitor's m_lastEvents/m_eventCounts/m_*EventsReceived.
type debugState struct {
	mu       sync.Mutex
	ringSize int

	lastEvents  []model.DebugEvent
	eventCounts map[string]uint64

	totalEvents  uint64
	parsedEvents uint64
	dnsEvents    uint64
}

func newDebugState(ringSize int) *debugState {
	if ringSize <= 0 {
		ringSize = 10
	}
	return &debugState{ringSize: ringSize, eventCounts: make(map[string]uint64)}
}

// recordEvent appends ev to the bounded ring, evicting the oldest entry
// once the ring is full, and bumps the per-(provider,event) count. Returns
// the resolved provider name so the caller doesn't need to re-derive it.
func (d *debugState) recordEvent(ev model.RawEvent) string {
	name := trace.ProviderName(ev.ProviderID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.totalEvents++
	if len(d.lastEvents) >= d.ringSize {
		d.lastEvents = d.lastEvents[1:]
	}
	d.lastEvents = append(d.lastEvents, model.DebugEvent{EventID: ev.EventID, ProviderName: name})
	d.eventCounts[fmt.Sprintf("%s:%d", name, ev.EventID)]++
	return name
}

func (d *debugState) recordParsed() {
	d.mu.Lock()
	d.parsedEvents++
	d.mu.Unlock()
}

func (d *debugState) recordDNS() {
	d.mu.Lock()
	d.dnsEvents++
	d.mu.Unlock()
}

// snapshot copies the debug surface out from under the lock, the same
// "read while holding debug_mu briefly, then return a plain value" contract
// §5 assigns to T-main reads.
func (d *debugState) snapshot() model.DebugSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := make([]model.DebugEvent, len(d.lastEvents))
	copy(events, d.lastEvents)
	counts := make(map[string]uint64, len(d.eventCounts))
	for k, v := range d.eventCounts {
		counts[k] = v
	}
	return model.DebugSnapshot{
		LastEvents:   events,
		EventCounts:  counts,
		TotalEvents:  d.totalEvents,
		ParsedEvents: d.parsedEvents,
		DNSEvents:    d.dnsEvents,
	}
}

// New wires every component from cfg. The store is opened eagerly (a
// fatal-at-startup failure per §7); the trace session and persister start
// only on Run.
func New(cfg config.Config, backend trace.Backend, procQuerier procname.Querier, logQuerier syslog.Querier, logger model.Logger) (*Monitor, error) {
	if logger == nil {
		logger = model.NopLogger{}
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("monitor: open store: %w", err)
	}

	names := procname.New(procQuerier)
	dns := dnscache.New()
	geo := geoip.New(cfg.GeoEndpoint, cfg.GeoThrottle, logger)
	agg := aggregator.New(names, dns, geo)
	p := parser.New(nil, logger)
	persister := persist.New(agg, st, names, dns, geo, cfg.FlushInterval, logger)

	session := trace.New(cfg.SessionName, backend)

	return &Monitor{
		cfg:          cfg,
		logger:       logger,
		session:      session,
		parser:       p,
		aggregator:   agg,
		names:        names,
		dns:          dns,
		geo:          geo,
		persister:    persister,
		store:        st,
		peakDetector: analysis.NewPeakDetector(st),
		correlator:   analysis.NewCorrelator(logQuerier),
		debug:        newDebugState(cfg.DebugRingSize),
	}, nil
}

// Run starts T-trace and T-persist (T-geo is already running, started by
// geoip.New inside New) and blocks until ctx is cancelled. Shutdown follows §5's order: stop
// trace session, stop persister, stop geo, join all, close store.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor: already running")
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group
	m.mu.Unlock()

	if err := m.session.Start(m.handleEvent); err != nil {
		cancel()
		return fmt.Errorf("monitor: start trace session: %w", err)
	}

	group.Go(func() error {
		m.persister.Run(groupCtx)
		return nil
	})

	<-groupCtx.Done()
	return m.Stop()
}

// handleEvent is T-trace's inline callback: record it on the debug surface,
// parse, then fold into the aggregator or the DNS cache. Runs on the trace
// worker goroutine in kernel-delivery order.
func (m *Monitor) handleEvent(ev model.RawEvent) {
	m.debug.recordEvent(ev)

	result := m.parser.Parse(ev)
	switch result.Kind {
	case parser.KindTraffic:
		m.debug.recordParsed()
		m.aggregator.ApplyEvent(result.Traffic)
	case parser.KindDNS:
		m.debug.recordDNS()
		m.dns.Add(result.DNS.ResultIP, result.DNS.QueryName)
	}
}

// Stop idempotently tears everything down in §5's order: trace session,
// persister, geo worker, then the store.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	cancel := m.cancel
	group := m.group
	m.mu.Unlock()

	// session.Stop, cancel, and group.Wait only matter once Run has
	// actually started them; store and geo are opened eagerly in New, so
	// they are closed unconditionally — including when a caller (e.g. the
	// doctor command) builds a Monitor only to inspect it and never Runs.
	if wasRunning {
		m.session.Stop()
		if cancel != nil {
			cancel()
		}
		if group != nil {
			_ = group.Wait()
		}
	}
	m.geo.Close()
	return m.store.Close()
}

// Aggregator exposes the live Aggregator for read-only UI/report use.
func (m *Monitor) Aggregator() *aggregator.Aggregator { return m.aggregator }

// Store exposes the live Store for read-only query use.
func (m *Monitor) Store() *store.Store { return m.store }

// PeakDetector exposes the configured PeakDetector.
func (m *Monitor) PeakDetector() *analysis.PeakDetector { return m.peakDetector }

// Correlator exposes the configured Correlator.
func (m *Monitor) Correlator() *analysis.Correlator { return m.correlator }

// Diagnostics reports the trace session's last vendor error codes, the
// parser's last silent-drop reason, and the debug_mu-protected last-events/
// event-count/total-count surface (§5), for a doctor-style diagnostic
// report.
func (m *Monitor) Diagnostics() (model.TraceDiagnostics, string, model.DebugSnapshot) {
	return m.session.LastErrors(), m.parser.LastParseError(), m.debug.snapshot()
}
