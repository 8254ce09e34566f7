package model

import "time"

// RawEvent is the opaque record delivered by the kernel trace subsystem for
// a single callback invocation. It is immutable and its lifetime is bounded
// by the callback that delivered it — nothing may retain a RawEvent or its
// Properties past the call that produced it.
type RawEvent struct {
	ProviderID [16]byte // 128-bit provider GUID, as delivered by the vendor ABI
	EventID    uint16
	Timestamp  int64 // unix seconds (the etw backend converts the vendor clock); the parser reads it with time.Unix
	ProcessID  uint32
	TaskName   string
	OpcodeName string
	Properties []RawProperty
}

// RawProperty is one self-describing field of a RawEvent, as reported by
// the tracing subsystem's metadata extractor (the TDH-equivalent side API).
type RawProperty struct {
	Name  string
	Bytes []byte // 4-byte, 8-byte, or 16-byte encodings only are meaningful here
}

// Direction classifies a TrafficEvent as upload or download.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionUpload
	DirectionDownload
)

func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	case DirectionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// EventSchema is learned once per (provider, event_id) pair on first sight
// and never mutated afterward. Relevant=false is cached too, to suppress
// repeated schema-discovery work for event types the monitor never cares
// about.
type EventSchema struct {
	Relevant     bool
	Direction    Direction
	SizeField    string // empty if Relevant is false
	AddressField string // empty if the event carries no remote-address property
}

// SchemaKey packs (provider, event id) into the 64-bit cache key spec.md
// §4.2 and §9 specify: (provider.data1 << 16) | event_id.
func SchemaKey(providerID [16]byte, eventID uint16) uint64 {
	data1 := uint32(providerID[0]) | uint32(providerID[1])<<8 | uint32(providerID[2])<<16 | uint32(providerID[3])<<24
	return uint64(data1)<<16 | uint64(eventID)
}

// TrafficEvent is the parser's output for a send/receive event. Transient:
// produced by EventParser, consumed by Aggregator, never persisted as-is.
type TrafficEvent struct {
	Timestamp time.Time
	ProcessID uint32
	Bytes     uint64 // always nonzero
	Direction Direction
	RemoteIP  string // textual, may be empty if the address property was missing
}

// DnsObservation is the parser's output for a DNS response event. Transient;
// folded into the DnsReverseCache and never persisted.
type DnsObservation struct {
	ResultIP  string
	QueryName string
}

// StatsKey identifies one (process, remote endpoint) accumulation bucket.
// Equality and ordering are structural, so it is usable directly as a map
// key.
type StatsKey struct {
	ProcessID uint32
	RemoteIP  string
}

// AccumulatedStats holds byte totals for one StatsKey. Two instances exist
// per key inside the Aggregator: one in the deltaboard (reset every flush)
// and one in the cumulative map (monotonic for the life of the process).
type AccumulatedStats struct {
	BytesUp   uint64
	BytesDown uint64
}

// App is a stable (id, display name) pair owned by the Store. Created on
// first sight of a display name, never deleted.
type App struct {
	ID          int64
	DisplayName string
}

// TrafficLogRow is one append-only row of the traffic log.
type TrafficLogRow struct {
	TimestampSeconds int64
	AppID            int64
	BytesUp          uint64
	BytesDown        uint64
}

// TrafficPeak is a derived (never stored) minute bucket whose summed bytes
// for one app met or exceeded a detection threshold.
type TrafficPeak struct {
	MinuteBucketStart int64
	AppID             int64
	AppName           string
	TotalBytes        uint64
	// Score is how many standard deviations this bucket's total sits above
	// the mean of all peaks returned for the same query (all apps together);
	// see analysis.PeakDetector. Zero when fewer than two peaks were found
	// or when all their totals are equal.
	Score float64
}

// AnalysisConclusion is the rule-based verdict ConclusionGenerator attaches
// to a peak.
type AnalysisConclusion struct {
	Summary    string
	Detail     string
	Confidence float64 // in [0,1]
}

// LogEvent is one message returned by the external system-log query
// collaborator (§6).
type LogEvent struct {
	ProviderName string
	EventID      int
	Timestamp    time.Time
	Message      string
}

// TraceDiagnostics exposes the four last-error codes spec.md §4.1 requires
// TraceSession to record atomically, for a diagnostic surface to read
// without locks.
type TraceDiagnostics struct {
	LastStartTraceError   uint32
	LastEnableError       uint32
	LastOpenTraceError    uint32
	LastProcessTraceError uint32
}

// CumulativeEntry is one row of an Aggregator cumulative-map snapshot,
// enriched with process name, DNS domain, and country for UI/report
// consumption.
type CumulativeEntry struct {
	Key         StatsKey
	Stats       AccumulatedStats
	ProcessName string
	Domain      string
	Country     string
}

// AppUsage is one row of Store.UsageIn's result.
type AppUsage struct {
	AppID     int64
	AppName   string
	BytesUp   uint64
	BytesDown uint64
}

// DebugEvent records one delivered event's identity in the debug_mu-
// protected last-events ring (§5), mirroring the original AppMonitor's
// bounded DebugEvent buffer.
type DebugEvent struct {
	EventID      uint16
	ProviderName string
}

// DebugSnapshot is the debug_mu-protected diagnostic surface T-main reads:
// the last-events ring, per-(provider,event) counts, and the running
// total/parsed/DNS event counters.
type DebugSnapshot struct {
	LastEvents   []DebugEvent
	EventCounts  map[string]uint64
	TotalEvents  uint64
	ParsedEvents uint64
	DNSEvents    uint64
}
