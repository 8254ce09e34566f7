// Package parser implements C2: schema-discovery event parsing. On first
// sight of a (provider, event_id) pair it learns which fields carry byte
// counts and remote addresses, caches the verdict, and from then on does a
// fast typed extraction — the same "attach once, read many times" shape the
// teacher uses for its eBPF probes (collector/ebpf/*.go: attach() runs once,
// read() runs every tick), generalized from "map iteration" to
// "schema-guided property extraction".
package parser

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/trace"
)

// MetadataExtractor obtains a RawEvent's self-describing schema metadata —
// the TDH-equivalent side API spec.md §4.2 step 1 calls for. It is not
// reentrant (matching the real TDH API), so calls to it are serialized by
// Parser's own mutex rather than left to the caller.
type MetadataExtractor interface {
	// Describe returns the task name and opcode name TDH reports for this
	// event, used only on first sight of a (provider, event_id) pair.
	Describe(ev model.RawEvent) (taskName, opcodeName string)
}

// runtimeExtractor reads TaskName/OpcodeName directly off the RawEvent,
// which is what the etw backend already populates from
// TdhGetEventInformation. It exists as an indirection point so tests can
// substitute a MetadataExtractor that disagrees with RawEvent's own fields.
type runtimeExtractor struct{}

func (runtimeExtractor) Describe(ev model.RawEvent) (string, string) {
	return ev.TaskName, ev.OpcodeName
}

// Kind classifies a parse result.
type Kind int

const (
	KindIgnore Kind = iota
	KindTraffic
	KindDNS
)

// Result is Parser.Parse's output: exactly one of Traffic or DNS is
// meaningful, selected by Kind.
type Result struct {
	Kind    Kind
	Traffic model.TrafficEvent
	DNS     model.DnsObservation
}

// dnsEventIDMin/Max bound the DNS event ids spec.md §4.2 names: DNS parsing
// is attempted only for events in [3000, 3020] on the DNS provider.
const (
	dnsEventIDMin = 3000
	dnsEventIDMax = 3020
)

var uploadIDs = map[uint16]bool{10: true, 12: true, 26: true, 28: true}
var downloadIDs = map[uint16]bool{11: true, 13: true, 27: true, 29: true}

// sizeFieldExact lists the exact size-field names; isSizeFieldName also
// accepts any name containing "Bytes". The first property, in event order,
// whose name matches wins.
var sizeFieldExact = []string{"size", "Size", "datalen"}

var addrFieldSubstrings = []string{"Addr", "daddr", "RemoteAddress"}

// Parser is C2. One Parser instance owns one schema cache and should be
// shared by every RawEvent delivered on the trace worker goroutine — the
// whole point of the cache is that it survives across events.
type Parser struct {
	extractor MetadataExtractor

	schemaMu sync.Mutex
	schema   map[uint64]model.EventSchema

	// tdhMu serializes calls into extractor, mirroring §4.2's tdh_mu: the
	// real metadata extractor is not reentrant.
	tdhMu sync.Mutex

	lastParseErr atomic.Value // string

	logger model.Logger
}

// New creates a Parser with an empty schema cache. A nil logger defaults to
// a no-op logger; a nil extractor defaults to reading TaskName/OpcodeName
// straight off the RawEvent.
func New(extractor MetadataExtractor, logger model.Logger) *Parser {
	if extractor == nil {
		extractor = runtimeExtractor{}
	}
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &Parser{
		extractor: extractor,
		schema:    make(map[uint64]model.EventSchema),
		logger:    logger,
	}
}

// Parse classifies and extracts ev. Failures are silent per §7 — Parse
// never returns an error, only KindIgnore — but the last failure reason is
// recorded for diagnostics via LastParseError.
func (p *Parser) Parse(ev model.RawEvent) Result {
	isDNSProvider := ev.ProviderID == trace.ProviderDNS.GUID
	isNetworkProvider := ev.ProviderID == trace.ProviderNetwork.GUID ||
		ev.ProviderID == trace.ProviderKernelNetwork.GUID ||
		isDNSProvider

	if !isNetworkProvider {
		return Result{Kind: KindIgnore}
	}

	if isDNSProvider && ev.EventID >= dnsEventIDMin && ev.EventID <= dnsEventIDMax {
		if obs, ok := p.parseDNS(ev); ok {
			return Result{Kind: KindDNS, DNS: obs}
		}
		return Result{Kind: KindIgnore}
	}

	te, ok := p.parseTraffic(ev)
	if !ok {
		return Result{Kind: KindIgnore}
	}
	return Result{Kind: KindTraffic, Traffic: te}
}

// parseTraffic runs schema discovery (on first sight) or the fast path
// (schema already cached), per §4.2.
func (p *Parser) parseTraffic(ev model.RawEvent) (model.TrafficEvent, bool) {
	key := model.SchemaKey(ev.ProviderID, ev.EventID)

	p.schemaMu.Lock()
	schema, found := p.schema[key]
	p.schemaMu.Unlock()

	if !found {
		schema = p.discoverSchema(ev)
		p.schemaMu.Lock()
		// Another goroutine may have published the same key first; the
		// cache is write-once per key, so keep whichever won the race —
		// both derive the same verdict from the same event anyway.
		if existing, ok := p.schema[key]; ok {
			schema = existing
		} else {
			p.schema[key] = schema
		}
		p.schemaMu.Unlock()
	}

	if !schema.Relevant {
		return model.TrafficEvent{}, false
	}

	bytes, ok := p.readSizeProperty(ev, schema.SizeField)
	if !ok || bytes == 0 {
		return model.TrafficEvent{}, false
	}

	remoteIP := ""
	if schema.AddressField != "" {
		remoteIP = p.readAddressProperty(ev, schema.AddressField)
	}

	return model.TrafficEvent{
		Timestamp: time.Unix(ev.Timestamp, 0),
		ProcessID: ev.ProcessID,
		Bytes:     bytes,
		Direction: schema.Direction,
		RemoteIP:  remoteIP,
	}, true
}

// discoverSchema runs the four-step classification in §4.2 for a
// (provider, event_id) pair seen for the first time.
func (p *Parser) discoverSchema(ev model.RawEvent) model.EventSchema {
	p.tdhMu.Lock()
	taskName, opcodeName := p.extractor.Describe(ev)
	p.tdhMu.Unlock()

	if taskName == "" {
		taskName = ev.TaskName
	}
	if opcodeName == "" {
		opcodeName = ev.OpcodeName
	}

	schema := model.EventSchema{Direction: model.DirectionUnknown}

	switch {
	case uploadIDs[ev.EventID] || strings.Contains(taskName, "Send") || strings.Contains(taskName, "Tx") ||
		strings.Contains(opcodeName, "Send") || strings.Contains(opcodeName, "Tx"):
		schema.Direction = model.DirectionUpload
	case downloadIDs[ev.EventID] || strings.Contains(taskName, "Recv") || strings.Contains(taskName, "Receive") ||
		strings.Contains(taskName, "Rx") || strings.Contains(opcodeName, "Recv") ||
		strings.Contains(opcodeName, "Receive") || strings.Contains(opcodeName, "Rx"):
		schema.Direction = model.DirectionDownload
	}

	for _, prop := range ev.Properties {
		if schema.SizeField == "" && isSizeFieldName(prop.Name) {
			schema.SizeField = prop.Name
		}
		if schema.AddressField == "" && isAddressFieldName(prop.Name) {
			schema.AddressField = prop.Name
		}
	}

	schema.Relevant = schema.SizeField != ""
	return schema
}

func isSizeFieldName(name string) bool {
	for _, exact := range sizeFieldExact {
		if name == exact {
			return true
		}
	}
	return strings.Contains(name, "Bytes")
}

func isAddressFieldName(name string) bool {
	for _, sub := range addrFieldSubstrings {
		if strings.Contains(name, sub) {
			return true
		}
	}
	return false
}

func (p *Parser) findProperty(ev model.RawEvent, name string) (model.RawProperty, bool) {
	for _, prop := range ev.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return model.RawProperty{}, false
}

// readSizeProperty accepts 4-byte and 8-byte little-endian encodings, per
// §4.2.
func (p *Parser) readSizeProperty(ev model.RawEvent, field string) (uint64, bool) {
	prop, ok := p.findProperty(ev, field)
	if !ok {
		p.recordParseError(fmt.Sprintf("size field %q missing on event", field))
		return 0, false
	}
	switch len(prop.Bytes) {
	case 4:
		return uint64(leUint32(prop.Bytes)), true
	case 8:
		return leUint64(prop.Bytes), true
	default:
		p.recordParseError(fmt.Sprintf("size field %q has unsupported width %d", field, len(prop.Bytes)))
		return 0, false
	}
}

// readAddressProperty renders a 4-byte value as dotted-quad
// (least-significant-octet-first, per the original DnsResolver's wire
// decoding) or a 16-byte value as eight colon-separated lowercase hex
// groups. Any other width, or a missing property, yields an empty string —
// the event is still counted for bytes, with RemoteIP left empty (§7).
func (p *Parser) readAddressProperty(ev model.RawEvent, field string) string {
	prop, ok := p.findProperty(ev, field)
	if !ok {
		return ""
	}
	switch len(prop.Bytes) {
	case 4:
		return IPv4ToString(leUint32(prop.Bytes))
	case 16:
		return IPv6ToString(prop.Bytes)
	default:
		return ""
	}
}

// parseDNS implements §4.2's DNS path: QueryName fills query_name; the
// first of QueryResults or Address fills result_ip. Emit only if both are
// non-empty.
func (p *Parser) parseDNS(ev model.RawEvent) (model.DnsObservation, bool) {
	var obs model.DnsObservation
	for _, prop := range ev.Properties {
		switch prop.Name {
		case "QueryName":
			obs.QueryName = string(prop.Bytes)
		case "QueryResults":
			if obs.ResultIP == "" {
				obs.ResultIP = firstIPFromResults(string(prop.Bytes))
			}
		case "Address":
			if obs.ResultIP == "" {
				obs.ResultIP = string(prop.Bytes)
			}
		}
	}
	if obs.QueryName == "" || obs.ResultIP == "" {
		return model.DnsObservation{}, false
	}
	return obs, true
}

// firstIPFromResults extracts the first address out of ETW's
// semicolon-separated QueryResults string (e.g. "93.184.216.34;2606:..;").
func firstIPFromResults(results string) string {
	results = strings.TrimSuffix(results, ";")
	parts := strings.Split(results, ";")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}

func (p *Parser) recordParseError(msg string) {
	p.lastParseErr.Store(msg)
	p.logger.Debugw("parser: dropped event", "reason", msg)
}

// LastParseError returns the most recent silent-drop reason, for
// diagnostics. Empty if nothing has been dropped yet.
func (p *Parser) LastParseError() string {
	v, _ := p.lastParseErr.Load().(string)
	return v
}

// SchemaCacheSize reports how many (provider, event_id) schemas have been
// learned, for diagnostics and tests.
func (p *Parser) SchemaCacheSize() int {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	return len(p.schema)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
