// Package trace implements C1: the kernel trace session lifecycle manager.
// It turns a vendor-specific kernel trace subscription into a cooperative
// event stream, mirroring the attach/read/close lifecycle the teacher uses
// for its eBPF sentinel probes (collector/ebpf/sentinel.go), generalized
// from "attach N independent BPF probes" to "start one named ETW session
// with three enabled providers".
package trace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/saqw3r/InetMonitor/model"
)

// Sink receives one RawEvent per kernel-delivered event, synchronously, in
// kernel-delivery order. Implementations must not retain the event or its
// Properties slice beyond the call.
type Sink func(model.RawEvent)

// Provider identifies one of the three event providers §4.2 enables:
// network send, network receive, and DNS.
type Provider struct {
	Name string
	GUID [16]byte
}

// Well-known provider identities, matched by fixed GUID in the parser.
// These mirror the original ETWController's three enabled providers.
var (
	ProviderNetwork       = Provider{Name: "network", GUID: [16]byte{0x7d, 0xd4, 0x2a, 0x49, 0x15, 0xac, 0x44, 0x98, 0x97, 0xe0, 0xd9, 0xd6, 0xe7, 0x73, 0x4b, 0x7d}}
	ProviderDNS           = Provider{Name: "dns", GUID: [16]byte{0x1c, 0x95, 0x12, 0x6e, 0x78, 0x79, 0x4b, 0x90, 0x91, 0xca, 0x46, 0x74, 0x64, 0x48, 0xa0, 0x40}}
	ProviderKernelNetwork = Provider{Name: "kernel-network", GUID: [16]byte{0x7d, 0xd4, 0x2a, 0x49, 0x15, 0xac, 0x44, 0x98, 0x97, 0xe0, 0xd9, 0xd6, 0xe7, 0x73, 0x4b, 0x7e}}
)

// enabledProviders is the fixed provider set §4.1 requires: network send,
// network receive, DNS — enabled at "information" level with the
// all-keywords mask.
var enabledProviders = []Provider{ProviderNetwork, ProviderDNS, ProviderKernelNetwork}

// ProviderName returns the well-known short name for id if it matches one
// of the three enabled providers, or id rendered as a standard GUID string
// otherwise — the same "known GUID, else UuidToString" fallback the
// original ETWController::OnEvent used to label debug events.
func ProviderName(id [16]byte) string {
	switch id {
	case ProviderNetwork.GUID:
		return ProviderNetwork.Name
	case ProviderDNS.GUID:
		return ProviderDNS.Name
	case ProviderKernelNetwork.GUID:
		return ProviderKernelNetwork.Name
	default:
		return formatGUID(id)
	}
}

func formatGUID(id [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uint32(id[0])|uint32(id[1])<<8|uint32(id[2])<<16|uint32(id[3])<<24,
		uint16(id[4])|uint16(id[5])<<8,
		uint16(id[6])|uint16(id[7])<<8,
		uint16(id[8])<<8|uint16(id[9]),
		id[10:16])
}

// Backend is the narrow vendor-ABI boundary. The real implementation lives
// in trace/etw (Windows ETW, behind //go:build windows); spec.md §1/§6
// treats the vendor ABI itself as an external collaborator, so Backend is
// the contract this package depends on rather than a concrete syscall
// surface.
type Backend interface {
	// Open establishes the named session and enables providers. It must
	// not block.
	Open(sessionName string, providers []Provider) error
	// Process blocks inside the vendor's trace-processing call, invoking
	// sink for each delivered event, until Close unblocks it. Process
	// tolerates Close being called concurrently: the call returns promptly
	// and sink is never invoked again afterward.
	Process(sink Sink) error
	// Close stops and tears down the session. Idempotent.
	Close() error
	// LastErrors reports the most recent vendor error code for each of the
	// four ABI calls (start-trace, provider-enable, open-trace,
	// process-trace), 0 meaning "no error yet".
	LastErrors() model.TraceDiagnostics
}

// leaked tracks the backends of sessions this process has opened and not
// yet stopped, keyed by session name, so Start force-stops a same-named
// session left open earlier in this process before recreating it. A
// session left behind by another process (for example a crashed earlier
// run) is not tracked here and is not stopped.
var leaked sync.Map // sessionName(string) -> Backend

// Session manages one named trace session's lifecycle on a dedicated
// worker goroutine.
type Session struct {
	name    string
	backend Backend

	startTraceErr   atomic.Uint32
	enableErr       atomic.Uint32
	openTraceErr    atomic.Uint32
	processTraceErr atomic.Uint32

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Session bound to backend. If name is empty a unique name
// is generated (google/uuid) so repeated runs never collide with a leaked
// prior session under a different identity.
func New(name string, backend Backend) *Session {
	if name == "" {
		name = "InetMonitor-" + uuid.NewString()
	}
	return &Session{name: name, backend: backend}
}

// Start opens the session, enables the three providers, and spawns the
// worker goroutine that blocks inside Process. sink is invoked synchronously
// from that goroutine for every delivered event, in kernel-delivery order.
func (s *Session) Start(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("trace: session %q already running", s.name)
	}

	// Force-stop a same-named session this process leaked on a previous,
	// incompletely-shutdown run.
	if prior, ok := leaked.LoadAndDelete(s.name); ok {
		if b, ok := prior.(Backend); ok {
			_ = b.Close()
		}
	}

	if err := s.backend.Open(s.name, enabledProviders); err != nil {
		s.publishErrors()
		return fmt.Errorf("trace: open session %q: %w", s.name, err)
	}
	leaked.Store(s.name, s.backend)

	s.done = make(chan struct{})
	s.running = true
	s.stopOnce = sync.Once{}

	go func() {
		defer close(s.done)
		err := s.backend.Process(func(ev model.RawEvent) {
			sink(ev)
		})
		s.publishErrors()
		_ = err // a Process error after Stop is expected and not reported further
	}()

	return nil
}

// Stop idempotently stops the session and joins the worker. It is safe to
// call while the worker is mid-callback: that callback completes, Process
// returns, and Stop's return happens-after the worker goroutine exits — no
// callback outlives Stop's return.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		_ = s.backend.Close()
		leaked.Delete(s.name)

		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done != nil {
			<-done
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})
}

// publishErrors copies the backend's last-error codes into the session's
// own atomics so LastErrors is lock-free even while Process is running.
func (s *Session) publishErrors() {
	diag := s.backend.LastErrors()
	s.startTraceErr.Store(diag.LastStartTraceError)
	s.enableErr.Store(diag.LastEnableError)
	s.openTraceErr.Store(diag.LastOpenTraceError)
	s.processTraceErr.Store(diag.LastProcessTraceError)
}

// LastErrors returns the four last-error codes without locking, for a
// diagnostic surface.
func (s *Session) LastErrors() model.TraceDiagnostics {
	return model.TraceDiagnostics{
		LastStartTraceError:   s.startTraceErr.Load(),
		LastEnableError:       s.enableErr.Load(),
		LastOpenTraceError:    s.openTraceErr.Load(),
		LastProcessTraceError: s.processTraceErr.Load(),
	}
}

// Name returns the session's kernel-visible name.
func (s *Session) Name() string { return s.name }
