//go:build !windows

package etw

import (
	"errors"

	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/trace"
)

// backend is the non-Windows stand-in: ETW only exists on Windows, so Open
// fails immediately with a clear reason rather than silently no-oping.
// This mirrors how collector/ebpf's 386||amd64-only probes behave on other
// architectures — Detect() reports unavailability up front, and a caller
// that ignores Detect() still gets a clean error instead of a crash.
type backend struct {
	openErr uint32
}

// NewBackend returns a backend that always fails Open with a descriptive
// error, since this build has no ETW implementation.
func NewBackend() trace.Backend {
	return &backend{}
}

var _ trace.Backend = (*backend)(nil)

func (b *backend) Open(sessionName string, providers []trace.Provider) error {
	b.openErr = 1
	return errors.New("etw: not supported on this platform")
}

func (b *backend) Process(sink trace.Sink) error {
	return errors.New("etw: not supported on this platform")
}

func (b *backend) Close() error { return nil }

func (b *backend) LastErrors() model.TraceDiagnostics {
	return model.TraceDiagnostics{LastOpenTraceError: b.openErr}
}
