package trace

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saqw3r/InetMonitor/model"
)

// fakeBackend is a Backend whose Process blocks until Close is called,
// letting tests exercise Start/Stop without any real tracing subsystem.
type fakeBackend struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	stopCh   chan struct{}
	openErr  error
	sentinel model.RawEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stopCh: make(chan struct{})}
}

func (f *fakeBackend) Open(sessionName string, providers []Provider) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Process(sink Sink) error {
	sink(f.sentinel)
	<-f.stopCh
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.stopCh)
	}
	return nil
}

func (f *fakeBackend) LastErrors() model.TraceDiagnostics {
	return model.TraceDiagnostics{}
}

func TestSessionStartInvokesSinkAndStopJoins(t *testing.T) {
	backend := newFakeBackend()
	backend.sentinel = model.RawEvent{ProcessID: 42}

	received := make(chan model.RawEvent, 1)
	s := New("test-session", backend)

	if err := s.Start(func(ev model.RawEvent) { received <- ev }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case ev := <-received:
		if ev.ProcessID != 42 {
			t.Fatalf("expected ProcessID 42, got %d", ev.ProcessID)
		}
	case <-time.After(time.Second):
		t.Fatal("sink was never invoked")
	}

	s.Stop()

	backend.mu.Lock()
	closed := backend.closed
	backend.mu.Unlock()
	if !closed {
		t.Fatal("expected backend.Close to have been called")
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	s := New("idempotent", backend)
	if err := s.Start(func(model.RawEvent) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop() // must not panic or block
}

func TestSessionStartTwiceFails(t *testing.T) {
	backend := newFakeBackend()
	s := New("double-start", backend)
	if err := s.Start(func(model.RawEvent) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(func(model.RawEvent) {}); err == nil {
		t.Fatal("expected error starting an already-running session")
	}
}

func TestSessionEmptyNameIsGenerated(t *testing.T) {
	backend := newFakeBackend()
	s := New("", backend)
	if s.Name() == "" {
		t.Fatal("expected a generated non-empty session name")
	}
	defer s.Stop()
	if err := s.Start(func(model.RawEvent) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestSessionStartFailsWhenOpenFails(t *testing.T) {
	backend := newFakeBackend()
	backend.openErr = errors.New("boom")
	s := New("open-fail", backend)
	if err := s.Start(func(model.RawEvent) {}); err == nil {
		t.Fatal("expected Start to fail when Open fails")
	}
}
