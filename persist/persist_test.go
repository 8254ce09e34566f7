package persist

import (
	"errors"
	"testing"

	"github.com/saqw3r/InetMonitor/dnscache"
	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/procname"
)

type fakeDrainer struct {
	delta map[model.StatsKey]model.AccumulatedStats
}

func (f fakeDrainer) DrainDelta() map[model.StatsKey]model.AccumulatedStats {
	return f.delta
}

type fakeStore struct {
	apps       map[string]int64
	nextID     int64
	rows       []model.TrafficLogRow
	failOnName string
	logErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{apps: make(map[string]int64)}
}

func (f *fakeStore) GetOrAddApp(name string) (int64, error) {
	if f.failOnName != "" && name == f.failOnName {
		return 0, errors.New("fake store: forced failure")
	}
	if id, ok := f.apps[name]; ok {
		return id, nil
	}
	f.nextID++
	f.apps[name] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) LogTraffic(appID int64, up, down uint64) error {
	if f.logErr != nil {
		return f.logErr
	}
	f.rows = append(f.rows, model.TrafficLogRow{AppID: appID, BytesUp: up, BytesDown: down})
	return nil
}

func TestDisplayNameUsesDomainWithoutGeo(t *testing.T) {
	names := procname.New(nil)
	dns := dnscache.New()
	dns.Add("8.8.8.8", "dns.google")

	key := model.StatsKey{ProcessID: 0, RemoteIP: "8.8.8.8"}
	p := New(fakeDrainer{}, newFakeStore(), names, dns, nil, 0, nil)

	got := p.displayName(key)
	want := "System Idle -> dns.google"
	if got != want {
		t.Errorf("displayName = %q, want %q", got, want)
	}
}

func TestDisplayNameFallsBackToIPWithoutDomain(t *testing.T) {
	names := procname.New(nil)
	dns := dnscache.New()
	key := model.StatsKey{ProcessID: 4, RemoteIP: "1.2.3.4"}
	p := New(fakeDrainer{}, newFakeStore(), names, dns, nil, 0, nil)

	got := p.displayName(key)
	want := "System -> 1.2.3.4"
	if got != want {
		t.Errorf("displayName = %q, want %q", got, want)
	}
}

func TestFlushWritesOneRowPerDeltaEntry(t *testing.T) {
	key := model.StatsKey{ProcessID: 4, RemoteIP: "1.2.3.4"}
	drainer := fakeDrainer{delta: map[model.StatsKey]model.AccumulatedStats{
		key: {BytesUp: 2048, BytesDown: 0},
	}}
	st := newFakeStore()
	p := New(drainer, st, procname.New(nil), dnscache.New(), nil, 0, nil)

	p.Flush()

	if len(st.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(st.rows))
	}
	if st.rows[0].BytesUp != 2048 {
		t.Fatalf("expected 2048 bytes up, got %d", st.rows[0].BytesUp)
	}
}

func TestFlushEmptyDeltaboardWritesNothing(t *testing.T) {
	st := newFakeStore()
	p := New(fakeDrainer{delta: map[model.StatsKey]model.AccumulatedStats{}}, st, nil, nil, nil, 0, nil)
	p.Flush()
	if len(st.rows) != 0 {
		t.Fatalf("expected no rows written for empty deltaboard, got %d", len(st.rows))
	}
}

func TestFlushContinuesAfterAppError(t *testing.T) {
	key1 := model.StatsKey{ProcessID: 1, RemoteIP: "1.1.1.1"}
	key2 := model.StatsKey{ProcessID: 2, RemoteIP: "2.2.2.2"}
	drainer := fakeDrainer{delta: map[model.StatsKey]model.AccumulatedStats{
		key1: {BytesUp: 1},
		key2: {BytesUp: 2},
	}}
	st := newFakeStore()
	// With names/dns/geo nil, displayName reduces to " -> "+RemoteIP; force
	// key1's GetOrAddApp call to fail and confirm key2 is still persisted.
	st.failOnName = " -> 1.1.1.1"
	p := New(drainer, st, nil, nil, nil, 0, nil)

	p.Flush()

	if len(st.rows) != 1 {
		t.Fatalf("expected the failing entry to be skipped and the other written, got %d rows", len(st.rows))
	}
	if st.rows[0].BytesUp != 2 {
		t.Fatalf("expected the surviving row to be key2's 2 bytes up, got %d", st.rows[0].BytesUp)
	}
	if _, ok := st.apps[st.failOnName]; ok {
		t.Fatalf("app for the failing name should never have been created")
	}
}
