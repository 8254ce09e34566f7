package aggregator

import (
	"sync"
	"testing"

	"github.com/saqw3r/InetMonitor/model"
)

func TestApplyEventAccumulatesBothMaps(t *testing.T) {
	a := New(nil, nil, nil)
	key := model.StatsKey{ProcessID: 42, RemoteIP: "8.8.8.8"}

	a.ApplyEvent(model.TrafficEvent{ProcessID: 42, RemoteIP: "8.8.8.8", Bytes: 1024, Direction: model.DirectionUpload})
	a.ApplyEvent(model.TrafficEvent{ProcessID: 42, RemoteIP: "8.8.8.8", Bytes: 1024, Direction: model.DirectionUpload})

	delta := a.DrainDelta()
	if delta[key].BytesUp != 2048 {
		t.Fatalf("deltaboard up = %d, want 2048", delta[key].BytesUp)
	}

	snap := a.SnapshotCumulative()
	found := false
	for _, e := range snap {
		if e.Key == key {
			found = true
			if e.Stats.BytesUp != 2048 {
				t.Fatalf("cumulative up = %d, want 2048", e.Stats.BytesUp)
			}
		}
	}
	if !found {
		t.Fatal("expected key present in cumulative snapshot")
	}
}

func TestDrainDeltaIsAtomicSwap(t *testing.T) {
	a := New(nil, nil, nil)
	key := model.StatsKey{ProcessID: 1, RemoteIP: "1.1.1.1"}
	a.ApplyEvent(model.TrafficEvent{ProcessID: 1, RemoteIP: "1.1.1.1", Bytes: 500, Direction: model.DirectionDownload})

	first := a.DrainDelta()
	if first[key].BytesDown != 500 {
		t.Fatalf("first drain = %d, want 500", first[key].BytesDown)
	}

	second := a.DrainDelta()
	if _, ok := second[key]; ok {
		t.Fatal("second drain should be empty; event must not be counted twice")
	}

	snap := a.SnapshotCumulative()
	for _, e := range snap {
		if e.Key == key && e.Stats.BytesDown != 500 {
			t.Fatalf("cumulative should still show 500 after drains, got %d", e.Stats.BytesDown)
		}
	}
}

func TestCumulativeMatchesSumOfAppliedEvents(t *testing.T) {
	a := New(nil, nil, nil)
	key := model.StatsKey{ProcessID: 7, RemoteIP: "2.2.2.2"}

	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.ApplyEvent(model.TrafficEvent{ProcessID: 7, RemoteIP: "2.2.2.2", Bytes: 10, Direction: model.DirectionUpload})
		}()
	}
	wg.Wait()

	snap := a.SnapshotCumulative()
	for _, e := range snap {
		if e.Key == key && e.Stats.BytesUp != n*10 {
			t.Fatalf("cumulative up = %d, want %d", e.Stats.BytesUp, n*10)
		}
	}
}

func TestEmptyDeltaboardDrainIsEmpty(t *testing.T) {
	a := New(nil, nil, nil)
	delta := a.DrainDelta()
	if len(delta) != 0 {
		t.Fatalf("expected empty drain, got %d entries", len(delta))
	}
}
