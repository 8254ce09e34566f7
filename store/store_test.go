package store

import (
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrAddAppIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.GetOrAddApp("chrome.exe -> example.com")
	if err != nil {
		t.Fatalf("first GetOrAddApp: %v", err)
	}
	id2, err := s.GetOrAddApp("chrome.exe -> example.com")
	if err != nil {
		t.Fatalf("second GetOrAddApp: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable id, got %d then %d", id1, id2)
	}
}

func TestGetOrAddAppConcurrentConvergesToSameID(t *testing.T) {
	s := openTestStore(t)

	const n = 20
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.GetOrAddApp("steam.exe -> steampowered.com")
			if err != nil {
				t.Errorf("GetOrAddApp: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("expected all concurrent calls to converge to id %d, got %d at index %d", ids[0], ids[i], i)
		}
	}
}

func TestLogTrafficAndUsageIn(t *testing.T) {
	s := openTestStore(t)
	var tick int64 = 1000
	s.now = func() int64 { tick++; return tick }

	id, err := s.GetOrAddApp("app-a")
	if err != nil {
		t.Fatalf("GetOrAddApp: %v", err)
	}
	if err := s.LogTraffic(id, 1024, 0); err != nil {
		t.Fatalf("LogTraffic: %v", err)
	}
	if err := s.LogTraffic(id, 1024, 0); err != nil {
		t.Fatalf("LogTraffic: %v", err)
	}

	usage, err := s.UsageIn(3600)
	if err != nil {
		t.Fatalf("UsageIn: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected one app in usage, got %d", len(usage))
	}
	if usage[0].BytesUp != 2048 {
		t.Fatalf("expected 2048 bytes up, got %d", usage[0].BytesUp)
	}
}

func TestFindPeaksBucketAndThresholdInvariants(t *testing.T) {
	s := openTestStore(t)
	s.now = func() int64 { return 200 }

	id, err := s.GetOrAddApp("downloader.exe")
	if err != nil {
		t.Fatalf("GetOrAddApp: %v", err)
	}

	// One download of 1 MiB logged "at" t=100 (bucket 60).
	if _, err := s.db.Exec(`INSERT INTO traffic_log(timestamp, app_id, bytes_up, bytes_down) VALUES (100, ?, 0, 1048576)`, id); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	// A small amount that should not meet the threshold, in a later bucket.
	if _, err := s.db.Exec(`INSERT INTO traffic_log(timestamp, app_id, bytes_up, bytes_down) VALUES (130, ?, 0, 10)`, id); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	peaks, err := s.FindPeaks(3600, 1048576)
	if err != nil {
		t.Fatalf("FindPeaks: %v", err)
	}
	if len(peaks) != 1 {
		t.Fatalf("expected exactly one peak, got %d", len(peaks))
	}
	p := peaks[0]
	if p.MinuteBucketStart%60 != 0 {
		t.Fatalf("bucket start %d not aligned to 60", p.MinuteBucketStart)
	}
	if p.MinuteBucketStart != 60 {
		t.Fatalf("expected bucket 60, got %d", p.MinuteBucketStart)
	}
	if p.TotalBytes < 1048576 {
		t.Fatalf("expected total >= threshold, got %d", p.TotalBytes)
	}
}

func TestTrafficLogRowsAlwaysReferenceAnExistingApp(t *testing.T) {
	s := openTestStore(t)
	id, err := s.GetOrAddApp("foo.exe")
	if err != nil {
		t.Fatalf("GetOrAddApp: %v", err)
	}
	if err := s.LogTraffic(id, 1, 1); err != nil {
		t.Fatalf("LogTraffic: %v", err)
	}
	usage, err := s.UsageIn(3600)
	if err != nil {
		t.Fatalf("UsageIn: %v", err)
	}
	if len(usage) != 1 || usage[0].AppID != id {
		t.Fatalf("expected usage row referencing app id %d, got %+v", id, usage)
	}
}
