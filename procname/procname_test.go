package procname

import "testing"

type fakeQuerier struct {
	images   map[uint32]string
	snapshot map[uint32]string
}

func (f fakeQuerier) ImagePath(pid uint32) (string, bool) {
	p, ok := f.images[pid]
	return p, ok
}

func (f fakeQuerier) Snapshot() map[uint32]string {
	return f.snapshot
}

func TestWellKnownPids(t *testing.T) {
	c := New(nil)
	if got := c.NameOf(0); got != "System Idle" {
		t.Errorf("pid 0 = %q, want System Idle", got)
	}
	if got := c.NameOf(4); got != "System" {
		t.Errorf("pid 4 = %q, want System", got)
	}
}

func TestDirectQueryBasename(t *testing.T) {
	q := fakeQuerier{images: map[uint32]string{100: `C:\Windows\System32\svchost.exe`}}
	c := New(q)
	if got := c.NameOf(100); got != "svchost.exe" {
		t.Errorf("NameOf(100) = %q, want svchost.exe", got)
	}
}

func TestSnapshotFallback(t *testing.T) {
	q := fakeQuerier{
		images:   map[uint32]string{},
		snapshot: map[uint32]string{200: "chrome.exe"},
	}
	c := New(q)
	if got := c.NameOf(200); got != "chrome.exe" {
		t.Errorf("NameOf(200) = %q, want chrome.exe", got)
	}
}

func TestSentinelFallback(t *testing.T) {
	c := New(fakeQuerier{})
	if got := c.NameOf(999); got != "[PID:999]" {
		t.Errorf("NameOf(999) = %q, want [PID:999]", got)
	}
}

func TestMemoizedNeverEvicted(t *testing.T) {
	calls := 0
	q := countingQuerier{fakeQuerier{images: map[uint32]string{7: "foo.exe"}}, &calls}
	c := New(q)
	first := c.NameOf(7)
	second := c.NameOf(7)
	if first != second {
		t.Fatalf("expected stable name, got %q then %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one OS query, got %d", calls)
	}
}

type countingQuerier struct {
	fakeQuerier
	calls *int
}

func (c countingQuerier) ImagePath(pid uint32) (string, bool) {
	*c.calls++
	return c.fakeQuerier.ImagePath(pid)
}
