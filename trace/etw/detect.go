// Package etw is the Windows ETW adapter implementing trace.Backend. As
// with the teacher's collector/ebpf package (build-tag-gated per-arch
// probes plus a capability Detect() check), the real syscalls only compile
// on //go:build windows; every other platform gets a backend that reports
// itself unavailable rather than a fabricated implementation.
package etw

// Capability describes whether this host can run an ETW session.
type Capability struct {
	Available bool
	Reason    string
}

// Detect reports ETW availability the way collector/ebpf.Detect reports
// BTF/root availability: best-effort, side-effect-free, safe to call
// before Start.
func Detect() Capability {
	return detect()
}
