//go:build windows

package etw

import "golang.org/x/sys/windows"

func detect() Capability {
	// Real-time ETW sessions require SeSystemProfilePrivilege, which in
	// practice means an elevated process. Probing for a privileged token
	// mirrors collector/ebpf.Detect's os.Geteuid() == 0 check.
	token := windows.GetCurrentProcessToken()
	isElevated := token.IsElevated()
	if !isElevated {
		return Capability{Reason: "process is not elevated; ETW real-time sessions require administrator privileges"}
	}
	return Capability{Available: true}
}
