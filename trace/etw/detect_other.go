//go:build !windows

package etw

func detect() Capability {
	return Capability{Reason: "ETW is only available on Windows"}
}
