//go:build windows

package procname

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsQuerier implements Querier against
// OpenProcess+QueryFullProcessImageName, with a ToolHelp32 snapshot as the
// fallback enumeration path §4.3 calls for.
type windowsQuerier struct{}

// NewOSQuerier returns the real Windows process-name Querier.
func NewOSQuerier() Querier { return windowsQuerier{} }

func (windowsQuerier) ImagePath(pid uint32) (string, bool) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(handle)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", false
	}
	return syscall.UTF16ToString(buf[:size]), true
}

func (windowsQuerier) Snapshot() map[uint32]string {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil
	}
	defer windows.CloseHandle(snap)

	out := make(map[uint32]string)
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return out
	}
	for {
		name := syscall.UTF16ToString(entry.ExeFile[:])
		out[entry.ProcessID] = name
		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}
	return out
}
