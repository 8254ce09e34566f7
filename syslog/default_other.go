//go:build !windows

package syslog

// NewDefaultQuerier returns the journald-backed Querier on platforms that
// have one.
func NewDefaultQuerier() Querier { return JournaldQuerier{} }
