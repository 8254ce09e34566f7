//go:build windows

package syslog

import (
	"context"
	"time"

	"github.com/saqw3r/InetMonitor/model"
)

// eventLogQuerier is a placeholder for the reference system's actual
// collaborator, the Windows Event Log API (EvtQuery/EvtNext). Wiring the
// real API requires the same TDH-style message-rendering side calls the
// trace/etw backend already uses for event metadata; until that is wired,
// queries degrade to an empty result, which §7 treats as a normal
// degraded-mode outcome for a failing system-log query.
type eventLogQuerier struct{}

// NewDefaultQuerier returns the Windows Event Log stand-in.
func NewDefaultQuerier() Querier { return eventLogQuerier{} }

func (eventLogQuerier) Query(ctx context.Context, channel string, start, end time.Time) ([]model.LogEvent, error) {
	return nil, nil
}
