// Package syslog defines the external system-log query collaborator §6
// describes, plus a journald-backed adapter for platforms that have one —
// grounded on the teacher's LogsCollector, which already knows how to shell
// out to journalctl with a bounded time window and known-unit filtering
// (collector/logs.go). The Windows production adapter (Event Log API) is
// out of scope for this package; Correlator depends only on the Querier
// interface.
package syslog

import (
	"context"
	"time"

	"github.com/saqw3r/InetMonitor/model"
)

// Querier is the external system-log query collaborator §6 names: given a
// channel and a time interval, return rendered events. A failing query
// degrades to an empty event list (§7) rather than aborting correlation.
type Querier interface {
	Query(ctx context.Context, channel string, start, end time.Time) ([]model.LogEvent, error)
}

// Channels are the two §4.9 Correlate queries.
var Channels = []string{"System", "Application"}
