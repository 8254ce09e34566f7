// Package analysis implements C9: PeakDetector, Correlator, and
// ConclusionGenerator, invoked synchronously on user request and reading
// only from Store and the external system-log collaborator. Its ordered,
// first-match-wins rule evaluation is the same shape as the teacher's
// RCA analyzers (engine/rca.go builds a list of candidate causes and picks
// by score) — generalized from "score every candidate, take the max" to
// "evaluate candidates in a fixed priority order, take the first match",
// which is what the reference ConclusionGenerator actually does.
package analysis

import (
	"github.com/saqw3r/InetMonitor/model"
	"github.com/montanaflynn/stats"
)

// PeakStore is the read surface PeakDetector needs from the Store.
type PeakStore interface {
	FindPeaks(lastNSeconds int64, thresholdBytes uint64) ([]model.TrafficPeak, error)
	UsageIn(lastNSeconds int64) ([]model.AppUsage, error)
}

// PeakDetector wraps Store.FindPeaks and attaches a statistical score: how
// many standard deviations this bucket's total sits above the mean of all
// peaks the same query returned, across every app. Scoring is an enrichment on top of the exact
// find_peaks semantics spec.md §4.8 defines; it never changes which rows
// qualify as peaks.
type PeakDetector struct {
	store PeakStore
}

// NewPeakDetector creates a PeakDetector over store.
func NewPeakDetector(store PeakStore) *PeakDetector {
	return &PeakDetector{store: store}
}

// Detect returns every minute-bucket whose total bytes for one app meet or
// exceed thresholdBytes within the last windowSeconds, scored against the
// distribution of all qualifying buckets in the same window.
func (d *PeakDetector) Detect(windowSeconds int64, thresholdBytes uint64) ([]model.TrafficPeak, error) {
	peaks, err := d.store.FindPeaks(windowSeconds, thresholdBytes)
	if err != nil {
		return nil, err
	}
	if len(peaks) < 2 {
		return peaks, nil
	}

	totals := make([]float64, len(peaks))
	for i, p := range peaks {
		totals[i] = float64(p.TotalBytes)
	}
	mean, errMean := stats.Mean(totals)
	stddev, errStd := stats.StandardDeviation(totals)
	if errMean != nil || errStd != nil || stddev == 0 {
		return peaks, nil
	}

	for i := range peaks {
		peaks[i].Score = (totals[i] - mean) / stddev
	}
	return peaks, nil
}
