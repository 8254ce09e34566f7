package analysis

import (
	"context"
	"time"

	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/syslog"
)

// AppResolver is the Store read surface that lists apps with their display
// names. Correlate does not use it: each peak already carries AppName.
type AppResolver interface {
	UsageIn(lastNSeconds int64) ([]model.AppUsage, error)
}

// Correlator is C9's second half: for each peak, pull nearby system-log
// events and hand them to ConclusionGenerator.
type Correlator struct {
	querier    syslog.Querier
	generator  *ConclusionGenerator
}

// NewCorrelator creates a Correlator over querier (the external
// system-log collaborator).
func NewCorrelator(querier syslog.Querier) *Correlator {
	return &Correlator{querier: querier, generator: NewConclusionGenerator()}
}

// Correlated pairs one peak with its conclusion.
type Correlated struct {
	Peak       model.TrafficPeak
	Conclusion model.AnalysisConclusion
}

// Correlate implements the per-peak part of §4.9's Correlate; the peaks
// come from PeakDetector.Detect. For each peak, query [bucket-60, bucket+120], merge System and
// Application channel events, and feed them to ConclusionGenerator along
// with the peak's app name.
func (c *Correlator) Correlate(ctx context.Context, peaks []model.TrafficPeak) []Correlated {
	out := make([]Correlated, 0, len(peaks))
	for _, peak := range peaks {
		start := time.Unix(peak.MinuteBucketStart-60, 0)
		end := time.Unix(peak.MinuteBucketStart+120, 0)

		var events []model.LogEvent
		for _, channel := range syslog.Channels {
			found, err := c.querier.Query(ctx, channel, start, end)
			if err != nil {
				// A failing system-log query degrades to an empty event
				// list; the conclusion rules still run on the app name
				// alone (§7).
				continue
			}
			events = append(events, found...)
		}

		conclusion := c.generator.Conclude(events, peak.AppName)
		out = append(out, Correlated{Peak: peak, Conclusion: conclusion})
	}
	return out
}
