package analysis

import (
	"strings"

	"github.com/saqw3r/InetMonitor/model"
)

// ConclusionGenerator evaluates a fixed, ordered rule list and returns the
// first match — rule order and confidence values are taken verbatim from
// the reference ConclusionGenerator.
type ConclusionGenerator struct{}

// NewConclusionGenerator creates a ConclusionGenerator. Stateless.
func NewConclusionGenerator() *ConclusionGenerator {
	return &ConclusionGenerator{}
}

// Conclude implements §4.9's rule list, first match wins.
func (ConclusionGenerator) Conclude(events []model.LogEvent, appName string) model.AnalysisConclusion {
	for _, ev := range events {
		if strings.Contains(ev.ProviderName, "WindowsUpdateClient") || strings.Contains(ev.ProviderName, "UpdateOrchestrator") {
			return model.AnalysisConclusion{
				Summary:    "Windows Update",
				Detail:     "matched system-log provider " + ev.ProviderName,
				Confidence: 0.9,
			}
		}
	}

	folded := strings.ToLower(appName)

	if strings.Contains(folded, "steam.exe") || strings.Contains(folded, "steamwebhelper.exe") {
		return model.AnalysisConclusion{
			Summary:    "Steam Game Download/Update",
			Detail:     "app name matched Steam client executables",
			Confidence: 0.85,
		}
	}

	for _, browser := range []string{"chrome.exe", "msedge.exe", "firefox.exe", "brave.exe"} {
		if strings.Contains(folded, browser) {
			return model.AnalysisConclusion{
				Summary:    "Web Browsing / Streaming",
				Detail:     "app name matched browser executable " + browser,
				Confidence: 0.7,
			}
		}
	}

	if strings.Contains(folded, "system") {
		return model.AnalysisConclusion{
			Summary:    "System Process Activity",
			Detail:     "app name contains \"system\"",
			Confidence: 0.5,
		}
	}

	return model.AnalysisConclusion{
		Summary:    "Unknown Traffic Cause",
		Detail:     "no rule matched",
		Confidence: 0.1,
	}
}
