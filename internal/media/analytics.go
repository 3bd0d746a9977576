package media

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/dusk-indust/reelpipe/internal/orchestrator"
)

var _ orchestrator.Analyzer = (*Heuristics)(nil)

// Heuristics computes proxy engagement metrics from narrative length.
type Heuristics struct {
	Logger *slog.Logger
}

// Analyze scores script and caption. Results are rounded to three decimals.
func (h *Heuristics) Analyze(_ context.Context, script, caption string) (orchestrator.AnalyticsResult, error) {
	scriptWords := len(strings.Fields(script))
	captionWords := len(strings.Fields(caption))
	total := scriptWords + captionWords

	readingTime := 0.5
	if total > 0 {
		readingTime = float64(total) / 150
	}

	ctr := math.Min(0.25, 0.08+0.0005*math.Max(float64(captionWords-60), 0))
	retention := math.Max(0.6, math.Min(0.95, 0.7+0.02*math.Log10(math.Max(float64(scriptWords), 30))))
	complexity := math.Min(1, (float64(scriptWords)/math.Max(readingTime, 0.5))/250)

	res := orchestrator.AnalyticsResult{
		ExpectedCTR:         round3(ctr),
		RetentionScore:      round3(retention),
		NarrativeComplexity: round3(complexity),
	}
	if h.Logger != nil {
		h.Logger.Debug("analytics computed",
			"expected_ctr", res.ExpectedCTR,
			"retention_score", res.RetentionScore,
			"narrative_complexity", res.NarrativeComplexity)
	}
	return res, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
