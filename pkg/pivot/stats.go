package pivot

import (
	"math"

	"github.com/fio-analyzer/server/pkg/models"
)

// Stats summarizes the metric values contributed to one cell. When Count
// is zero the remaining fields are meaningless; callers must check Count
// before reading them. Min and Max are never infinities.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Aggregate folds the metric values of runs into count/min/max/mean.
// Runs without the metric, and non-finite values, are skipped entirely;
// they never count as zero.
func Aggregate(runs []models.TestRun, metric Metric) Stats {
	var s Stats
	var sum float64
	for _, run := range runs {
		v := metric.Value(run)
		if v == nil {
			continue
		}
		x := *v
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		if s.Count == 0 || x < s.Min {
			s.Min = x
		}
		if s.Count == 0 || x > s.Max {
			s.Max = x
		}
		sum += x
		s.Count++
	}
	if s.Count > 0 {
		s.Mean = sum / float64(s.Count)
	}
	return s
}

// pickBest returns the run with the best metric value, honoring the
// metric's direction. Ties keep the first run encountered. Nil when no
// run carries the metric.
func pickBest(runs []models.TestRun, metric Metric) (*models.TestRun, float64) {
	var best *models.TestRun
	var bestVal float64
	for i := range runs {
		v := metric.Value(runs[i])
		if v == nil {
			continue
		}
		x := *v
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		if best == nil {
			best, bestVal = &runs[i], x
			continue
		}
		if metric.LowerIsBetter() {
			if x < bestVal {
				best, bestVal = &runs[i], x
			}
		} else if x > bestVal {
			best, bestVal = &runs[i], x
		}
	}
	return best, bestVal
}
