package pivot

// Normalize maps a cell value onto the 0..100 intensity scale used for
// heatmap shading. Throughput metrics scale against the dataset maximum,
// so the best cell reads 100. Latency metrics invert over the dataset
// range, so the fastest (minimum) cell reads 100 and the slowest 0.
// Degenerate datasets are defined, not errors: an all-zero dataset yields
// 0 everywhere, a single distinct value yields 100.
func Normalize(value float64, metric Metric, datasetMin, datasetMax float64) float64 {
	if datasetMax == 0 {
		return 0
	}
	var pct float64
	if metric.LowerIsBetter() {
		span := datasetMax - datasetMin
		if span == 0 {
			return 100
		}
		pct = (datasetMax - value) / span * 100
	} else {
		pct = value / datasetMax * 100
	}
	return clampPercent(pct)
}

func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
