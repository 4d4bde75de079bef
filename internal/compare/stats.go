package compare

import (
	"math"
	"sort"
)

// Weights are the composite-score weights. They are applied to normalized
// signals: quality counts positively, cost and latency negatively.
type Weights struct {
	Quality float64
	Cost    float64
	Latency float64
}

// Report aggregates a comparison run. Statistics cover only the variants
// that succeeded; failed variants appear in Results with an error and a
// zero composite. Average, Median, and StdDev summarize the composite;
// Metrics carries the same aggregates per underlying signal so the report
// shows which metrics drove the win.
type Report struct {
	Results []VariantResult        `json:"results"`
	Best    string                 `json:"best,omitempty"`
	Worst   string                 `json:"worst,omitempty"`
	Average float64                `json:"average"`
	Median  float64                `json:"median"`
	StdDev  float64                `json:"std_dev"`
	Metrics map[string]MetricStats `json:"metrics,omitempty"`
}

// MetricStats aggregates one numeric signal over the successful variants.
// Values follow the order of the succeeding entries in Results. Best and
// Worst respect the signal's polarity: the highest quality is best, the
// lowest cost and latency are.
type MetricStats struct {
	Values  []float64 `json:"values"`
	Best    float64   `json:"best"`
	Worst   float64   `json:"worst"`
	Average float64   `json:"average"`
	Median  float64   `json:"median"`
	StdDev  float64   `json:"std_dev"`
}

func newMetricStats(values []float64, higherIsBetter bool) MetricStats {
	min, max := math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(values))

	stats := MetricStats{
		Values:  values,
		Best:    max,
		Worst:   min,
		Average: mean,
		Median:  median(values),
		StdDev:  stdDev(values, mean),
	}
	if !higherIsBetter {
		stats.Best, stats.Worst = min, max
	}
	return stats
}

// buildReport computes composites and aggregate statistics. Composite
// ranking ties break toward the lower-latency variant.
func buildReport(results []VariantResult, w Weights) *Report {
	succeeded := make([]int, 0, len(results))
	for i, r := range results {
		if r.Succeeded {
			succeeded = append(succeeded, i)
		}
	}

	report := &Report{Results: results}
	if len(succeeded) == 0 {
		return report
	}

	// Normalize each signal over the successful variants so weights are
	// comparable across signals with different units.
	qMin, qMax := bounds(succeeded, results, func(r VariantResult) float64 { return r.Quality })
	cMin, cMax := bounds(succeeded, results, func(r VariantResult) float64 { return r.Cost })
	lMin, lMax := bounds(succeeded, results, func(r VariantResult) float64 { return r.Latency.Seconds() })

	for _, i := range succeeded {
		r := &results[i]
		composite := w.Quality*normalize(r.Quality, qMin, qMax) +
			w.Cost*(1-normalize(r.Cost, cMin, cMax)) +
			w.Latency*(1-normalize(r.Latency.Seconds(), lMin, lMax))
		r.Composite = composite
	}

	best, worst := succeeded[0], succeeded[0]
	var sum float64
	composites := make([]float64, 0, len(succeeded))
	for _, i := range succeeded {
		c := results[i].Composite
		sum += c
		composites = append(composites, c)
		if better(results[i], results[best]) {
			best = i
		}
		if better(results[worst], results[i]) {
			worst = i
		}
	}

	report.Best = results[best].Name
	report.Worst = results[worst].Name
	report.Average = sum / float64(len(succeeded))
	report.Median = median(composites)
	report.StdDev = stdDev(composites, report.Average)

	collect := func(get func(VariantResult) float64) []float64 {
		values := make([]float64, 0, len(succeeded))
		for _, i := range succeeded {
			values = append(values, get(results[i]))
		}
		return values
	}
	report.Metrics = map[string]MetricStats{
		"quality":         newMetricStats(collect(func(r VariantResult) float64 { return r.Quality }), true),
		"cost":            newMetricStats(collect(func(r VariantResult) float64 { return r.Cost }), false),
		"latency_seconds": newMetricStats(collect(func(r VariantResult) float64 { return r.Latency.Seconds() }), false),
		"composite":       newMetricStats(composites, true),
	}
	return report
}

// better reports whether a outranks b: higher composite first, lower
// latency on ties.
func better(a, b VariantResult) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	return a.Latency < b.Latency
}

func bounds(indices []int, results []VariantResult, get func(VariantResult) float64) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, i := range indices {
		v := get(results[i])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// normalize maps v into [0, 1] over [min, max]. A degenerate range maps to
// zero so the signal drops out of the composite instead of dividing by
// zero.
func normalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (v - min) / (max - min)
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
