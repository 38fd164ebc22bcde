package query

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/xtxerr/pidx/internal/spiral"
)

// Analysis thresholds, relative to the history averages.
const (
	slowFactor      = 1.5
	lowResultFactor = 0.5
	curveFactor     = 1.2
	minCurveSamples = 3
)

// RecommendationKind classifies an optimization hint.
type RecommendationKind string

const (
	RecommendSlowQueries   RecommendationKind = "performance_warning"
	RecommendLowResults    RecommendationKind = "efficiency_warning"
	RecommendOptimizeCurve RecommendationKind = "traversal_optimization"
)

// Recommendation is one optimization hint.
type Recommendation struct {
	Kind      RecommendationKind
	Message   string
	Threshold float64
	QueryIDs  []string     // offending queries, for slow and low-result hints
	Curve     spiral.Curve // for curve hints
}

// CurveAnalysis aggregates executions of one curve.
type CurveAnalysis struct {
	Count            int
	AvgExecutionTime time.Duration
	AvgMatched       float64
}

// Analysis is an optimization report over the execution history.
type Analysis struct {
	Queries          int
	AvgExecutionTime time.Duration
	AvgMatched       float64
	// ExecutionVariance is the sample variance of execution times in
	// milliseconds squared. Zero with fewer than two queries.
	ExecutionVariance float64

	Curves          map[spiral.Curve]CurveAnalysis
	Recommendations []Recommendation
}

// Analyze reports slow queries, low-result queries and slow curves in the
// execution history. Cache hits are excluded.
func (e *Engine) Analyze() Analysis {
	return analyze(e.history.snapshot())
}

func analyze(records []Record) Analysis {
	var executed []Record
	for _, r := range records {
		if !r.CacheHit {
			executed = append(executed, r)
		}
	}

	out := Analysis{
		Queries: len(executed),
		Curves:  make(map[spiral.Curve]CurveAnalysis),
	}
	if len(executed) == 0 {
		return out
	}

	times := make([]float64, len(executed))
	matched := make([]float64, len(executed))
	byCurve := make(map[spiral.Curve][]int)
	for i, r := range executed {
		times[i] = float64(r.ExecutionTime) / float64(time.Millisecond)
		matched[i] = float64(r.Matched)
		byCurve[r.Curve] = append(byCurve[r.Curve], i)
	}

	avgTime := stat.Mean(times, nil)
	out.AvgExecutionTime = millis(avgTime)
	out.AvgMatched = stat.Mean(matched, nil)
	if len(times) > 1 {
		out.ExecutionVariance = stat.Variance(times, nil)
	}

	if ids := selectIDs(executed, times, func(v float64) bool { return v > avgTime*slowFactor }); len(ids) > 0 {
		out.Recommendations = append(out.Recommendations, Recommendation{
			Kind:      RecommendSlowQueries,
			Message:   fmt.Sprintf("%d queries exceeded performance threshold", len(ids)),
			Threshold: avgTime * slowFactor,
			QueryIDs:  ids,
		})
	}
	lowThreshold := out.AvgMatched * lowResultFactor
	if ids := selectIDs(executed, matched, func(v float64) bool { return v < lowThreshold }); len(ids) > 0 {
		out.Recommendations = append(out.Recommendations, Recommendation{
			Kind:      RecommendLowResults,
			Message:   fmt.Sprintf("%d queries returned few results", len(ids)),
			Threshold: lowThreshold,
			QueryIDs:  ids,
		})
	}

	curves := make([]spiral.Curve, 0, len(byCurve))
	for c := range byCurve {
		curves = append(curves, c)
	}
	sort.Slice(curves, func(i, j int) bool { return curves[i] < curves[j] })

	for _, c := range curves {
		idx := byCurve[c]
		ct := make([]float64, len(idx))
		cm := make([]float64, len(idx))
		for i, k := range idx {
			ct[i] = times[k]
			cm[i] = matched[k]
		}
		curveAvg := stat.Mean(ct, nil)
		out.Curves[c] = CurveAnalysis{
			Count:            len(idx),
			AvgExecutionTime: millis(curveAvg),
			AvgMatched:       stat.Mean(cm, nil),
		}
		if len(idx) >= minCurveSamples && curveAvg > avgTime*curveFactor {
			out.Recommendations = append(out.Recommendations, Recommendation{
				Kind:      RecommendOptimizeCurve,
				Message:   fmt.Sprintf("consider optimizing %s traversal", c),
				Threshold: avgTime * curveFactor,
				Curve:     c,
			})
		}
	}
	return out
}

func selectIDs(records []Record, values []float64, pred func(float64) bool) []string {
	var ids []string
	for i, v := range values {
		if pred(v) {
			ids = append(ids, records[i].QueryID)
		}
	}
	return ids
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
