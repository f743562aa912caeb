package postgres

import "github.com/poiesic/engram/core"

// The three metrics have different threshold directions and
// similarity-from-distance conversions. The per-metric formulas below are
// deliberately kept separate; the sign conventions do not unify.
//
//	cosine:    similarity = 1 - distance,      keep distance <= 1 - threshold
//	euclidean: similarity = 1 / (1 + distance), keep distance <= threshold
//	dot:       similarity = -distance,          keep distance <= -threshold
//	           (the store returns the negated inner product as distance)

// metricOperator returns the pgvector distance operator for the metric.
func metricOperator(m core.Metric) string {
	switch m {
	case core.MetricCosine:
		return "<=>"
	case core.MetricEuclidean:
		return "<->"
	case core.MetricDot:
		return "<#>"
	default:
		return ""
	}
}

// metricDistanceCeiling converts a similarity threshold into the maximum
// distance a row may have under the metric.
func metricDistanceCeiling(m core.Metric, threshold float32) float64 {
	switch m {
	case core.MetricCosine:
		return float64(1 - threshold)
	case core.MetricEuclidean:
		return float64(threshold)
	case core.MetricDot:
		return float64(-threshold)
	default:
		return 0
	}
}

// metricSimilarity converts a distance reported by the index scan back into
// a similarity score.
func metricSimilarity(m core.Metric, distance float64) float32 {
	switch m {
	case core.MetricCosine:
		return float32(1 - distance)
	case core.MetricEuclidean:
		return float32(1 / (1 + distance))
	case core.MetricDot:
		return float32(-distance)
	default:
		return 0
	}
}
