package core

import "math"

// Metric identifies a vector distance metric supported by the store.
type Metric int

const (
	// MetricCosine compares vectors by cosine distance.
	MetricCosine Metric = iota + 1
	// MetricEuclidean compares vectors by L2 distance.
	MetricEuclidean
	// MetricDot compares vectors by negated inner product.
	MetricDot
)

// String returns the canonical metric name.
func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDot:
		return "dot"
	default:
		return "unknown"
	}
}

// ParseMetric converts a metric name to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot", "inner-product":
		return MetricDot, nil
	default:
		return 0, ErrInvalidMetric
	}
}

// Validate reports whether the metric is one of the supported values.
func (m Metric) Validate() error {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDot:
		return nil
	default:
		return ErrInvalidMetric
	}
}

// DotProduct computes the inner product of two vectors.
// Vectors of differing dimensionality are rejected, never coerced.
func DotProduct(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// The result lies in [-1, 1]; zero vectors yield 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum)), nil
}
