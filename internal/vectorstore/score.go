package vectorstore

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// DistanceSpace names the metric a collection ranks by.
type DistanceSpace string

const (
	// SpaceCosine uses cosine distance (1 - cosine similarity).
	SpaceCosine DistanceSpace = "cosine"
	// SpaceL2 uses Euclidean distance.
	SpaceL2 DistanceSpace = "l2"
	// SpaceIP uses inner-product distance (1 - dot product).
	SpaceIP DistanceSpace = "ip"
)

// ParseDistanceSpace maps a config value to a DistanceSpace.
// Empty input returns fallback.
func ParseDistanceSpace(s string, fallback DistanceSpace) (DistanceSpace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "cosine", "cos":
		return SpaceCosine, nil
	case "l2", "euclid", "euclidean":
		return SpaceL2, nil
	case "ip", "dot", "inner_product":
		return SpaceIP, nil
	default:
		return "", fmt.Errorf("%w: unsupported distance %q (supported: cosine, l2, ip)", ErrInvalidConfig, s)
	}
}

// ScoreFromDistance converts a raw engine distance to a relevance score where
// higher is better.
//
//	cosine, ip: 1 - d
//	l2:         1 / (1 + d)
//
// Unknown spaces return the distance unchanged and log a warning, so callers
// still get a value to rank by.
func ScoreFromDistance(space DistanceSpace, distance float64, logger *zap.Logger) float32 {
	if math.IsNaN(distance) {
		return float32(math.NaN())
	}
	switch space {
	case SpaceCosine, SpaceIP:
		return float32(1 - distance)
	case SpaceL2:
		return float32(1 / (1 + distance))
	default:
		if logger != nil {
			logger.Warn("unknown distance space, returning raw distance as score",
				zap.String("space", string(space)),
				zap.Float64("distance", distance),
			)
		}
		return float32(distance)
	}
}

// distanceBetween computes the native distance of space between two vectors.
func distanceBetween(space DistanceSpace, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}
	switch space {
	case SpaceL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), nil
	case SpaceIP:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return 1 - dot, nil
	default:
		var dot, na2, nb2 float64
		for i := range a {
			va, vb := float64(a[i]), float64(b[i])
			dot += va * vb
			na2 += va * va
			nb2 += vb * vb
		}
		if na2 == 0 || nb2 == 0 {
			return 0, fmt.Errorf("zero-magnitude vector")
		}
		return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2)), nil
	}
}
