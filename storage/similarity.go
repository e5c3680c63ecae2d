package storage

import (
	"slices"

	"github.com/poiesic/lectern/core"
)

// Score computes the similarity of two vectors under metric.
// Higher is always more similar.
func Score(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricDot:
		return core.DotProduct(a, b)
	case MetricEuclid:
		return 1 / (1 + core.EuclideanDistance(a, b))
	default:
		return core.CosineSimilarity(a, b)
	}
}

// RankResults sorts results by descending score and keeps at most limit.
// Ties are broken by id so the order is stable across runs.
func RankResults(results []*core.RetrievalResult, limit int) []*core.RetrievalResult {
	slices.SortFunc(results, func(a, b *core.RetrievalResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
