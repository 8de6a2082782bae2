package analytics

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"strconv"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

// valueCounts counts non-null values of col, most frequent first. With
// normalize the counts become percentages of the non-null total.
func valueCounts(ds *models.Dataset, col string, normalize bool) models.Mapping {
	counts := make(map[string]int)
	total := 0
	for _, r := range ds.Rows() {
		k, ok := r.Key(col)
		if !ok {
			continue
		}
		counts[k]++
		total++
	}
	keys := sortedKeys(counts)
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})
	out := make(models.Mapping, 0, len(keys))
	for _, k := range keys {
		var v any = counts[k]
		if normalize {
			v = float64(counts[k]) / float64(total) * 100
		}
		out = append(out, models.Entry{Key: k, Value: v})
	}
	return out
}

// sums adds up valueCol per key of keyCol, skipping null keys and values.
func sums(ds *models.Dataset, keyCol, valueCol string) (map[string]float64, map[string]int, error) {
	total := make(map[string]float64)
	count := make(map[string]int)
	for _, r := range ds.Rows() {
		k, ok := r.Key(keyCol)
		if !ok {
			continue
		}
		v, ok, err := floatCell(r, valueCol)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := total[k]; !seen {
			total[k] = 0
		}
		if ok {
			total[k] += v
			count[k]++
		}
	}
	return total, count, nil
}

// groupSum is the purchase total per key, keys in ascending order.
func groupSum(ds *models.Dataset, keyCol string) (models.Mapping, error) {
	total, _, err := sums(ds, keyCol, models.ColPurchaseAmount)
	if err != nil {
		return nil, err
	}
	out := make(models.Mapping, 0, len(total))
	for _, k := range sortedKeys(total) {
		out = append(out, models.Entry{Key: k, Value: models.Round2(total[k])})
	}
	return out, nil
}

func numericColumn(ds *models.Dataset, col string) ([]float64, error) {
	var vals []float64
	for _, r := range ds.Rows() {
		v, ok, err := floatCell(r, col)
		if err != nil {
			return nil, err
		}
		if ok {
			vals = append(vals, v)
		}
	}
	return vals, nil
}

// histogram partitions values into equal-width bins spanning their range.
// The lowest edge is nudged down by 0.1% of the range so the minimum lands in
// the first (lower, upper] interval. Empty bins are kept.
func histogram(values []float64, bins int) (models.Mapping, error) {
	if len(values) == 0 {
		return nil, apperrors.InsufficientData("no numeric values to bin")
	}
	lo, hi := slices.Min(values), slices.Max(values)
	edges := make([]float64, bins+1)
	if lo == hi {
		adj := 0.001
		if lo != 0 {
			adj = 0.001 * math.Abs(lo)
		}
		lo, hi = lo-adj, hi+adj
		fillLinspace(edges, lo, hi)
	} else {
		fillLinspace(edges, lo, hi)
		edges[0] -= (hi - lo) * 0.001
	}

	counts := make([]int, bins)
	for _, v := range values {
		i := sort.SearchFloat64s(edges, v) - 1
		counts[min(max(i, 0), bins-1)]++
	}

	out := make(models.Mapping, bins)
	for i := range counts {
		out[i] = models.Entry{
			Key:   "(" + formatEdge(edges[i]) + ", " + formatEdge(edges[i+1]) + "]",
			Value: counts[i],
		}
	}
	return out, nil
}

func fillLinspace(edges []float64, lo, hi float64) {
	n := len(edges) - 1
	for i := range edges {
		edges[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	edges[n] = hi
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
