package analytics

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	kmeansInits   = 10
	kmeansMaxIter = 300
	kmeansTol     = 1e-4
)

// standardize scales every column of points to zero mean and unit population
// variance in place. Constant columns are only centred.
func standardize(points [][]float64) {
	if len(points) == 0 {
		return
	}
	dims := len(points[0])
	col := make([]float64, len(points))
	for j := 0; j < dims; j++ {
		for i, p := range points {
			col[i] = p[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for _, p := range points {
			p[j] = (p[j] - mean) / std
		}
	}
}

type kmeansResult struct {
	labels    []int
	centroids [][]float64
	inertia   float64
}

// fitKMeans runs Lloyd's algorithm from kmeansInits k-means++ starts and keeps
// the lowest-inertia result. The same seed always yields the same labels.
func fitKMeans(points [][]float64, k int, seed uint64) kmeansResult {
	rng := rand.New(rand.NewPCG(seed, seed))
	tol := kmeansTol * meanVariance(points)

	var best kmeansResult
	for run := 0; run < kmeansInits; run++ {
		res := lloyd(points, seedCentroids(points, k, rng), tol)
		if run == 0 || res.inertia < best.inertia {
			best = res
		}
	}
	return best
}

func meanVariance(points [][]float64) float64 {
	dims := len(points[0])
	col := make([]float64, len(points))
	total := 0.0
	for j := 0; j < dims; j++ {
		for i, p := range points {
			col[i] = p[j]
		}
		total += stat.PopVariance(col, nil)
	}
	return total / float64(dims)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// seedCentroids picks k starting centres with k-means++: each new centre is
// drawn with probability proportional to its squared distance from the
// nearest centre already chosen.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.IntN(len(points))]))

	closest := make([]float64, len(points))
	for i, p := range points {
		closest[i] = sqDist(p, centroids[0])
	}
	for len(centroids) < k {
		sum := floats.Sum(closest)
		next := rng.IntN(len(points))
		if sum > 0 {
			target := rng.Float64() * sum
			acc := 0.0
			for i, d := range closest {
				acc += d
				if acc >= target {
					next = i
					break
				}
			}
		}
		c := clonePoint(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			closest[i] = math.Min(closest[i], sqDist(p, c))
		}
	}
	return centroids
}

func lloyd(points, centroids [][]float64, tol float64) kmeansResult {
	k, dims := len(centroids), len(points[0])
	labels := make([]int, len(points))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		assign(points, centroids, labels)

		next := make([][]float64, k)
		sizes := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			sizes[labels[i]]++
		}
		shift := 0.0
		for c := range next {
			if sizes[c] == 0 {
				// Empty cluster keeps its previous centre.
				next[c] = centroids[c]
				continue
			}
			floats.Scale(1/float64(sizes[c]), next[c])
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next
		if shift <= tol {
			break
		}
	}
	inertia := assign(points, centroids, labels)
	return kmeansResult{labels: labels, centroids: centroids, inertia: inertia}
}

// assign labels each point with its nearest centroid, lowest index on ties,
// and returns the summed squared distances.
func assign(points, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for c, centre := range centroids {
			if d := sqDist(p, centre); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
		inertia += bestD
	}
	return inertia
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
