package ml

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultK       = 8
	defaultNInit   = 10
	defaultMaxIter = 300
	defaultTol     = 1e-4
)

// KMeans clusters rows with Lloyd's algorithm seeded by k-means++. The run
// with the lowest inertia out of NInit wins.
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Seed    uint64

	Centroids [][]float64
	Labels    []int
	Inertia   float64
}

// Fit clusters x. K is lowered to the row count when fewer rows exist.
func (km *KMeans) Fit(x mat.Matrix) error {
	n, c := x.Dims()
	if n == 0 || c == 0 {
		return ErrEmptyInput
	}
	if km.K <= 0 {
		km.K = defaultK
	}
	if km.NInit <= 0 {
		km.NInit = defaultNInit
	}
	if km.MaxIter <= 0 {
		km.MaxIter = defaultMaxIter
	}
	k := min(km.K, n)

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	r := rand.New(rand.NewPCG(km.Seed, km.Seed+1))
	km.Inertia = math.Inf(1)
	for range km.NInit {
		centroids := seedPlusPlus(r, rows, k)
		labels, inertia := lloyd(rows, centroids, km.MaxIter)
		if inertia < km.Inertia {
			km.Centroids, km.Labels, km.Inertia = centroids, labels, inertia
		}
	}
	return nil
}

// Predict returns the closest centroid for row.
func (km *KMeans) Predict(row []float64) (int, error) {
	if km.Centroids == nil {
		return 0, ErrNotFitted
	}
	best, _ := nearest(row, km.Centroids)
	return best, nil
}

func seedPlusPlus(r *rand.Rand, rows [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(rows[r.IntN(len(rows))]))

	d2 := make([]float64, len(rows))
	for len(centroids) < k {
		for i, row := range rows {
			_, d := nearest(row, centroids)
			d2[i] = d * d
		}
		total := floats.Sum(d2)
		if total == 0 {
			// all remaining rows coincide with a centroid
			centroids = append(centroids, clone(rows[r.IntN(len(rows))]))
			continue
		}
		target := r.Float64() * total
		pick := len(rows) - 1
		for i, v := range d2 {
			target -= v
			if target <= 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, clone(rows[pick]))
	}
	return centroids
}

func lloyd(rows, centroids [][]float64, maxIter int) ([]int, float64) {
	labels := make([]int, len(rows))
	c := len(rows[0])
	for iter := 0; iter < maxIter; iter++ {
		for i, row := range rows {
			labels[i], _ = nearest(row, centroids)
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for j := range sums {
			sums[j] = make([]float64, c)
		}
		for i, row := range rows {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}

		var shift float64
		for j := range centroids {
			if counts[j] == 0 {
				continue // empty cluster keeps its centroid
			}
			floats.Scale(1/float64(counts[j]), sums[j])
			shift += floats.Distance(sums[j], centroids[j], 2)
			centroids[j] = sums[j]
		}
		if shift < defaultTol {
			break
		}
	}

	var inertia float64
	for i, row := range rows {
		var d float64
		labels[i], d = nearest(row, centroids)
		inertia += d * d
	}
	return labels, inertia
}

func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for j, c := range centroids {
		if d := floats.Distance(row, c, 2); d < bestD {
			best, bestD = j, d
		}
	}
	return best, bestD
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
