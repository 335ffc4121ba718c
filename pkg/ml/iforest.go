package ml

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultTrees      = 100
	defaultSampleSize = 256
	eulerGamma        = 0.5772156649015329
)

// IsolationForest scores points by how quickly random axis-aligned splits
// isolate them. Scores lie in (0,1]; higher means more anomalous.
type IsolationForest struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          uint64

	trees     []*itreeNode
	psi       int
	threshold float64
}

type itreeNode struct {
	feature     int
	split       float64
	size        int
	left, right *itreeNode
}

// Fit grows the forest on x and sets the anomaly threshold from the
// training scores.
func (f *IsolationForest) Fit(x mat.Matrix) error {
	n, c := x.Dims()
	if n == 0 || c == 0 {
		return ErrEmptyInput
	}
	if f.Trees <= 0 {
		f.Trees = defaultTrees
	}
	if f.SampleSize <= 0 {
		f.SampleSize = defaultSampleSize
	}

	f.psi = min(f.SampleSize, n)
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(f.psi), 2))))
	r := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	f.trees = make([]*itreeNode, f.Trees)
	for t := range f.trees {
		perm := r.Perm(n)[:f.psi]
		sample := make([][]float64, f.psi)
		for i, p := range perm {
			sample[i] = rows[p]
		}
		f.trees[t] = growTree(r, sample, 0, maxDepth)
	}

	scores := f.scoreRows(rows)
	f.threshold = quantile(scores, 1-f.Contamination)
	return nil
}

func growTree(r *rand.Rand, rows [][]float64, depth, maxDepth int) *itreeNode {
	if depth >= maxDepth || len(rows) <= 1 {
		return &itreeNode{size: len(rows)}
	}

	c := len(rows[0])
	// try features in random order until one is not constant
	for _, feat := range r.Perm(c) {
		lo, hi := rows[0][feat], rows[0][feat]
		for _, row := range rows[1:] {
			lo = math.Min(lo, row[feat])
			hi = math.Max(hi, row[feat])
		}
		if lo == hi {
			continue
		}
		split := lo + r.Float64()*(hi-lo)
		var left, right [][]float64
		for _, row := range rows {
			if row[feat] < split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		return &itreeNode{
			feature: feat,
			split:   split,
			size:    len(rows),
			left:    growTree(r, left, depth+1, maxDepth),
			right:   growTree(r, right, depth+1, maxDepth),
		}
	}
	return &itreeNode{size: len(rows)}
}

func (n *itreeNode) pathLength(row []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + averagePath(n.size)
	}
	if row[n.feature] < n.split {
		return n.left.pathLength(row, depth+1)
	}
	return n.right.pathLength(row, depth+1)
}

// averagePath is the mean path length of an unsuccessful BST search.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// Score returns the anomaly score of every row of x.
func (f *IsolationForest) Score(x mat.Matrix) ([]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return f.scoreRows(rows), nil
}

func (f *IsolationForest) scoreRows(rows [][]float64) []float64 {
	norm := averagePath(f.psi)
	if norm == 0 {
		norm = 1
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		var total float64
		for _, t := range f.trees {
			total += t.pathLength(row, 0)
		}
		mean := total / float64(len(f.trees))
		out[i] = math.Pow(2, -mean/norm)
	}
	return out
}

// Predict flags rows scoring above the training threshold.
func (f *IsolationForest) Predict(x mat.Matrix) ([]bool, []float64, error) {
	scores, err := f.Score(x)
	if err != nil {
		return nil, nil, err
	}
	flags := make([]bool, len(scores))
	for i, s := range scores {
		flags[i] = s > f.threshold
	}
	return flags, scores, nil
}

// Threshold is the score above which a row is anomalous.
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

// quantile uses linear interpolation between closest ranks.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}
