package ml

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func blobs(seed uint64, centers [][]float64, perCenter int, spread float64) [][]float64 {
	r := rand.New(rand.NewPCG(seed, seed))
	var rows [][]float64
	for _, c := range centers {
		for i := 0; i < perCenter; i++ {
			row := make([]float64, len(c))
			for j, v := range c {
				row[j] = v + r.NormFloat64()*spread
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func TestStandardScaler(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	var s StandardScaler
	out, err := s.FitTransform(x)
	require.NoError(t, err)

	col := mat.Col(nil, 0, out)
	m, sd := stat.PopMeanStdDev(col, nil)
	assert.InDelta(t, 0, m, 1e-12)
	assert.InDelta(t, 1, sd, 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 1, out), "constant column is centered only")

	_, err = (&StandardScaler{}).Transform(x)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func TestNewMatrix(t *testing.T) {
	m, err := NewMatrix([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, m.At(1, 0), 1e-12)

	_, err = NewMatrix(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = NewMatrix([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestQuantile(t *testing.T) {
	v := []float64{4, 1, 3, 2}
	assert.InDelta(t, 1.0, quantile(v, 0), 1e-12)
	assert.InDelta(t, 4.0, quantile(v, 1), 1e-12)
	assert.InDelta(t, 2.5, quantile(v, 0.5), 1e-12)
	assert.InDelta(t, 3.7, quantile(v, 0.9), 1e-12)
	assert.InDelta(t, 0.0, quantile(nil, 0.5), 1e-12)
}

func TestAveragePath(t *testing.T) {
	assert.InDelta(t, 0.0, averagePath(1), 1e-12)
	assert.InDelta(t, 1.0, averagePath(2), 1e-12)
	assert.InDelta(t, 10.2448, averagePath(256), 1e-3)
}

func TestIsolationForest_FindsOutliers(t *testing.T) {
	rows := blobs(1, [][]float64{{0, 0, 0}}, 200, 1)
	rows = append(rows, []float64{12, 12, 12}, []float64{-11, 10, -12})

	x, err := NewMatrix(rows)
	require.NoError(t, err)

	f := &IsolationForest{Trees: 100, Contamination: 0.05, Seed: 42}
	require.NoError(t, f.Fit(x))
	flags, scores, err := f.Predict(x)
	require.NoError(t, err)
	require.Len(t, flags, len(rows))

	assert.True(t, flags[200])
	assert.True(t, flags[201])
	assert.Greater(t, scores[200], scores[0])

	var count int
	for _, v := range flags {
		if v {
			count++
		}
	}
	assert.InDelta(t, 0.05*float64(len(rows)), float64(count), 3)

	for _, s := range scores {
		assert.Greater(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestIsolationForest_Deterministic(t *testing.T) {
	x, err := NewMatrix(blobs(3, [][]float64{{0, 0, 0}, {5, 5, 5}}, 50, 1))
	require.NoError(t, err)

	a := &IsolationForest{Trees: 50, Contamination: 0.1, Seed: 42}
	b := &IsolationForest{Trees: 50, Contamination: 0.1, Seed: 42}
	require.NoError(t, a.Fit(x))
	require.NoError(t, b.Fit(x))

	sa, _ := a.Score(x)
	sb, _ := b.Score(x)
	assert.Equal(t, sa, sb)

	_, err = (&IsolationForest{}).Score(x)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	rows := blobs(7, [][]float64{{0, 0}, {20, 20}, {-20, 20}}, 30, 0.5)
	x, err := NewMatrix(rows)
	require.NoError(t, err)

	km := &KMeans{K: 3, Seed: 42}
	require.NoError(t, km.Fit(x))
	require.Len(t, km.Labels, 90)

	for b := 0; b < 3; b++ {
		first := km.Labels[b*30]
		for i := b * 30; i < (b+1)*30; i++ {
			assert.Equal(t, first, km.Labels[i])
		}
	}
	assert.NotEqual(t, km.Labels[0], km.Labels[30])
	assert.NotEqual(t, km.Labels[30], km.Labels[60])
	assert.NotEqual(t, km.Labels[0], km.Labels[60])

	id, err := km.Predict([]float64{19, 21})
	require.NoError(t, err)
	assert.Equal(t, km.Labels[30], id)
}

func TestKMeans_FewerRowsThanK(t *testing.T) {
	x, err := NewMatrix([][]float64{{0, 0}, {1, 1}, {1, 1}})
	require.NoError(t, err)
	km := &KMeans{K: 8, Seed: 42}
	require.NoError(t, km.Fit(x))
	assert.Len(t, km.Centroids, 3)
	assert.Equal(t, km.Labels[1], km.Labels[2])
	assert.InDelta(t, 0.0, km.Inertia, 1e-12)

	_, err = (&KMeans{}).Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestDetectAnomalies(t *testing.T) {
	res, err := DetectAnomalies([][]float64{{1, 2}, {3, 4}}, 0.1, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, res.Anomalous, "too few features")

	res, err = DetectAnomalies([][]float64{{1, 2, 3}}, 0.1, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, res.Anomalous, "too few rows")

	rows := blobs(5, [][]float64{{10, 10, 10, 10, 10}}, 100, 1)
	rows = append(rows, []float64{90, 95, 80, 99, 85})
	res, err = DetectAnomalies(rows, 0.1, 100, 42)
	require.NoError(t, err)
	assert.True(t, res.Anomalous[100])
	assert.Greater(t, res.Threshold, 0.0)
}

func TestCluster(t *testing.T) {
	labels, err := Cluster(nil, 8, 42)
	require.NoError(t, err)
	assert.Empty(t, labels)

	rows := blobs(9, [][]float64{{0, 0, 0, 0, 0, 0}, {50, 50, 50, 50, 50, 50}}, 20, 1)
	labels, err = Cluster(rows, 2, 42)
	require.NoError(t, err)
	assert.NotEqual(t, labels[0], labels[20])

	again, err := Cluster(rows, 2, 42)
	require.NoError(t, err)
	assert.Equal(t, labels, again)
}
