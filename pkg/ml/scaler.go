package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyInput = errors.New("empty input")
	ErrNotFitted  = errors.New("model not fitted")
)

// StandardScaler centers each column and scales it to unit population
// variance. Constant columns are only centered.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit learns per-column mean and deviation.
func (s *StandardScaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return ErrEmptyInput
	}
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		m, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		s.Mean[j], s.Std[j] = m, sd
	}
	return nil
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	r, c := x.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, x)
	return out, nil
}

// FitTransform is Fit followed by Transform.
func (s *StandardScaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

// NewMatrix copies row-major feature vectors into a dense matrix.
func NewMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyInput
	}
	c := len(rows[0])
	buf := make([]float64, 0, len(rows)*c)
	for i, r := range rows {
		if len(r) != c {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), c)
		}
		buf = append(buf, r...)
	}
	return mat.NewDense(len(rows), c, buf), nil
}
