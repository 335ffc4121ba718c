package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	smoothingAlpha = 0.3
	minSeries      = 3
	bandGrowth     = 0.1
)

// Series is a point forecast with its widening confidence band.
type Series struct {
	Forecast []float64 `json:"forecast" yaml:"forecast"`
	Upper    []float64 `json:"upper" yaml:"upper"`
	Lower    []float64 `json:"lower" yaml:"lower"`
}

// Smooth fits simple exponential smoothing to values and projects it flat
// for periods steps. The band is one population std, growing 10% per step;
// the lower bound never drops below zero. Fewer than three values give an
// empty series.
func Smooth(values []float64, periods int) Series {
	out := Series{Forecast: []float64{}, Upper: []float64{}, Lower: []float64{}}
	if len(values) < minSeries || periods <= 0 {
		return out
	}

	level := values[0]
	for _, v := range values[1:] {
		level = smoothingAlpha*v + (1-smoothingAlpha)*level
	}
	level = math.Max(0, level)
	_, std := stat.PopMeanStdDev(values, nil)

	for i := range periods {
		w := std * (1 + float64(i)*bandGrowth)
		out.Forecast = append(out.Forecast, level)
		out.Upper = append(out.Upper, level+w)
		out.Lower = append(out.Lower, math.Max(0, level-w))
	}
	return out
}
