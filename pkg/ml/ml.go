package ml

import (
	"fmt"
	"log/slog"
)

const minAnomalyFeatures = 3

// AnomalyResult holds per-row anomaly flags and scores.
type AnomalyResult struct {
	Anomalous []bool
	Scores    []float64
	Threshold float64
}

// DetectAnomalies standardizes rows and runs an isolation forest. Fewer than
// three features or two rows yield an all-clear result instead of an error.
func DetectAnomalies(rows [][]float64, contamination float64, trees int, seed uint64) (*AnomalyResult, error) {
	res := &AnomalyResult{
		Anomalous: make([]bool, len(rows)),
		Scores:    make([]float64, len(rows)),
	}
	if len(rows) < 2 || len(rows[0]) < minAnomalyFeatures {
		slog.Debug("skipping anomaly detection", "rows", len(rows))
		return res, nil
	}

	x, err := NewMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature matrix: %w", err)
	}
	var sc StandardScaler
	scaled, err := sc.FitTransform(x)
	if err != nil {
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}

	f := &IsolationForest{Trees: trees, Contamination: contamination, Seed: seed}
	if err := f.Fit(scaled); err != nil {
		return nil, fmt.Errorf("failed to fit isolation forest: %w", err)
	}
	flags, scores, err := f.Predict(scaled)
	if err != nil {
		return nil, err
	}

	res.Anomalous, res.Scores, res.Threshold = flags, scores, f.Threshold()
	return res, nil
}

// Cluster standardizes rows and assigns each one a k-means cluster id.
func Cluster(rows [][]float64, k int, seed uint64) ([]int, error) {
	if len(rows) == 0 {
		return []int{}, nil
	}

	x, err := NewMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature matrix: %w", err)
	}
	var sc StandardScaler
	scaled, err := sc.FitTransform(x)
	if err != nil {
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}

	km := &KMeans{K: k, Seed: seed}
	if err := km.Fit(scaled); err != nil {
		return nil, fmt.Errorf("failed to fit k-means: %w", err)
	}
	return km.Labels, nil
}
