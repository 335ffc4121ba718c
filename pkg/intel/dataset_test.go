package intel

import (
	"context"
	"testing"
	"time"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(day int, state, district string, pin int, lat, lon, scale float64) *data.Record {
	return &data.Record{
		Date:       time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC),
		State:      state,
		District:   district,
		Pincode:    pin,
		Latitude:   lat,
		Longitude:  lon,
		Age0to5:    2 * scale,
		Age5to17:   3 * scale,
		Age18Plus:  5 * scale,
		Demo5to17:  1 * scale,
		Demo17Plus: 4 * scale,
		Bio5to17:   2 * scale,
		Bio17Plus:  3 * scale,
	}
}

func sample() *data.Dataset {
	var rows []*data.Record
	for day := range 10 {
		rows = append(rows,
			record(day, "Delhi", "New Delhi", 110001, 28.61, 77.20, 10),
			record(day, "Delhi", "New Delhi", 110002, 28.63, 77.22, 12),
			record(day, "Delhi", "South Delhi", 110017, 28.52, 77.21, 8),
			record(day, "Maharashtra", "Mumbai", 400001, 18.93, 72.83, 20),
		)
	}
	rows = append(rows, record(12, "Maharashtra", "Mumbai", 400001, 18.93, 72.83, 200))
	return &data.Dataset{
		Rows:        data.Aggregate(rows),
		Fingerprint: "00ff",
		LoadedAt:    fixedNow,
	}
}

func TestBuild(t *testing.T) {
	cfg := config.Default()
	d, err := Build(context.Background(), sample(), cfg)
	require.NoError(t, err)

	assert.Equal(t, Stats{Records: 41, Pincodes: 4, Districts: 3, States: 2}, d.Stats())
	assert.Equal(t, "00ff", d.Fingerprint())
	assert.Equal(t, fixedNow, d.LoadedAt())

	pins := d.Summaries()
	require.Len(t, pins, 4)
	for i, p := range pins {
		if i > 0 {
			assert.Less(t, pins[i-1].Pincode, p.Pincode)
		}
		assert.GreaterOrEqual(t, p.Governance, 0.0)
		assert.LessOrEqual(t, p.Governance, 100.0)
		assert.Equal(t, cfg.RiskLevel(p.Governance), p.RiskLevel)
		assert.GreaterOrEqual(t, p.ClusterID, 0)
	}

	mumbai := d.byPincode[400001]
	assert.Equal(t, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), mumbai.Date, "latest record wins")
	assert.True(t, mumbai.MassMigration)

	detail, err := d.Pincode(400001)
	require.NoError(t, err)
	assert.Len(t, detail.TimeSeries, 11)

	nd, err := d.FindDistrict("new delhi")
	require.NoError(t, err)
	assert.Equal(t, 2, nd.Pincodes)
	assert.InDelta(t, 10*(2*10+2*12), nd.Age0to5, 1e-9)
	assert.InDelta(t, (28.61+28.63)/2, nd.Latitude, 1e-9)
	assert.GreaterOrEqual(t, nd.GovernanceMax, nd.GovernanceMean)

	states := d.States()
	require.Len(t, states, 2)
	assert.Equal(t, "Delhi", states[0].State)
	assert.Equal(t, 3, states[0].Pincodes)
	assert.Equal(t, 2, states[0].Districts)
	assert.Equal(t, 1, states[1].Districts)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(context.Background(), sample(), config.Default())
	require.NoError(t, err)
	b, err := Build(context.Background(), sample(), config.Default())
	require.NoError(t, err)

	for i := range a.pincodes {
		assert.Equal(t, a.pincodes[i].ClusterID, b.pincodes[i].ClusterID)
		assert.Equal(t, a.pincodes[i].Anomaly, b.pincodes[i].Anomaly)
		assert.InDelta(t, a.pincodes[i].SpatialZ, b.pincodes[i].SpatialZ, 1e-12)
	}
}

func TestBuild_ModelsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.ML.AnomalyEnabled = false
	cfg.ML.ClusteringEnabled = false

	d, err := Build(context.Background(), sample(), cfg)
	require.NoError(t, err)
	for _, p := range d.Summaries() {
		assert.False(t, p.Anomaly)
		assert.Zero(t, p.AnomalyScore)
		assert.Zero(t, p.ClusterID)
	}
	assert.Empty(t, d.Clusters())
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, data.ErrNoData)

	_, err = Build(context.Background(), &data.Dataset{}, nil)
	assert.ErrorIs(t, err, data.ErrNoData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, sample(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDailyTotals(t *testing.T) {
	d, err := Build(context.Background(), sample(), config.Default())
	require.NoError(t, err)

	days := d.DailyTotals()
	require.Len(t, days, 11)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), days[0].Date)
	assert.InDelta(t, 500.0, days[0].Enrolment, 1e-9)
	assert.InDelta(t, 250.0, days[0].Demographic, 1e-9)
	assert.InDelta(t, 250.0, days[0].Biometric, 1e-9)
	assert.InDelta(t, 2000.0, days[10].Enrolment, 1e-9)
}
