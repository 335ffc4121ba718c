package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mchmarny/pulse/pkg/intel"
	"github.com/mchmarny/pulse/pkg/risk"
)

func rows() []*intel.PincodeSummary {
	return []*intel.PincodeSummary{
		{Pincode: 110001, State: "Delhi", District: "New Delhi", Latitude: 28.6, Longitude: 77.2,
			Governance: 55.5, RiskLevel: "HIGH", Anomaly: true, AnomalyScore: 0.25, ClusterID: 3,
			SectorScores: risk.SectorScores{Education: 40, Hunger: 70.5, Rural: 10, Electoral: 30, Labor: 50}},
		{Pincode: 400001, State: "Maharashtra", District: "Mumbai, City", Governance: 75, RiskLevel: "CRITICAL"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows()))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, Header, recs[0])
	assert.Equal(t, []string{
		"110001", "Delhi", "New Delhi", "28.6", "77.2", "55.5", "HIGH",
		"40", "70.5", "10", "30", "50", "true", "0.25", "3",
	}, recs[1])
	assert.Equal(t, "Mumbai, City", recs[2][2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Header, got[0])
	assert.Equal(t, "110001", got[1][0])
	assert.Equal(t, "New Delhi", got[1][2])
	assert.Equal(t, "CRITICAL", got[2][6])
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, "", nil))
	assert.Equal(t, "pincode", buf.String()[:7])
	assert.Error(t, Write(&buf, "pdf", nil))

	assert.Equal(t, ContentTypeXLSX, ContentType(FormatXLSX))
	assert.Equal(t, ContentTypeCSV, ContentType(FormatCSV))
}
