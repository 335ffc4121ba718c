package data

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return p
}

var csvHeader = strings.Join(Columns, ",")

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"09-03-2025", "2025-03-09", "09/03/2025", " 2025-03-09 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDate("March 9")
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	h := newHeader(append([]string{"\ufeffDate"}, Columns[1:]...))

	r, ok := h.parseRecord([]string{"01-01-2025", "Delhi", "New Delhi", "110001.0", "28.6", "77.2", "1", "2", "NA", "", "4", "5", "6"})
	require.True(t, ok)
	assert.Equal(t, 110001, r.Pincode)
	assert.Equal(t, "New Delhi", r.District)
	assert.InDelta(t, 3.0, r.Enrolment(), 1e-9)
	assert.InDelta(t, 4.0, r.Demographic(), 1e-9)
	assert.InDelta(t, 11.0, r.Biometric(), 1e-9)
	assert.True(t, r.HasLocation())

	_, ok = h.parseRecord([]string{"bad", "Delhi", "New Delhi", "110001"})
	assert.False(t, ok, "bad date")
	_, ok = h.parseRecord([]string{"01-01-2025", "Delhi", "New Delhi", ""})
	assert.False(t, ok, "missing pincode")
	_, ok = h.parseRecord([]string{"01-01-2025", "Delhi", "New Delhi", "110001", "x"})
	assert.False(t, ok, "garbage number")
}

func TestRecordStrings(t *testing.T) {
	r := &Record{
		Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), State: "Delhi", District: "New Delhi",
		Pincode: 110001, Latitude: 28.6, Longitude: 77.2, Age0to5: 1.5,
	}
	row := r.Strings()
	require.Len(t, row, len(Columns))
	got, ok := newHeader(Columns).parseRecord(row)
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestFindChunks(t *testing.T) {
	dir := t.TempDir()
	_, err := FindChunks(dir, "ds")
	assert.ErrorIs(t, err, ErrNoData)

	writeFile(t, dir, "ds.csv", csvHeader)
	files, err := FindChunks(dir, "ds")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "ds.csv")}, files)

	writeFile(t, dir, "ds_part2.csv", csvHeader)
	writeFile(t, dir, "ds_part1.csv", csvHeader)
	files, err = FindChunks(dir, "ds")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "ds_part1.csv"), filepath.Join(dir, "ds_part2.csv")}, files)

	writeFile(t, dir, "ds_chunk_1.csv", csvHeader)
	files, err = FindChunks(dir, "ds")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "ds_chunk_1.csv")}, files)

	_, err = FindChunks(dir, "")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ds_chunk_1.csv", csvHeader,
		"01-01-2025,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
		"01-01-2025,Delhi,New Delhi,110001,28.6,77.2,2,2,2,2,2,2,2",
		"02-01-2025,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
		"bad-date,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
	)
	writeFile(t, dir, "ds_chunk_2.csv", csvHeader,
		"01-01-2025,Maharashtra,Mumbai,400001,,,5,5,5,5,5,5,5",
		"01-01-2025,Kerala,Ernakulam,682001,,,1,1,1,1,1,1,1",
	)
	geo := writeFile(t, dir, "geo.csv", "pincode,latitude,longitude",
		"400001,18.93,72.83",
		"400001,0,0",
		"682001,0,0",
	)

	ds, err := Load(context.Background(), LoadOptions{Dir: dir, Dataset: "ds", GeoFile: geo, Workers: 2})
	require.NoError(t, err)
	assert.Len(t, ds.Files, 2)
	assert.Equal(t, 5, ds.RawRows)
	assert.Equal(t, 2, ds.Skipped, "bad date and unlocated pincode")
	require.Len(t, ds.Rows, 3)

	first := ds.Rows[0]
	assert.Equal(t, 110001, first.Pincode)
	assert.InDelta(t, 9.0, first.Enrolment(), 1e-9, "same day rows are summed")
	assert.Equal(t, 400001, ds.Rows[2].Pincode)
	assert.InDelta(t, 18.93, ds.Rows[2].Latitude, 1e-9)
	assert.NotEmpty(t, ds.Fingerprint)

	again, err := Load(context.Background(), LoadOptions{Dir: dir, Dataset: "ds", GeoFile: geo})
	require.NoError(t, err)
	assert.Equal(t, ds.Fingerprint, again.Fingerprint)

	_, err = Load(context.Background(), LoadOptions{Dir: dir, Dataset: "missing"})
	assert.ErrorIs(t, err, ErrNoData)

	writeFile(t, dir, "nopin.csv", "date,state")
	_, err = Load(context.Background(), LoadOptions{Dir: dir, Dataset: "nopin"})
	assert.ErrorIs(t, err, errMissingColumn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, LoadOptions{Dir: dir, Dataset: "ds"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_PartialCoordinates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ds.csv", csvHeader,
		"01-01-2025,Delhi,New Delhi,110001,28.6,NA,1,1,1,1,1,1,1",
		"01-01-2025,Kerala,Ernakulam,682001,NA,76.3,1,1,1,1,1,1,1",
		"01-01-2025,Maharashtra,Mumbai,400001,18.9,,1,1,1,1,1,1,1",
	)
	geo := writeFile(t, dir, "geo.csv", "pincode,latitude,longitude",
		"110001,28.63,77.21",
		"400001,0,72.83",
	)

	ds, err := Load(context.Background(), LoadOptions{Dir: dir, Dataset: "ds", GeoFile: geo})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.RawRows)
	assert.Equal(t, 2, ds.Skipped, "no coordinates for 400001 and 682001")
	require.Len(t, ds.Rows, 1)

	r := ds.Rows[0]
	assert.Equal(t, 110001, r.Pincode)
	assert.InDelta(t, 28.6, r.Latitude, 1e-9, "present value kept")
	assert.InDelta(t, 77.21, r.Longitude, 1e-9, "missing value filled")
}

func TestSplit(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "master.csv", csvHeader,
		"01-01-2025,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
		"02-01-2025,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
		"03-01-2025,Delhi,New Delhi,110001,28.6,77.2,1,1,1,1,1,1,1",
	)
	out := filepath.Join(dir, "chunks")

	files, err := Split(src, out, "", 0.0001)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(out, "master_chunk_1.csv"), files[0])
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		assert.Len(t, lines, 2)
		assert.Equal(t, csvHeader, lines[0])
	}

	files, err = Split(src, out, "big", 0)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	sets, err := ListDatasets(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"master": 3, "big": 1}, sets)
	assert.Equal(t, []string{"big", "master"}, DatasetNames(sets))

	ds, err := Load(context.Background(), LoadOptions{Dir: out, Dataset: "master"})
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 3)

	_, err = Split(filepath.Join(dir, "missing.csv"), out, "", 1)
	assert.Error(t, err)
}

func TestLoadGeo(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "geo.csv", "Pincode,Latitude,Longitude",
		"110001,28.6,77.2",
		"110001,1,1",
		"abc,1,1",
		"110002,x,1",
		"110003,0,77.1",
	)
	geo, err := LoadGeo(p)
	require.NoError(t, err)
	assert.Equal(t, GeoLookup{110001: {Latitude: 28.6, Longitude: 77.2}}, geo)

	bad := writeFile(t, dir, "bad.csv", "pincode,lat")
	_, err = LoadGeo(bad)
	assert.ErrorIs(t, err, errMissingColumn)
}
