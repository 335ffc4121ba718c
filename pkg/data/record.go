package data

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSV column names.
const (
	ColDate         = "date"
	ColState        = "state"
	ColDistrict     = "district"
	ColPincode      = "pincode"
	ColLatitude     = "latitude"
	ColLongitude    = "longitude"
	ColAge0to5      = "age_0_5"
	ColAge5to17     = "age_5_17"
	ColAge18Plus    = "age_18_greater"
	ColDemo5to17    = "demo_age_5_17"
	ColDemo17Plus   = "demo_age_17_"
	ColBio5to17     = "bio_age_5_17"
	ColBio17Plus    = "bio_age_17_"
	DateLayout      = "2006-01-02"
	dateLayoutIndia = "02-01-2006"
)

var (
	// ErrNoData is returned when neither chunk files nor the fallback file exist.
	ErrNoData = errors.New("no data files found")

	errMissingColumn = errors.New("missing required column")

	dateLayouts = []string{dateLayoutIndia, DateLayout, "02/01/2006", "2006-01-02 15:04:05"}

	// Columns lists the header written by Split and the exporters.
	Columns = []string{
		ColDate, ColState, ColDistrict, ColPincode, ColLatitude, ColLongitude,
		ColAge0to5, ColAge5to17, ColAge18Plus,
		ColDemo5to17, ColDemo17Plus, ColBio5to17, ColBio17Plus,
	}
)

// Record is one day of counters for a single pincode.
type Record struct {
	Date       time.Time `json:"date" yaml:"date"`
	State      string    `json:"state" yaml:"state"`
	District   string    `json:"district" yaml:"district"`
	Pincode    int       `json:"pincode" yaml:"pincode"`
	Latitude   float64   `json:"latitude" yaml:"latitude"`
	Longitude  float64   `json:"longitude" yaml:"longitude"`
	Age0to5    float64   `json:"age_0_5" yaml:"age_0_5"`
	Age5to17   float64   `json:"age_5_17" yaml:"age_5_17"`
	Age18Plus  float64   `json:"age_18_greater" yaml:"age_18_greater"`
	Demo5to17  float64   `json:"demo_age_5_17" yaml:"demo_age_5_17"`
	Demo17Plus float64   `json:"demo_age_17_" yaml:"demo_age_17_"`
	Bio5to17   float64   `json:"bio_age_5_17" yaml:"bio_age_5_17"`
	Bio17Plus  float64   `json:"bio_age_17_" yaml:"bio_age_17_"`
}

// Enrolment is the total of new enrolments across age bands.
func (r *Record) Enrolment() float64 {
	return r.Age0to5 + r.Age5to17 + r.Age18Plus
}

// Demographic is the total of demographic updates.
func (r *Record) Demographic() float64 {
	return r.Demo5to17 + r.Demo17Plus
}

// Biometric is the total of biometric updates.
func (r *Record) Biometric() float64 {
	return r.Bio5to17 + r.Bio17Plus
}

// HasLocation reports whether both coordinates are present. Empty and NA
// values parse to 0 and count as missing.
func (r *Record) HasLocation() bool {
	return r.Latitude != 0 && r.Longitude != 0
}

func (r *Record) add(o *Record) {
	r.Age0to5 += o.Age0to5
	r.Age5to17 += o.Age5to17
	r.Age18Plus += o.Age18Plus
	r.Demo5to17 += o.Demo5to17
	r.Demo17Plus += o.Demo17Plus
	r.Bio5to17 += o.Bio5to17
	r.Bio17Plus += o.Bio17Plus
}

// Strings renders the record in Columns order.
func (r *Record) Strings() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		r.Date.Format(DateLayout), r.State, r.District, strconv.Itoa(r.Pincode),
		f(r.Latitude), f(r.Longitude),
		f(r.Age0to5), f(r.Age5to17), f(r.Age18Plus),
		f(r.Demo5to17), f(r.Demo17Plus), f(r.Bio5to17), f(r.Bio17Plus),
	}
}

// ParseDate accepts DD-MM-YYYY, YYYY-MM-DD and a few close variants.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", s)
}

// header maps lower-cased column names to their index.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, ok := h[c]; !ok {
			h[c] = i
		}
	}
	return h
}

func (h header) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			return fmt.Errorf("%w: %s", errMissingColumn, c)
		}
	}
	return nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// float returns 0 for empty or NA values and ok=false for garbage.
func (h header) float(row []string, col string) (float64, bool) {
	v := h.get(row, col)
	if v == "" || strings.EqualFold(v, "na") || strings.EqualFold(v, "nan") {
		return 0, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (h header) pincode(row []string) (int, bool) {
	v := h.get(row, ColPincode)
	if v == "" {
		return 0, false
	}
	if p, err := strconv.Atoi(v); err == nil {
		return p, true
	}
	// pincodes exported as floats ("110001.0")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// parseRecord converts a CSV row into a Record. The bool is false when the
// row must be skipped.
func (h header) parseRecord(row []string) (*Record, bool) {
	d, err := ParseDate(h.get(row, ColDate))
	if err != nil {
		return nil, false
	}
	pin, ok := h.pincode(row)
	if !ok {
		return nil, false
	}

	r := &Record{
		Date:     d,
		State:    h.get(row, ColState),
		District: h.get(row, ColDistrict),
		Pincode:  pin,
	}

	fields := []struct {
		col string
		dst *float64
	}{
		{ColLatitude, &r.Latitude},
		{ColLongitude, &r.Longitude},
		{ColAge0to5, &r.Age0to5},
		{ColAge5to17, &r.Age5to17},
		{ColAge18Plus, &r.Age18Plus},
		{ColDemo5to17, &r.Demo5to17},
		{ColDemo17Plus, &r.Demo17Plus},
		{ColBio5to17, &r.Bio5to17},
		{ColBio17Plus, &r.Bio17Plus},
	}
	for _, f := range fields {
		v, ok := h.float(row, f.col)
		if !ok {
			return nil, false
		}
		*f.dst = v
	}
	return r, true
}
