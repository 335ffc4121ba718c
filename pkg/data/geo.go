package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Coord is a pincode location.
type Coord struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// GeoLookup maps a pincode to its coordinates.
type GeoLookup map[int]Coord

// LoadGeo reads a pincode,latitude,longitude file. The first usable row for a
// pincode wins; rows missing either coordinate are ignored.
func LoadGeo(path string) (GeoLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	cols, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read geo header: %w", err)
	}
	h := newHeader(cols)
	if err := h.require(ColPincode, ColLatitude, ColLongitude); err != nil {
		return nil, fmt.Errorf("invalid geo file %s: %w", path, err)
	}

	geo := make(GeoLookup)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read geo file %s: %w", path, err)
		}
		pin, ok := h.pincode(row)
		if !ok {
			continue
		}
		if _, seen := geo[pin]; seen {
			continue
		}
		lat, ok1 := h.float(row, ColLatitude)
		lon, ok2 := h.float(row, ColLongitude)
		if !ok1 || !ok2 || lat == 0 || lon == 0 {
			continue
		}
		geo[pin] = Coord{Latitude: lat, Longitude: lon}
	}
	return geo, nil
}
