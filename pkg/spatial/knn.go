package spatial

import (
	"math"
	"sort"

	"github.com/google/btree"
)

const (
	// EarthRadiusKm is the mean earth radius used by Haversine.
	EarthRadiusKm = 6371.0

	btreeDegree   = 32
	startBandDeg  = 0.5
	kmPerLatDeg   = EarthRadiusKm * math.Pi / 180
	maxLatSpanDeg = 180
)

// Point is a keyed location (key is usually the pincode).
type Point struct {
	Key int
	Lat float64
	Lon float64
}

// Neighbor is a point with its distance from the query.
type Neighbor struct {
	Point
	DistanceKm float64
}

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Index answers k-nearest-neighbor queries over a fixed set of points.
// Points are ordered by latitude so a query only scans a band around the
// target, widening it until the k-th hit is provably the closest.
type Index struct {
	tree *btree.BTreeG[Point]
}

func less(a, b Point) bool {
	if a.Lat != b.Lat {
		return a.Lat < b.Lat
	}
	return a.Key < b.Key
}

// NewIndex builds an index. Duplicate keys keep the last point.
func NewIndex(points []Point) *Index {
	t := btree.NewG(btreeDegree, less)
	byKey := make(map[int]Point, len(points))
	for _, p := range points {
		if old, ok := byKey[p.Key]; ok {
			t.Delete(old)
		}
		byKey[p.Key] = p
		t.ReplaceOrInsert(p)
	}
	return &Index{tree: t}
}

// Len returns the number of indexed points.
func (x *Index) Len() int {
	return x.tree.Len()
}

// Nearest returns up to k points closest to p, excluding points with p.Key.
// Ties are broken by key.
func (x *Index) Nearest(p Point, k int) []Neighbor {
	if k <= 0 || x.tree.Len() == 0 {
		return nil
	}

	for band := startBandDeg; ; band *= 2 {
		lo := Point{Lat: p.Lat - band, Key: math.MinInt}
		hi := Point{Lat: p.Lat + band, Key: math.MaxInt}

		var hits []Neighbor
		x.tree.AscendRange(lo, hi, func(c Point) bool {
			if c.Key != p.Key {
				hits = append(hits, Neighbor{Point: c, DistanceKm: Haversine(p.Lat, p.Lon, c.Lat, c.Lon)})
			}
			return true
		})

		sort.Slice(hits, func(i, j int) bool {
			if hits[i].DistanceKm != hits[j].DistanceKm {
				return hits[i].DistanceKm < hits[j].DistanceKm
			}
			return hits[i].Key < hits[j].Key
		})

		// anything outside the band is at least band*kmPerLatDeg away
		covered := band >= maxLatSpanDeg
		if len(hits) >= k && hits[k-1].DistanceKm <= band*kmPerLatDeg {
			covered = true
		}
		if covered {
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits
		}
	}
}

// Neighbors computes the k nearest keys for every indexed point.
func (x *Index) Neighbors(k int) map[int][]int {
	out := make(map[int][]int, x.tree.Len())
	x.tree.Ascend(func(p Point) bool {
		nn := x.Nearest(p, k)
		keys := make([]int, len(nn))
		for i, n := range nn {
			keys[i] = n.Key
		}
		out[p.Key] = keys
		return true
	})
	return out
}
