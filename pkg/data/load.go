package data

import (
	"context"
	"encoding/binary"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

const (
	chunkPattern    = "%s_chunk_*.csv"
	partPattern     = "%s_part*.csv"
	fallbackPattern = "%s.csv"
	ctxCheckRows    = 10000
)

// LoadOptions controls where and how the dataset is read.
type LoadOptions struct {
	Dir     string
	Dataset string
	GeoFile string
	Workers int
}

// Dataset is the aggregated, immutable result of a load.
type Dataset struct {
	Rows        []*Record `json:"-" yaml:"-"`
	Files       []string  `json:"files" yaml:"files"`
	RawRows     int       `json:"raw_rows" yaml:"raw_rows"`
	Skipped     int       `json:"skipped" yaml:"skipped"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at" yaml:"loaded_at"`
}

type chunkResult struct {
	rows    []*Record
	skipped int
	sum     uint64
}

// FindChunks returns the chunk files for dataset in dir: <dataset>_chunk_*.csv,
// else <dataset>_part*.csv, else <dataset>.csv. ErrNoData when none exist.
func FindChunks(dir, dataset string) ([]string, error) {
	if dataset == "" {
		return nil, errors.New("dataset name required")
	}

	for _, p := range []string{chunkPattern, partPattern} {
		files, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf(p, dataset)))
		if err != nil {
			return nil, fmt.Errorf("failed to glob chunks in %s: %w", dir, err)
		}
		if len(files) > 0 {
			sort.Strings(files)
			return files, nil
		}
	}

	fallback := filepath.Join(dir, fmt.Sprintf(fallbackPattern, dataset))
	if _, err := os.Stat(fallback); err == nil {
		return []string{fallback}, nil
	}

	return nil, fmt.Errorf("%w: %s in %s", ErrNoData, dataset, dir)
}

// Load reads every chunk concurrently, fills missing coordinates from the
// optional geo file and aggregates the rows per (date, pincode).
func Load(ctx context.Context, opt LoadOptions) (*Dataset, error) {
	files, err := FindChunks(opt.Dir, opt.Dataset)
	if err != nil {
		return nil, err
	}

	var geo GeoLookup
	if opt.GeoFile != "" {
		if geo, err = LoadGeo(opt.GeoFile); err != nil {
			return nil, err
		}
	}

	workers := opt.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]chunkResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			res, err := readChunk(gctx, f)
			if err != nil {
				return fmt.Errorf("failed to read chunk %s: %w", f, err)
			}
			results[i] = res
			slog.Debug("chunk loaded", "file", f, "rows", len(res.rows), "skipped", res.skipped)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Files:    files,
		LoadedAt: time.Now().UTC(),
	}

	digest := xxhash.New()
	raw := make([]*Record, 0)
	for _, r := range results {
		raw = append(raw, r.rows...)
		ds.Skipped += r.skipped
		digest.Write(binary.LittleEndian.AppendUint64(nil, r.sum)) //nolint:errcheck // hash writes never fail
	}
	ds.RawRows = len(raw)
	ds.Fingerprint = hex.EncodeToString(digest.Sum(nil))

	located := raw[:0]
	for _, r := range raw {
		if c, ok := geo[r.Pincode]; ok && !r.HasLocation() {
			if r.Latitude == 0 {
				r.Latitude = c.Latitude
			}
			if r.Longitude == 0 {
				r.Longitude = c.Longitude
			}
		}
		if !r.HasLocation() {
			ds.Skipped++
			continue
		}
		located = append(located, r)
	}

	ds.Rows = Aggregate(located)

	slog.Info("dataset loaded",
		"dataset", opt.Dataset,
		"files", len(files),
		"raw_rows", ds.RawRows,
		"rows", len(ds.Rows),
		"skipped", ds.Skipped,
		"fingerprint", ds.Fingerprint)

	return ds, nil
}

func readChunk(ctx context.Context, path string) (chunkResult, error) {
	var res chunkResult

	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	digest := xxhash.New()
	reader := csv.NewReader(io.TeeReader(f, digest))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	cols, err := reader.Read()
	if err != nil {
		return res, fmt.Errorf("failed to read header: %w", err)
	}
	h := newHeader(cols)
	if err := h.require(ColDate, ColPincode); err != nil {
		return res, err
	}

	for n := 0; ; n++ {
		if n%ctxCheckRows == 0 && ctx.Err() != nil {
			return res, ctx.Err()
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.skipped++
				continue
			}
			return res, err
		}
		r, ok := h.parseRecord(row)
		if !ok {
			res.skipped++
			continue
		}
		res.rows = append(res.rows, r)
	}

	res.sum = digest.Sum64()
	return res, nil
}

type dayKey struct {
	pincode int
	day     int64
}

// Aggregate sums counters of rows sharing (date, pincode). Identity fields
// come from the first row seen. Output is sorted by pincode, then date.
func Aggregate(rows []*Record) []*Record {
	idx := make(map[dayKey]*Record, len(rows))
	out := make([]*Record, 0, len(rows))
	for _, r := range rows {
		k := dayKey{pincode: r.Pincode, day: r.Date.Unix()}
		if a, ok := idx[k]; ok {
			a.add(r)
			continue
		}
		c := *r
		idx[k] = &c
		out = append(out, &c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pincode != out[j].Pincode {
			return out[i].Pincode < out[j].Pincode
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
