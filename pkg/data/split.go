package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	bytesPerMB     = 1024 * 1024
	chunkFileMode  = 0o644
	chunkDirMode   = 0o755
	defaultChunkMB = 90
)

// Split copies src into <base>_chunk_<n>.csv files under dstDir, each close
// to maxMB in size and each repeating the header row.
func Split(src, dstDir, base string, maxMB float64) ([]string, error) {
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	if maxMB <= 0 {
		maxMB = defaultChunkMB
	}
	limit := int64(maxMB * bytesPerMB)

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(dstDir, chunkDirMode); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	head, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", src, err)
	}
	head = append([]string(nil), head...)

	var (
		files   []string
		out     *os.File
		writer  *csv.Writer
		written int64
	)

	closeChunk := func() error {
		if out == nil {
			return nil
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		return out.Close()
	}

	openChunk := func() error {
		if err := closeChunk(); err != nil {
			return err
		}
		name := filepath.Join(dstDir, fmt.Sprintf("%s_chunk_%d.csv", base, len(files)+1))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, chunkFileMode)
		if err != nil {
			return err
		}
		out, writer = f, csv.NewWriter(f)
		files = append(files, name)
		written = rowSize(head)
		return writer.Write(head)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			closeChunk() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		size := rowSize(row)
		if out == nil || (written+size > limit && written > rowSize(head)) {
			if err := openChunk(); err != nil {
				return nil, fmt.Errorf("failed to open chunk: %w", err)
			}
		}
		if err := writer.Write(row); err != nil {
			closeChunk() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to write chunk: %w", err)
		}
		written += size
	}

	if err := closeChunk(); err != nil {
		return nil, fmt.Errorf("failed to close chunk: %w", err)
	}

	slog.Info("dataset split", "source", src, "chunks", len(files))
	return files, nil
}

func rowSize(row []string) int64 {
	n := int64(len(row)) // separators + newline
	for _, f := range row {
		n += int64(len(f))
	}
	return n
}

// ListDatasets returns chunked dataset names found in dir with their chunk count.
func ListDatasets(dir string) (map[string]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	out := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		name := e.Name()
		for _, sep := range []string{"_chunk_", "_part"} {
			if i := strings.LastIndex(name, sep); i > 0 {
				out[name[:i]]++
				break
			}
		}
	}
	return out, nil
}

// DatasetNames returns the sorted keys of ListDatasets.
func DatasetNames(sets map[string]int) []string {
	names := make([]string, 0, len(sets))
	for k := range sets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
