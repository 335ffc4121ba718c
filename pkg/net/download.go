package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "pulse/2.0 (+https://github.com/mchmarny/pulse)"
)

var (
	reqTransport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

func getResp(ctx context.Context, url string) (resp *http.Response, err error) {
	c, err := GetHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	req.Header.Set("User-Agent", clientAgent)

	return c.Do(req) //nolint:gosec // G704: URL comes from the operator
}

var (
	ErrorURLNotFound = errors.New("URL not found")
	ErrTooLarge      = errors.New("download exceeds size limit")
	ErrBadHeader     = errors.New("unexpected file header")
)

// DownloadOptions constrains what Download accepts.
type DownloadOptions struct {
	// MaxBytes caps the body size; 0 means no cap.
	MaxBytes int64
	// Columns must all appear in the first line, case-insensitively.
	Columns []string
}

// Download saves the content at url into path and returns the number of
// bytes written. The body is staged in a temp file next to path and only
// renamed into place once it passes the size and header checks.
func Download(ctx context.Context, url, path string, opt DownloadOptions) (int64, error) {
	resp, err := getResp(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrorURLNotFound
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	case opt.MaxBytes > 0 && resp.ContentLength > opt.MaxBytes:
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, opt.MaxBytes)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	n, err := copyChecked(tmp, resp.Body, opt)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing file: %w", cerr)
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("error moving download to %s: %w", path, err)
	}
	return n, nil
}

func copyChecked(dst io.Writer, body io.Reader, opt DownloadOptions) (int64, error) {
	src := body
	if opt.MaxBytes > 0 {
		// one extra byte tells a body of exactly MaxBytes from a longer one
		src = io.LimitReader(body, opt.MaxBytes+1)
	}

	br := bufio.NewReader(src)
	if len(opt.Columns) > 0 {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("error reading header: %w", err)
		}
		if err := checkHeader(line, opt.Columns); err != nil {
			return 0, err
		}
		if _, err := io.WriteString(dst, line); err != nil {
			return 0, fmt.Errorf("error saving downloaded content to file: %w", err)
		}
		n, err := io.Copy(dst, br)
		return finishCopy(int64(len(line))+n, err, opt)
	}

	n, err := io.Copy(dst, br)
	return finishCopy(n, err, opt)
}

func finishCopy(n int64, err error, opt DownloadOptions) (int64, error) {
	if err != nil {
		return 0, fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if opt.MaxBytes > 0 && n > opt.MaxBytes {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, opt.MaxBytes)
	}
	return n, nil
}

func checkHeader(line string, cols []string) error {
	line = strings.ToLower(strings.TrimPrefix(line, "\ufeff"))
	have := make(map[string]bool)
	for _, c := range strings.Split(line, ",") {
		have[strings.Trim(strings.TrimSpace(c), `"`)] = true
	}
	for _, c := range cols {
		if !have[strings.ToLower(c)] {
			return fmt.Errorf("%w: missing column %q", ErrBadHeader, c)
		}
	}
	return nil
}
