package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRetryDelay = 3 * time.Second
	DefaultMaxRetries = 2

	tempDirPattern = "appupdate-download-*"
)

var ErrLengthMismatch = errors.New("downloaded length does not match the expected length")

// Request describes one outbound download
type Request struct {
	URL       string
	Headers   map[string]string
	UserAgent string
	// ExpectedLength is checked after the transfer when positive
	ExpectedLength int64
}

// StatusError is returned for non-200 responses
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %d", e.Code)
}

// Downloader fetches update packages into private temporary directories
type Downloader struct {
	client     *http.Client
	tempDir    string
	retryDelay time.Duration
	maxRetries uint64
}

// New returns a Downloader creating its directories under tempDir (os.TempDir when empty)
func New(tempDir string) *Downloader {
	return &Downloader{
		client:     http.DefaultClient,
		tempDir:    tempDir,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
	}
}

// WithRetry overrides the retry policy; a zero delay disables retries
func (d *Downloader) WithRetry(delay time.Duration, maxRetries uint64) *Downloader {
	d.retryDelay = delay
	d.maxRetries = maxRetries
	return d
}

// WithHTTPClient overrides the HTTP client
func (d *Downloader) WithHTTPClient(client *http.Client) *Downloader {
	d.client = client
	return d
}

// Download stores the resource in a new temporary directory. On error nothing is left on disk.
func (d *Downloader) Download(ctx context.Context, req Request) (artifact *Artifact, err error) {
	fileName, err := fileNameFromURL(req.URL)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(d.tempDir, tempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("error creating temporary directory: %w", err)
	}

	a := &Artifact{Path: filepath.Join(dir, fileName), Dir: dir}
	defer func() {
		if err != nil {
			if cerr := a.Cleanup(); cerr != nil {
				log.Errorf("error cleaning up temporary directory: %v", cerr)
			}
		}
	}()

	if err := DownloadToFile(ctx, d.client, d.backOff(ctx), req, a.Path); err != nil {
		return nil, err
	}

	return a, nil
}

func (d *Downloader) backOff(ctx context.Context) backoff.BackOff {
	if d.retryDelay == 0 {
		return &backoff.StopBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryDelay
	b.MaxInterval = 10 * d.retryDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, d.maxRetries), ctx)
}

// DownloadToFile downloads req into dstFile, retrying transient failures with b.
// The file is truncated before every attempt.
func DownloadToFile(ctx context.Context, client *http.Client, b backoff.BackOff, req Request, dstFile string) error {
	log.Debugf("starting download from %s", req.URL)

	out, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", dstFile, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warnf("error closing file %q: %v", dstFile, cerr)
		}
	}()

	operation := func() error {
		if err := out.Truncate(0); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to truncate file: %w", err))
		}
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to seek to beginning of file: %w", err))
		}

		written, err := downloadToFileOnce(ctx, client, req, out)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		if req.ExpectedLength > 0 && written != req.ExpectedLength {
			return backoff.Permanent(fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, written, req.ExpectedLength))
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		log.Warnf("download failed, retrying after %v: %v", next, err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return err
	}

	log.Infof("successfully downloaded file to %s", dstFile)
	return nil
}

// DownloadToMemory fetches a small document, failing when it is larger than limit
func DownloadToMemory(ctx context.Context, req Request, limit int64) ([]byte, error) {
	resp, err := get(ctx, http.DefaultClient, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}

	return data, nil
}

func downloadToFileOnce(ctx context.Context, client *http.Client, req Request, out *os.File) (int64, error) {
	resp, err := get(ctx, client, req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to write response body to file: %w", err)
	}

	return written, nil
}

func get(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	applyHeaders(httpReq, req)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// applyHeaders merges the custom headers; the explicit user agent wins over a header entry
func applyHeaders(httpReq *http.Request, req Request) {
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
}

func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid file URL %q: %w", rawURL, err)
	}
	fileName := path.Base(u.Path)
	if fileName == "." || fileName == "/" || fileName == "" {
		return "", fmt.Errorf("invalid file URL: %s", rawURL)
	}
	return fileName, nil
}
