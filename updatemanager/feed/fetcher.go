package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/netbirdio/appupdate/updatemanager/downloader"
)

const (
	appcastLimit = 5 * 1024 * 1024 // 5MB

	placeholderVersion = "%version"
	placeholderOS      = "%os"
	placeholderArch    = "%arch"
)

// Request carries what the coordinator knows at fetch time
type Request struct {
	UserAgent      string
	Headers        map[string]string
	CurrentVersion string
}

// HTTPFetcher loads an appcast from a URL. The URL may contain %version, %os and %arch
// placeholders, they are replaced before the request.
type HTTPFetcher struct {
	url string
}

func NewHTTPFetcher(feedURL string) *HTTPFetcher {
	return &HTTPFetcher{url: feedURL}
}

// Fetch downloads and parses the appcast
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Appcast, error) {
	feedURL := expandURL(f.url, req.CurrentVersion)
	log.Debugf("fetching appcast from %s", feedURL)

	data, err := downloader.DownloadToMemory(ctx, downloader.Request{
		URL:       feedURL,
		Headers:   req.Headers,
		UserAgent: req.UserAgent,
	}, appcastLimit)
	if err != nil {
		return nil, fmt.Errorf("download appcast: %w", err)
	}

	return Parse(data)
}

// Parse decodes a JSON or YAML appcast
func Parse(data []byte) (*Appcast, error) {
	var appcast Appcast

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty appcast")
	}

	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &appcast); err != nil {
			return nil, fmt.Errorf("parse appcast: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &appcast); err != nil {
		return nil, fmt.Errorf("parse appcast: %w", err)
	}

	return &appcast, nil
}

func expandURL(feedURL, currentVersion string) string {
	feedURL = strings.ReplaceAll(feedURL, placeholderVersion, currentVersion)
	feedURL = strings.ReplaceAll(feedURL, placeholderOS, runtime.GOOS)
	feedURL = strings.ReplaceAll(feedURL, placeholderArch, runtime.GOARCH)
	return feedURL
}
