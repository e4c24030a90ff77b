// Package feed models the update feed (appcast) and picks the update applicable to
// the running application.
package feed

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

const anyPlatform = "any"

// Appcast is the document published by the update source
type Appcast struct {
	Title string `json:"title" yaml:"title"`
	Items []Item `json:"items" yaml:"items"`
}

// Item is one published release
type Item struct {
	Version              string    `json:"version" yaml:"version"`
	Title                string    `json:"title,omitempty" yaml:"title,omitempty"`
	ReleaseNotesURL      string    `json:"releaseNotesURL,omitempty" yaml:"releaseNotesURL,omitempty"`
	PublishedAt          time.Time `json:"publishedAt,omitempty" yaml:"publishedAt,omitempty"`
	Channel              string    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Critical             bool      `json:"critical,omitempty" yaml:"critical,omitempty"`
	MinimumSystemVersion string    `json:"minimumSystemVersion,omitempty" yaml:"minimumSystemVersion,omitempty"`
	MaximumSystemVersion string    `json:"maximumSystemVersion,omitempty" yaml:"maximumSystemVersion,omitempty"`
	Assets               []Asset   `json:"assets" yaml:"assets"`
}

// Asset is a downloadable package of an Item for one platform
type Asset struct {
	OS     string `json:"os" yaml:"os"`
	Arch   string `json:"arch" yaml:"arch"`
	URL    string `json:"url" yaml:"url"`
	Length int64  `json:"length,omitempty" yaml:"length,omitempty"`
	// Signature is the detached artifact signature document, if published inline
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// Update is the resolved item together with the asset for this platform
type Update struct {
	Item
	Asset   Asset
	version *goversion.Version
}

// NewUpdate pairs item with asset, validating the item version
func NewUpdate(item Item, asset Asset) (*Update, error) {
	v, err := goversion.NewVersion(item.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid item version %q: %w", item.Version, err)
	}
	return &Update{Item: item, Asset: asset, version: v}, nil
}

// SemVer returns the parsed item version
func (u *Update) SemVer() *goversion.Version {
	return u.version
}

func (u *Update) String() string {
	return fmt.Sprintf("%s (%s/%s)", u.Version, u.Asset.OS, u.Asset.Arch)
}

// ResolveOptions narrows the items of an appcast down to the applicable one
type ResolveOptions struct {
	CurrentVersion *goversion.Version
	OS             string
	Arch           string
	// SystemVersion is compared against item limits when set
	SystemVersion string
	// SkippedVersion is ignored even if it is the newest
	SkippedVersion string
	// Channel selects items of a channel in addition to the default (empty) channel
	Channel string
}

// DefaultResolveOptions returns options for the running platform
func DefaultResolveOptions(current *goversion.Version) ResolveOptions {
	return ResolveOptions{
		CurrentVersion: current,
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
}

// Resolve returns the newest item that is newer than the current version and has an
// asset for the platform. It returns nil when no update applies.
func (a *Appcast) Resolve(opts ResolveOptions) *Update {
	if a == nil || opts.CurrentVersion == nil {
		return nil
	}

	var skipped *goversion.Version
	if opts.SkippedVersion != "" {
		if v, err := goversion.NewVersion(opts.SkippedVersion); err == nil {
			skipped = v
		}
	}

	candidates := make([]*Update, 0, len(a.Items))
	for _, item := range a.Items {
		v, err := goversion.NewVersion(item.Version)
		if err != nil {
			log.Debugf("ignoring feed item with invalid version %q: %v", item.Version, err)
			continue
		}

		if !v.GreaterThan(opts.CurrentVersion) {
			continue
		}

		if skipped != nil && v.Equal(skipped) {
			log.Debugf("version %s is skipped", v)
			continue
		}

		if item.Channel != "" && item.Channel != opts.Channel {
			continue
		}

		if !systemVersionAllowed(item, opts.SystemVersion) {
			log.Debugf("version %s does not support system version %s", v, opts.SystemVersion)
			continue
		}

		asset, ok := item.assetFor(opts.OS, opts.Arch)
		if !ok {
			continue
		}

		candidates = append(candidates, &Update{Item: item, Asset: asset, version: v})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].version.GreaterThan(candidates[j].version)
	})
	return candidates[0]
}

func (i Item) assetFor(goos, goarch string) (Asset, bool) {
	var fallback *Asset
	for idx := range i.Assets {
		asset := i.Assets[idx]
		if asset.URL == "" {
			continue
		}
		osMatch := strings.EqualFold(asset.OS, goos)
		archMatch := strings.EqualFold(asset.Arch, goarch)
		if osMatch && archMatch {
			return asset, true
		}
		if osMatch && (asset.Arch == "" || asset.Arch == anyPlatform) && fallback == nil {
			fallback = &i.Assets[idx]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Asset{}, false
}

func systemVersionAllowed(item Item, system string) bool {
	if system == "" {
		return true
	}
	sv, err := goversion.NewVersion(system)
	if err != nil {
		return true
	}

	if item.MinimumSystemVersion != "" {
		if minimum, err := goversion.NewVersion(item.MinimumSystemVersion); err == nil && sv.LessThan(minimum) {
			return false
		}
	}
	if item.MaximumSystemVersion != "" {
		if maximum, err := goversion.NewVersion(item.MaximumSystemVersion); err == nil && sv.GreaterThan(maximum) {
			return false
		}
	}
	return true
}
