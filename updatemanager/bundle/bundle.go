// Package bundle resolves the metadata of the application hosting the updater:
// its identity, its current version and where its executable lives.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goversion "github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/netbirdio/appupdate/version"
)

const manifestBaseName = "bundle"

var ErrManifestNotFound = errors.New("bundle manifest not found")

// Bundle describes the hosting application
type Bundle struct {
	Identifier     string
	Name           string
	Version        *goversion.Version
	DisplayVersion string
	ExecutablePath string
	Dir            string
}

// manifest is the on-disk form of the bundle metadata
type manifest struct {
	Identifier string `json:"identifier" yaml:"identifier" toml:"identifier"`
	Name       string `json:"name" yaml:"name" toml:"name"`
	Version    string `json:"version" yaml:"version" toml:"version"`
	Executable string `json:"executable" yaml:"executable" toml:"executable"`
}

type decodeFunc func([]byte, any) error

var manifestFormats = []struct {
	ext    string
	decode decodeFunc
}{
	{".yaml", yaml.Unmarshal},
	{".yml", yaml.Unmarshal},
	{".toml", toml.Unmarshal},
	{".json", json.Unmarshal},
}

// Resolver locates bundle metadata on disk
type Resolver struct {
	// Dir holds the manifest; empty means the directory of the running executable
	Dir string
	// FallbackVersion is used when the manifest has no version
	FallbackVersion string
}

// NewResolver returns a resolver reading the manifest from dir
func NewResolver(dir string) *Resolver {
	return &Resolver{
		Dir:             dir,
		FallbackVersion: version.AppVersion(),
	}
}

// Resolve reads the manifest and builds the Bundle
func (r *Resolver) Resolve() (*Bundle, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}

	dir := r.Dir
	if dir == "" {
		dir = filepath.Dir(executable)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("bundle directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", dir)
	}

	m, err := readManifest(dir)
	switch {
	case errors.Is(err, ErrManifestNotFound):
		log.Debugf("no bundle manifest in %s, using executable metadata", dir)
		m = &manifest{}
	case err != nil:
		return nil, err
	}

	b := &Bundle{
		Identifier:     m.Identifier,
		Name:           m.Name,
		ExecutablePath: executable,
		Dir:            dir,
	}

	if m.Executable != "" {
		b.ExecutablePath = m.Executable
		if !filepath.IsAbs(b.ExecutablePath) {
			b.ExecutablePath = filepath.Join(dir, b.ExecutablePath)
		}
	}

	if b.Name == "" {
		b.Name = filepath.Base(b.ExecutablePath)
	}
	if b.Identifier == "" {
		b.Identifier = b.Name
	}

	b.DisplayVersion = m.Version
	if b.DisplayVersion == "" {
		b.DisplayVersion = r.FallbackVersion
	}

	b.Version, err = goversion.NewVersion(b.DisplayVersion)
	if err != nil {
		return nil, fmt.Errorf("bundle %s has no comparable version %q: %w", b.Identifier, b.DisplayVersion, err)
	}

	return b, nil
}

func readManifest(dir string) (*manifest, error) {
	for _, format := range manifestFormats {
		path := filepath.Join(dir, manifestBaseName+format.ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle manifest: %w", err)
		}

		var m manifest
		if err := format.decode(data, &m); err != nil {
			return nil, fmt.Errorf("parse bundle manifest %s: %w", path, err)
		}
		log.Debugf("loaded bundle manifest %s", path)
		return &m, nil
	}
	return nil, ErrManifestNotFound
}
