package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager"
	"github.com/netbirdio/appupdate/updatemanager/bundle"
	"github.com/netbirdio/appupdate/updatemanager/decrypt"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
	"github.com/netbirdio/appupdate/updatemanager/installer"
	"github.com/netbirdio/appupdate/updatemanager/reposign"
	"github.com/netbirdio/appupdate/util"
)

// decryptionPasswordEnv is the only source of the package decryption password
const decryptionPasswordEnv = envPrefix + "DECRYPTION_PASSWORD"

// Config is the updater configuration file
type Config struct {
	FeedURL   string            `json:"feedURL"`
	UserAgent string            `json:"userAgent,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	StateFile string            `json:"stateFile,omitempty"`
	// CheckInterval is a Go duration string, e.g. "12h"
	CheckInterval string `json:"checkInterval,omitempty"`

	TrustedKeysFile  string `json:"trustedKeysFile,omitempty"`
	RequireSignature bool   `json:"requireSignature,omitempty"`

	InstallTarget string   `json:"installTarget"`
	InstallCheck  []string `json:"installCheck,omitempty"`
	ResultDir     string   `json:"resultDir,omitempty"`
	BundleDir     string   `json:"bundleDir,omitempty"`
	DownloadDir   string   `json:"downloadDir,omitempty"`
}

// ReadConfig reads and validates the config file at path
func ReadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg := &Config{}
	if _, err := util.ReadJson(path, cfg); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FeedURL == "" {
		return errors.New("feedURL is required")
	}
	if c.InstallTarget == "" {
		return errors.New("installTarget is required")
	}
	if c.RequireSignature && c.TrustedKeysFile == "" {
		return errors.New("requireSignature needs a trustedKeysFile")
	}
	if _, err := c.checkInterval(); err != nil {
		return err
	}
	return nil
}

func (c *Config) checkInterval() (time.Duration, error) {
	if c.CheckInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CheckInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid checkInterval %q: %w", c.CheckInterval, err)
	}
	return d, nil
}

// newCoordinator wires the HTTP collaborators described by cfg
func newCoordinator(cfg *Config, reg prometheus.Registerer) (*updatemanager.Coordinator, error) {
	interval, err := cfg.checkInterval()
	if err != nil {
		return nil, err
	}

	inst := installer.New(cfg.InstallTarget).WithCheck(cfg.InstallCheck...)
	if cfg.ResultDir != "" {
		inst = inst.WithResults(installer.NewResultHandler(cfg.ResultDir))
	}

	opts := updatemanager.Options{
		Fetcher:       feed.NewHTTPFetcher(cfg.FeedURL),
		Downloader:    downloader.New(cfg.DownloadDir),
		Decrypter:     decrypt.New(),
		Installer:     inst,
		Bundle:        bundle.NewResolver(cfg.BundleDir),
		CheckInterval: interval,
		StateFile:     cfg.StateFile,
		Channel:       cfg.Channel,
		Registerer:    reg,
	}

	if cfg.TrustedKeysFile != "" {
		verifier, err := reposign.LoadArtifactVerify(cfg.TrustedKeysFile, cfg.RequireSignature)
		if err != nil {
			return nil, fmt.Errorf("load trusted keys: %w", err)
		}
		opts.Verifier = verifier
	} else {
		log.Warnf("no trusted keys configured, update packages will not be signature checked")
	}

	c, err := updatemanager.New(opts)
	if err != nil {
		return nil, err
	}

	c.SetUserAgent(cfg.UserAgent)
	c.SetHTTPHeaders(cfg.Headers)

	if password, ok := os.LookupEnv(decryptionPasswordEnv); ok {
		cred := decrypt.NewCredential(password)
		c.SetDecryptionCredential(cred)
		cred.Wipe()
	}
	return c, nil
}
