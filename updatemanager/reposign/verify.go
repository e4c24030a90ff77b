// Package reposign signs update packages and verifies them against trusted keys.
package reposign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
)

const (
	signatureSuffix = ".sig"

	keySizeLimit   = 5 * 1024 * 1024 //5MB
	signatureLimit = 4 * 1024
)

var ErrSignatureMissing = errors.New("update package is not signed")

// ArtifactVerify checks downloaded packages against a set of trusted artifact keys
type ArtifactVerify struct {
	keys []PublicKey
}

// NewArtifactVerify builds a verifier from trusted keys. Once keys are configured every
// package must carry a valid signature. Without keys verification is skipped, which is
// refused when requireSignature is set.
func NewArtifactVerify(keys []PublicKey, requireSignature bool) (*ArtifactVerify, error) {
	if requireSignature && len(keys) == 0 {
		return nil, errors.New("signatures are required but no trusted keys are configured")
	}

	now := time.Now().UTC()
	valid := make([]PublicKey, 0, len(keys))
	for _, k := range keys {
		if k.Metadata.expired(now) {
			log.Warnf("trusted key %s expired at %v, ignoring it", k.Metadata.ID, k.Metadata.ExpiresAt)
			continue
		}
		valid = append(valid, k)
	}
	if len(keys) > 0 && len(valid) == 0 {
		return nil, fmt.Errorf("all %d trusted keys are expired", len(keys))
	}

	return &ArtifactVerify{keys: valid}, nil
}

// LoadArtifactVerify reads the trusted keys from a PEM bundle file
func LoadArtifactVerify(keysFile string, requireSignature bool) (*ArtifactVerify, error) {
	info, err := os.Stat(keysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted keys: %w", err)
	}
	if info.Size() > keySizeLimit {
		return nil, fmt.Errorf("trusted keys file exceeds %d bytes", keySizeLimit)
	}

	data, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted keys: %w", err)
	}

	keys, err := ParseArtifactPubKeys(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trusted keys: %w", err)
	}
	return NewArtifactVerify(keys, requireSignature)
}

// Verify validates the signature of the downloaded package. The signature is taken from
// the feed asset when published inline, otherwise it is downloaded from the asset URL
// with the ".sig" suffix using the transport settings of base.
func (a *ArtifactVerify) Verify(ctx context.Context, artifact *downloader.Artifact, update *feed.Update, base downloader.Request) error {
	if len(a.keys) == 0 {
		log.Debugf("no trusted keys configured, skipping signature check of %s", update)
		return nil
	}

	signature, err := a.loadSignature(ctx, update, base)
	if err != nil {
		return err
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		log.Errorf("failed to read artifact file: %v", err)
		return fmt.Errorf("failed to read artifact file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("failed to close artifact file: %v", err)
		}
	}()

	if err := ValidateArtifact(a.keys, f, *signature); err != nil {
		return fmt.Errorf("failed to validate artifact %s: %w", filepath.Base(artifact.Path), err)
	}

	log.Infof("verified signature of %s", update)
	return nil
}

// loadSignature returns ErrSignatureMissing when the update has neither an inline nor a
// published signature
func (a *ArtifactVerify) loadSignature(ctx context.Context, update *feed.Update, base downloader.Request) (*Signature, error) {
	if update.Asset.Signature != "" {
		signature, err := parseInlineSignature(update.Asset.Signature)
		if err != nil {
			return nil, fmt.Errorf("failed to parse inline signature: %w", err)
		}
		return signature, nil
	}

	req := downloader.Request{
		URL:       update.Asset.URL + signatureSuffix,
		Headers:   base.Headers,
		UserAgent: base.UserAgent,
	}
	log.Debugf("start downloading artifact signature from: %s", req.URL)
	data, err := downloader.DownloadToMemory(ctx, req, signatureLimit)
	if err != nil {
		var statusErr *downloader.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			log.Warnf("update %s is not signed, refusing to install it", update)
			return nil, ErrSignatureMissing
		}
		log.Debugf("failed to download artifact signature: %s", err)
		return nil, fmt.Errorf("failed to download signature: %w", err)
	}

	signature, err := ParseSignature(data)
	if err != nil {
		log.Debugf("failed to parse artifact signature: %s", err)
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}
	return signature, nil
}
