// Package decrypt opens password protected update packages.
package decrypt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager/downloader"
)

const encryptedSuffix = ".enc"

// Decrypter turns a downloaded package into its plaintext form. Packages without the
// encryption header pass through untouched.
type Decrypter struct{}

func New() *Decrypter {
	return &Decrypter{}
}

// Decrypt writes the plaintext next to the downloaded file. The credential is wiped
// before returning, callers hand in a copy.
func (d *Decrypter) Decrypt(ctx context.Context, artifact *downloader.Artifact, cred Credential) (*downloader.Artifact, error) {
	defer cred.Wipe()

	encrypted, err := isEncryptedFile(artifact.Path)
	if err != nil {
		return nil, err
	}
	if !encrypted {
		log.Debugf("package %s is not encrypted", filepath.Base(artifact.Path))
		return artifact, nil
	}

	if cred.IsZero() {
		return nil, ErrCredentialRequired
	}

	out := artifact.Derive(decryptedName(artifact.Path))
	if err := decryptFile(ctx, artifact.Path, out.Path, cred); err != nil {
		if rmErr := os.Remove(out.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warnf("failed to remove partial plaintext %s: %v", out.Path, rmErr)
		}
		return nil, err
	}

	log.Infof("decrypted package %s", filepath.Base(out.Path))
	return out, nil
}

func decryptFile(ctx context.Context, src, dst string, cred Credential) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Warnf("failed to close package %s: %v", src, err)
		}
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create plaintext: %w", err)
	}

	if err := Decrypt(out, in, cred, ctx.Err); err != nil {
		_ = out.Close()
		return err
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close plaintext: %w", err)
	}
	return nil
}

// EncryptFile is used by publishers to produce an encrypted package
func EncryptFile(src, dst string, cred Credential, params KDFParams) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create encrypted package: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close encrypted package: %w", cerr)
		}
	}()

	return Encrypt(out, in, cred, params)
}

func isEncryptedFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open package: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return IsEncrypted(f)
}

func decryptedName(path string) string {
	name := filepath.Base(path)
	if trimmed := strings.TrimSuffix(name, encryptedSuffix); trimmed != name && trimmed != "" {
		return trimmed
	}
	return name + ".decrypted"
}
