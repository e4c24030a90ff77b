// Package installer puts a verified update package in place of the running executable.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	nberrors "github.com/netbirdio/appupdate/errors"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
)

const (
	backupSuffix = ".backup"
	stagedSuffix = ".new"

	defaultCheckTimeout = 30 * time.Second
)

// Installer replaces the target executable with the update package, keeping a backup
// until the new executable passed its check
type Installer struct {
	target       string
	checkArgs    []string
	checkTimeout time.Duration
	results      *ResultHandler
}

// New returns an Installer replacing target
func New(target string) *Installer {
	return &Installer{
		target:       target,
		checkTimeout: defaultCheckTimeout,
	}
}

// WithCheck runs the installed executable with args after the replacement; a failing
// run restores the previous executable
func (i *Installer) WithCheck(args ...string) *Installer {
	i.checkArgs = args
	return i
}

// WithResults publishes the outcome of every installation through rh
func (i *Installer) WithResults(rh *ResultHandler) *Installer {
	i.results = rh
	return i
}

// Target returns the path of the executable being replaced
func (i *Installer) Target() string {
	return i.target
}

func (i *Installer) Install(ctx context.Context, artifact *downloader.Artifact, update *feed.Update) (err error) {
	defer func() {
		i.writeResult(ctx, update, err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	log.Infof("installing %s to %s", update, i.target)

	staged := i.target + stagedSuffix
	if err := copyFile(artifact.Path, staged); err != nil {
		return i.cleanup(fmt.Errorf("failed to stage update: %w", err), staged)
	}
	if err := os.Chmod(staged, 0o755); err != nil {
		return i.cleanup(fmt.Errorf("failed to set permissions: %w", err), staged)
	}

	backup := i.target + backupSuffix
	hasBackup, err := i.createBackup(backup)
	if err != nil {
		return i.cleanup(fmt.Errorf("failed to create backup: %w", err), staged)
	}

	if err := os.Rename(staged, i.target); err != nil {
		return i.rollback(fmt.Errorf("failed to replace executable: %w", err), backup, hasBackup, staged)
	}

	if err := i.check(ctx); err != nil {
		return i.rollback(err, backup, hasBackup, staged)
	}

	if hasBackup {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			log.Warnf("failed to remove backup %s: %v", backup, err)
		}
	}

	log.Infof("installed %s", update)
	return nil
}

func (i *Installer) createBackup(backup string) (bool, error) {
	if _, err := os.Stat(i.target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if err := os.Rename(i.target, backup); err != nil {
		return false, err
	}
	return true, nil
}

func (i *Installer) check(ctx context.Context) error {
	if len(i.checkArgs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, i.checkTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.target, i.checkArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Debugf("check of installed executable failed, output: %s", out)
		return fmt.Errorf("installed executable failed its check: %w", err)
	}
	return nil
}

// rollback restores the previous executable and removes leftovers. The returned error
// carries cause and every failure of the rollback itself.
func (i *Installer) rollback(cause error, backup string, hasBackup bool, staged string) error {
	log.Warnf("rolling back installation: %v", cause)

	var merr *multierror.Error
	if hasBackup {
		if err := os.Rename(backup, i.target); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("restore backup: %w", err))
		}
	} else if err := os.Remove(i.target); err != nil && !os.IsNotExist(err) {
		merr = multierror.Append(merr, fmt.Errorf("remove installed executable: %w", err))
	}

	return i.cleanup(joinRollback(cause, merr), staged)
}

func (i *Installer) cleanup(cause error, staged string) error {
	var merr *multierror.Error
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		merr = multierror.Append(merr, fmt.Errorf("remove staged file: %w", err))
	}
	return joinRollback(cause, merr)
}

func joinRollback(cause error, merr *multierror.Error) error {
	if err := nberrors.FormatErrorOrNil(merr); err != nil {
		log.Errorf("installation cleanup failed: %v", err)
		return errors.Join(cause, err)
	}
	return cause
}

func (i *Installer) writeResult(ctx context.Context, update *feed.Update, installErr error) {
	if i.results == nil {
		return
	}

	result := Result{
		Success:    installErr == nil,
		Version:    update.Version,
		ExecutedAt: time.Now().UTC(),
	}
	if installErr != nil {
		result.Error = installErr.Error()
	}

	// the result is published even when the install was cancelled
	if err := i.results.Write(context.WithoutCancel(ctx), result); err != nil {
		log.Errorf("failed to write installer result: %v", err)
	}
}

func copyFile(src, dst string) error {
	log.Debugf("copying %s to %s", src, dst)
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Warnf("failed to close source file: %v", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
