package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/util"
)

const (
	resultFile = "result.json"
)

// Result is the outcome of one installation as seen by other processes
type Result struct {
	Success    bool
	Version    string
	Error      string
	ExecutedAt time.Time
}

// ResultHandler handles reading and writing update results
type ResultHandler struct {
	resultFile string
}

// NewResultHandler creates a handler for "result.json" in the given directory
func NewResultHandler(dir string) *ResultHandler {
	return &ResultHandler{
		resultFile: filepath.Join(dir, resultFile),
	}
}

// Path returns the location of the result file
func (rh *ResultHandler) Path() string {
	return rh.resultFile
}

// Watch waits until a result is written, consumes it and removes the file
func (rh *ResultHandler) Watch(ctx context.Context) (Result, error) {
	log.Infof("start watching result: %s", rh.resultFile)

	// Check if file already exists (installer finished before we started watching)
	if result, err := rh.tryReadResult(); err == nil {
		rh.cleanupAfterRead()
		log.Infof("installer result: %+v", result)
		return result, nil
	}

	dir := filepath.Dir(rh.resultFile)

	// Wait for directory to exist (with timeout from context)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

DirectoryReady:
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			break DirectoryReady
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error(err)
		return Result{}, err
	}

	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warnf("failed to close watcher: %v", err)
		}
	}()

	// Watch the directory (not the file, since it doesn't exist yet)
	if err := watcher.Add(dir); err != nil {
		return Result{}, fmt.Errorf("failed to watch directory: %v", err)
	}

	// the result may have landed between the first read and the watcher setup
	if result, err := rh.tryReadResult(); err == nil {
		rh.cleanupAfterRead()
		log.Infof("installer result: %+v", result)
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}

			if event.Name != rh.resultFile {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				result, err := rh.tryReadResult()
				if err != nil {
					log.Debugf("error while reading result: %v", err)
					return result, err
				}
				rh.cleanupAfterRead()
				log.Infof("installer result: %+v", result)
				return result, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}
			return Result{}, fmt.Errorf("watcher error: %w", err)
		}
	}
}

// Write stores the result atomically
func (rh *ResultHandler) Write(ctx context.Context, result Result) error {
	log.Infof("write out installer result to: %s", rh.resultFile)
	if err := util.WriteJson(ctx, rh.resultFile, result); err != nil {
		log.Errorf("failed to write installer result: %v", err)
		return err
	}
	return nil
}

// Cleanup removes the result file if it exists
func (rh *ResultHandler) Cleanup() error {
	if err := util.RemoveJson(rh.resultFile); err != nil {
		return err
	}
	log.Debugf("delete installer result file: %s", rh.resultFile)
	return nil
}

func (rh *ResultHandler) cleanupAfterRead() {
	if err := rh.Cleanup(); err != nil {
		log.Warnf("failed to cleanup result file: %v", err)
	}
}

// tryReadResult attempts to read and validate the result file
func (rh *ResultHandler) tryReadResult() (Result, error) {
	var result Result
	if _, err := util.ReadJson(rh.resultFile, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}
