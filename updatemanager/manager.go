// Package updatemanager coordinates update processes: it checks the feed, downloads,
// verifies, decrypts and installs updates through pluggable collaborators, and tells an
// optional host delegate when each process starts and ends.
package updatemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager/bundle"
	"github.com/netbirdio/appupdate/updatemanager/decrypt"
	"github.com/netbirdio/appupdate/updatemanager/downloader"
	"github.com/netbirdio/appupdate/updatemanager/feed"
	"github.com/netbirdio/appupdate/util"
)

const (
	DefaultCheckInterval = 24 * time.Hour
	MinCheckInterval     = time.Hour
)

// Options wires the collaborators of a Coordinator
type Options struct {
	Fetcher    Fetcher
	Downloader Downloader
	// Verifier is optional; without it packages are not signature checked
	Verifier  Verifier
	Decrypter Decrypter
	Installer Installer
	Bundle    BundleResolver

	// CheckInterval of the automatic checks, clamped to MinCheckInterval
	CheckInterval time.Duration
	// StateFile persists the last check time and the skipped version when set
	StateFile string
	// Channel selects feed items of that channel besides the default channel
	Channel string
	// SystemVersion is compared against the system limits of feed items
	SystemVersion string
	// Registerer receives the coordinator metrics; nil disables registration
	Registerer prometheus.Registerer
}

// Coordinator runs at most one update process at a time
type Coordinator struct {
	*Configuration

	fetcher    Fetcher
	downloader Downloader
	verifier   Verifier
	decrypter  Decrypter
	installer  Installer

	channel       string
	systemVersion string
	interval      time.Duration

	registry registry
	state    *stateStore
	metrics  *metrics

	mu      sync.Mutex
	active  *Process
	stopped bool
	wg      sync.WaitGroup

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopWg     sync.WaitGroup
}

// New validates opts and returns an idle Coordinator. The bundle is not resolved until
// it is first needed.
func New(opts Options) (*Coordinator, error) {
	if opts.Fetcher == nil {
		return nil, &ConfigurationError{Err: errors.New("no feed fetcher configured")}
	}
	if opts.Installer == nil {
		return nil, &ConfigurationError{Err: errors.New("no installer configured")}
	}
	if opts.Downloader == nil {
		opts.Downloader = downloader.New("")
	}
	if opts.Decrypter == nil {
		opts.Decrypter = decrypt.New()
	}
	if opts.Bundle == nil {
		opts.Bundle = bundle.NewResolver("")
	}

	interval := opts.CheckInterval
	switch {
	case interval == 0:
		interval = DefaultCheckInterval
	case interval < MinCheckInterval:
		log.Warnf("check interval %s is below the minimum, using %s", interval, MinCheckInterval)
		interval = MinCheckInterval
	}

	return &Coordinator{
		Configuration: newConfiguration(opts.Bundle),
		fetcher:       opts.Fetcher,
		downloader:    opts.Downloader,
		verifier:      opts.Verifier,
		decrypter:     opts.Decrypter,
		installer:     opts.Installer,
		channel:       opts.Channel,
		systemVersion: opts.SystemVersion,
		interval:      interval,
		state:         newStateStore(opts.StateFile),
		metrics:       newMetrics(opts.Registerer),
	}, nil
}

// SetDelegate attaches ref; nil detaches. A delegate attached while a process runs only
// sees the notifications that follow.
func (c *Coordinator) SetDelegate(ref DelegateRef) {
	c.registry.set(ref)
}

// Delegate returns the live delegate or nil
func (c *Coordinator) Delegate() any {
	return c.registry.current()
}

// ActiveProcess returns the running process or nil when idle
func (c *Coordinator) ActiveProcess() *Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SkipVersion makes later checks ignore exactly version v; empty clears it
func (c *Coordinator) SkipVersion(v string) {
	c.state.setSkippedVersion(v)
}

// LastUpdateCheck returns when the last process started checking
func (c *Coordinator) LastUpdateCheck() time.Time {
	return c.state.lastCheck()
}

// StartUpdateCheck starts a full update process on its own goroutine. It fails with
// ErrConfiguration when the bundle cannot be resolved and with ErrConcurrentUpdate
// while another process is active, including from inside a delegate hook. Cancelling
// ctx cancels the process.
func (c *Coordinator) StartUpdateCheck(ctx context.Context) (*Process, error) {
	return c.start(ctx, CheckUpdate)
}

// StartUpdateInformationCheck starts a process that stops after resolving the update
func (c *Coordinator) StartUpdateInformationCheck(ctx context.Context) (*Process, error) {
	return c.start(ctx, CheckInformation)
}

// CancelActiveUpdateCheck asks the active process to stop. It returns false when no
// process can be cancelled.
func (c *Coordinator) CancelActiveUpdateCheck() bool {
	p := c.ActiveProcess()
	if p == nil {
		return false
	}
	accepted := p.requestCancel()
	if accepted {
		log.Infof("cancellation of update process %s requested", p.ID())
	}
	return accepted
}

func (c *Coordinator) start(ctx context.Context, kind CheckKind) (*Process, error) {
	b, err := c.Bundle()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrConcurrentUpdate
	}

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := newProcess(uuid.NewString(), kind, cancel)
	c.active = p
	c.wg.Add(1)
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		p.requestCancel()
	})

	go c.run(pctx, p, b, stop)
	return p, nil
}

func (c *Coordinator) run(ctx context.Context, p *Process, b *bundle.Bundle, stopCancelWatch func() bool) {
	defer c.wg.Done()
	defer stopCancelWatch()
	defer p.cancel()

	logger := log.WithContext(util.WithProcessID(ctx, p.ID()))
	c.metrics.processStarted()

	var (
		outcome Outcome
		err     error
	)
	if err = p.advance(PhaseChecking); err != nil {
		outcome = OutcomeFailed
		err = newPhaseError(ErrInvalidTransition, PhaseIdle, err)
	} else {
		logger.Infof("starting %s check of %s %s", p.Kind(), b.Name, b.DisplayVersion)
		c.notifyStart(p)
		c.state.setLastCheck(p.StartedAt())
		outcome, err = c.drive(ctx, p, b, logger)
	}

	p.conclude(outcome, err)
	if p.Outcome() == OutcomeFailed {
		logger.Errorf("update process failed: %v", p.Err())
	} else {
		logger.Infof("update process concluded: %s", p.Outcome())
	}
	c.metrics.processConcluded(p)

	c.notifyEnd(p)

	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
	c.metrics.processFinished()
	p.finish()
}

// drive runs the collaborators. Every artifact it created is removed before it returns.
func (c *Coordinator) drive(ctx context.Context, p *Process, b *bundle.Bundle, logger *log.Entry) (outcome Outcome, err error) {
	var artifacts []*downloader.Artifact
	defer func() {
		cleanupArtifacts(artifacts, logger)
	}()

	defer func() {
		if r := recover(); r != nil {
			phase := p.Phase()
			outcome = OutcomeFailed
			err = newPhaseError(phaseKind(phase), phase, fmt.Errorf("collaborator panicked: %v", r))
		}
	}()

	appcast, err := c.fetcher.Fetch(ctx, feed.Request{
		UserAgent:      c.UserAgent(),
		Headers:        c.HTTPHeaders(),
		CurrentVersion: b.Version.String(),
	})
	if p.CancelRequested() {
		return OutcomeCancelled, context.Canceled
	}
	if err != nil {
		return OutcomeFailed, newPhaseError(ErrFetch, PhaseChecking, err)
	}

	if err := c.transition(p, PhaseResolving); err != nil {
		return OutcomeFailed, err
	}

	opts := feed.DefaultResolveOptions(b.Version)
	opts.SkippedVersion = c.state.skippedVersion()
	opts.Channel = c.channel
	opts.SystemVersion = c.systemVersion

	update := appcast.Resolve(opts)
	if update == nil {
		logger.Infof("no update available for %s %s", b.Name, b.DisplayVersion)
		c.notifyNoUpdate(p)
		if p.CancelRequested() {
			return OutcomeCancelled, context.Canceled
		}
		return OutcomeSucceeded, nil
	}

	p.setUpdate(update)
	logger.Infof("found update %s", update)
	c.notifyUpdateFound(p, update)

	if p.CancelRequested() {
		return OutcomeCancelled, context.Canceled
	}
	if p.Kind() == CheckInformation {
		return OutcomeSucceeded, nil
	}

	if err := c.transition(p, PhaseDownloading); err != nil {
		return OutcomeFailed, err
	}

	artifact, err := c.downloader.Download(ctx, downloader.Request{
		URL:            update.Asset.URL,
		Headers:        c.HTTPHeaders(),
		UserAgent:      c.UserAgent(),
		ExpectedLength: update.Asset.Length,
	})
	if artifact != nil {
		artifacts = append(artifacts, artifact)
	}
	if p.CancelRequested() {
		return OutcomeCancelled, context.Canceled
	}
	if err != nil {
		return OutcomeFailed, newPhaseError(ErrDownload, PhaseDownloading, err)
	}

	if err := c.transition(p, PhaseVerifying); err != nil {
		return OutcomeFailed, err
	}

	if c.verifier != nil {
		err = c.verifier.Verify(ctx, artifact, update, downloader.Request{
			Headers:   c.HTTPHeaders(),
			UserAgent: c.UserAgent(),
		})
		if p.CancelRequested() {
			return OutcomeCancelled, context.Canceled
		}
		if err != nil {
			return OutcomeFailed, newPhaseError(ErrVerification, PhaseVerifying, err)
		}
	}

	plain, err := c.decrypter.Decrypt(ctx, artifact, c.credentialCopy())
	if plain != nil && plain != artifact {
		artifacts = append(artifacts, plain)
	}
	if p.CancelRequested() {
		return OutcomeCancelled, context.Canceled
	}
	if err != nil {
		return OutcomeFailed, newPhaseError(ErrDecryption, PhaseVerifying, err)
	}
	if update.Asset.Encrypted && plain == artifact {
		return OutcomeFailed, newPhaseError(ErrDecryption, PhaseVerifying, decrypt.ErrNotEncrypted)
	}

	if err := c.transition(p, PhaseInstalling); err != nil {
		return OutcomeFailed, err
	}

	c.notifyWillInstall(p, update)
	if p.CancelRequested() {
		return OutcomeCancelled, context.Canceled
	}

	if err := c.installer.Install(ctx, plain, update); err != nil {
		if p.CancelRequested() {
			return OutcomeCancelled, context.Canceled
		}
		return OutcomeFailed, newPhaseError(ErrInstall, PhaseInstalling, err)
	}

	logger.Infof("installed update %s", update)
	return OutcomeSucceeded, nil
}

func (c *Coordinator) transition(p *Process, next Phase) error {
	from := p.Phase()
	if err := p.advance(next); err != nil {
		return newPhaseError(ErrInvalidTransition, from, err)
	}
	log.Debugf("update process %s entered %s", p.ID(), next)
	return nil
}

func phaseKind(phase Phase) error {
	switch phase {
	case PhaseChecking, PhaseResolving:
		return ErrFetch
	case PhaseDownloading:
		return ErrDownload
	case PhaseVerifying:
		return ErrVerification
	case PhaseInstalling:
		return ErrInstall
	default:
		return ErrInvalidTransition
	}
}

func cleanupArtifacts(artifacts []*downloader.Artifact, logger *log.Entry) {
	for _, a := range artifacts {
		if err := a.Cleanup(); err != nil {
			logger.Warnf("failed to remove update artifact %s: %v", a.Path, err)
		}
	}
}
