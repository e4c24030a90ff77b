package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/appupdate/shared/metrics"
	"github.com/netbirdio/appupdate/updatemanager"
	"github.com/netbirdio/appupdate/updatemanager/feed"
)

var (
	infoOnly     bool
	loop         bool
	checkTimeout time.Duration
	metricsAddr  string

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check for an update and install it",
		Long: `Run one update process: fetch the feed, pick the newest applicable release,
download, verify, decrypt and install it. With --loop the check repeats every
configured check interval until interrupted.`,
		RunE: runCheck,
	}
)

func init() {
	checkCmd.Flags().BoolVar(&infoOnly, "info-only", false, "only report whether an update is available")
	checkCmd.Flags().BoolVar(&loop, "loop", false, "keep running automatic checks until interrupted")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 0, "cancel a single check after this duration, 0 disables the timeout")
	checkCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while looping, e.g. 127.0.0.1:9090")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := ReadConfig(configPath)
	if err != nil {
		return err
	}

	var (
		metricsServer *metrics.Metrics
		reg           prometheus.Registerer
	)
	if loop && metricsAddr != "" {
		metricsServer = metrics.NewServer(metricsAddr, "")
		reg = metricsServer.Registry
	}

	coordinator, err := newCoordinator(cfg, reg)
	if err != nil {
		return fmt.Errorf("create update coordinator: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	SetupCloseHandler(ctx, cancel)

	delegate := &logDelegate{cmd: cmd}
	coordinator.SetDelegate(updatemanager.WeakDelegate(delegate))
	defer runtime.KeepAlive(delegate)

	if loop {
		return runLoop(ctx, coordinator, metricsServer)
	}

	if checkTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, checkTimeout)
		defer timeoutCancel()
	}

	return runOnce(ctx, coordinator)
}

func runOnce(ctx context.Context, c *updatemanager.Coordinator) error {
	var (
		p   *updatemanager.Process
		err error
	)
	if infoOnly {
		p, err = c.StartUpdateInformationCheck(ctx)
	} else {
		p, err = c.StartUpdateCheck(ctx)
	}
	if err != nil {
		return fmt.Errorf("start update check: %w", err)
	}

	<-p.Done()

	switch p.Outcome() {
	case updatemanager.OutcomeFailed:
		return fmt.Errorf("update process failed: %w", p.Err())
	case updatemanager.OutcomeCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("update check timed out after %s", checkTimeout)
		}
	}
	return nil
}

func runLoop(ctx context.Context, c *updatemanager.Coordinator, m *metrics.Metrics) error {
	if m != nil {
		m.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Shutdown(shutdownCtx); err != nil {
				log.Warnf("failed to stop metrics server: %v", err)
			}
		}()
	}

	c.Start(ctx)
	<-ctx.Done()
	c.Stop()
	return nil
}

// logDelegate reports every stage of an update process
type logDelegate struct {
	cmd *cobra.Command
}

func (d *logDelegate) WillStartUpdateProcess(_ *updatemanager.Coordinator, p *updatemanager.Process) {
	log.Debugf("update process %s started (%s)", p.ID(), p.Kind())
}

func (d *logDelegate) DidFindValidUpdate(_ *updatemanager.Coordinator, _ *updatemanager.Process, u *feed.Update) {
	if u.Critical {
		d.cmd.Printf("critical update available: %s\n", u)
	} else {
		d.cmd.Printf("update available: %s\n", u)
	}
	if u.ReleaseNotesURL != "" {
		d.cmd.Printf("release notes: %s\n", u.ReleaseNotesURL)
	}
}

func (d *logDelegate) DidNotFindUpdate(_ *updatemanager.Coordinator, _ *updatemanager.Process) {
	d.cmd.Println("no update available")
}

func (d *logDelegate) WillInstallUpdate(_ *updatemanager.Coordinator, _ *updatemanager.Process, u *feed.Update) {
	d.cmd.Printf("installing %s\n", u.Version)
}

func (d *logDelegate) DidEndUpdateProcess(_ *updatemanager.Coordinator, p *updatemanager.Process) {
	switch p.Outcome() {
	case updatemanager.OutcomeFailed:
		d.cmd.Printf("update process failed: %v\n", p.Err())
	default:
		d.cmd.Printf("update process %s\n", p.Outcome())
	}
}
