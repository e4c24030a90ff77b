package updatemanager

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Start runs automatic update checks every check interval until Stop is called or ctx
// is done. The first check runs once the interval since the last check has elapsed.
func (c *Coordinator) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopCancel != nil {
		log.Errorf("update coordinator already started")
		return
	}
	if c.isStopped() {
		log.Errorf("update coordinator is stopped, not starting automatic checks")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel

	c.loopWg.Add(1)
	go c.checkLoop(ctx)
}

// Stop ends the automatic checks, cancels the active process and waits for it. No
// process can be started afterwards. It must not be called from a delegate hook.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.loopMu.Lock()
	cancel := c.loopCancel
	c.loopCancel = nil
	c.loopMu.Unlock()

	if cancel != nil {
		cancel()
		c.loopWg.Wait()
	}

	c.CancelActiveUpdateCheck()
	c.wg.Wait()
}

func (c *Coordinator) checkLoop(ctx context.Context) {
	defer c.loopWg.Done()

	timer := time.NewTimer(c.nextCheckDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		c.automaticCheck(ctx)
		timer.Reset(c.interval)
	}
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Coordinator) nextCheckDelay() time.Duration {
	last := c.LastUpdateCheck()
	if last.IsZero() {
		return 0
	}

	delay := c.interval - time.Since(last)
	if delay < 0 {
		return 0
	}
	log.Debugf("next automatic update check in %s", delay.Round(time.Second))
	return delay
}

func (c *Coordinator) automaticCheck(ctx context.Context) {
	p, err := c.StartUpdateCheck(ctx)
	switch {
	case errors.Is(err, ErrConcurrentUpdate):
		log.Infof("update process already running, skipping automatic check")
		return
	case errors.Is(err, ErrStopped):
		return
	case err != nil:
		log.Errorf("automatic update check failed to start: %v", err)
		return
	}

	log.Debugf("automatic update check started, process %s", p.ID())
	if err := p.Wait(ctx); err != nil {
		// loop is stopping, the process was cancelled with ctx
		<-p.Done()
	}
}
