package updatemanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netbirdio/appupdate/updatemanager/feed"
)

// Process is one check, resolve and optional download, verify, install attempt.
// All accessors are safe for concurrent use.
type Process struct {
	id        string
	kind      CheckKind
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu              sync.Mutex
	phase           Phase
	outcome         Outcome
	err             error
	update          *feed.Update
	endedAt         time.Time
	cancelRequested bool
}

func newProcess(id string, kind CheckKind, cancel context.CancelFunc) *Process {
	return &Process{
		id:        id,
		kind:      kind,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (p *Process) ID() string {
	return p.id
}

func (p *Process) Kind() CheckKind {
	return p.kind
}

func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// EndedAt is zero until the process concluded
func (p *Process) EndedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endedAt
}

func (p *Process) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Process) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Err returns the *PhaseError of a failed process, the context error of a cancelled one
// and nil otherwise
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Update returns the resolved update, nil when none was found (yet)
func (p *Process) Update() *feed.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update
}

// CancelRequested reports whether the host asked to cancel this process
func (p *Process) CancelRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelRequested
}

// Done is closed after the end notification returned and the coordinator is idle again
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process is done or ctx expires
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("Process[ID=%s, Kind=%s, Phase=%s, Outcome=%s]", p.id, p.kind, p.phase, p.outcome)
}

// advance moves the process to next. Moving backward, staying, or leaving a concluded
// process is rejected.
func (p *Process) advance(next Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase == PhaseConcluded || next <= p.phase || next == PhaseConcluded {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.phase, next)
	}
	p.phase = next
	return nil
}

func (p *Process) setUpdate(u *feed.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update = u
}

// conclude records the outcome. A cancel request turns any outcome into
// OutcomeCancelled. It returns false when the process was already concluded.
func (p *Process) conclude(outcome Outcome, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase == PhaseConcluded {
		return false
	}

	if p.cancelRequested {
		outcome = OutcomeCancelled
		err = context.Canceled
	}

	p.phase = PhaseConcluded
	p.outcome = outcome
	p.err = err
	p.endedAt = time.Now()
	return true
}

// requestCancel flags the process and cancels its context. It returns false for a
// concluded process.
func (p *Process) requestCancel() bool {
	p.mu.Lock()
	if p.phase == PhaseConcluded || p.cancelRequested {
		concluded := p.phase == PhaseConcluded
		p.mu.Unlock()
		return !concluded
	}
	p.cancelRequested = true
	p.mu.Unlock()

	p.cancel()
	return true
}

func (p *Process) finish() {
	close(p.done)
}
