package updatemanager

import (
	"sync"
	"weak"

	"github.com/netbirdio/appupdate/updatemanager/feed"
)

// DelegateRef resolves the host delegate. Delegate returns nil once the delegate is gone.
type DelegateRef interface {
	Delegate() any
}

type weakDelegate[T any] struct {
	ptr weak.Pointer[T]
}

func (w weakDelegate[T]) Delegate() any {
	if d := w.ptr.Value(); d != nil {
		return d
	}
	return nil
}

// WeakDelegate references d without keeping it alive. The host owns d; once it is
// collected notifications are skipped.
func WeakDelegate[T any](d *T) DelegateRef {
	if d == nil {
		return nil
	}
	return weakDelegate[T]{ptr: weak.Make(d)}
}

// ProcessStartHook is notified once per process before any collaborator runs
type ProcessStartHook interface {
	WillStartUpdateProcess(c *Coordinator, p *Process)
}

// ProcessEndHook is notified once per process after it concluded, whatever the outcome
type ProcessEndHook interface {
	DidEndUpdateProcess(c *Coordinator, p *Process)
}

type UpdateFoundHook interface {
	DidFindValidUpdate(c *Coordinator, p *Process, update *feed.Update)
}

type NoUpdateFoundHook interface {
	DidNotFindUpdate(c *Coordinator, p *Process)
}

type WillInstallHook interface {
	WillInstallUpdate(c *Coordinator, p *Process, update *feed.Update)
}

// NopDelegate implements every hook as a no-op. Embed it to override only some hooks.
type NopDelegate struct{}

func (NopDelegate) WillStartUpdateProcess(*Coordinator, *Process)           {}
func (NopDelegate) DidEndUpdateProcess(*Coordinator, *Process)              {}
func (NopDelegate) DidFindValidUpdate(*Coordinator, *Process, *feed.Update) {}
func (NopDelegate) DidNotFindUpdate(*Coordinator, *Process)                 {}
func (NopDelegate) WillInstallUpdate(*Coordinator, *Process, *feed.Update)  {}

// registry holds zero or one delegate reference
type registry struct {
	mu  sync.RWMutex
	ref DelegateRef
}

func (r *registry) set(ref DelegateRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref = ref
}

func (r *registry) current() any {
	r.mu.RLock()
	ref := r.ref
	r.mu.RUnlock()

	if ref == nil {
		return nil
	}
	return ref.Delegate()
}
