package updatemanager

import (
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/appupdate/updatemanager/feed"
)

// Notifications run synchronously on the process goroutine. The delegate is looked up
// at every dispatch, so detaching it suppresses only later notifications.

func (c *Coordinator) notifyStart(p *Process) {
	c.dispatch(p, "start", func(d any) bool {
		h, ok := d.(ProcessStartHook)
		if ok {
			h.WillStartUpdateProcess(c, p)
		}
		return ok
	})
}

func (c *Coordinator) notifyEnd(p *Process) {
	c.dispatch(p, "end", func(d any) bool {
		h, ok := d.(ProcessEndHook)
		if ok {
			h.DidEndUpdateProcess(c, p)
		}
		return ok
	})
}

func (c *Coordinator) notifyUpdateFound(p *Process, u *feed.Update) {
	c.dispatch(p, "update found", func(d any) bool {
		h, ok := d.(UpdateFoundHook)
		if ok {
			h.DidFindValidUpdate(c, p, u)
		}
		return ok
	})
}

func (c *Coordinator) notifyNoUpdate(p *Process) {
	c.dispatch(p, "no update", func(d any) bool {
		h, ok := d.(NoUpdateFoundHook)
		if ok {
			h.DidNotFindUpdate(c, p)
		}
		return ok
	})
}

func (c *Coordinator) notifyWillInstall(p *Process, u *feed.Update) {
	c.dispatch(p, "will install", func(d any) bool {
		h, ok := d.(WillInstallHook)
		if ok {
			h.WillInstallUpdate(c, p, u)
		}
		return ok
	})
}

// dispatch calls deliver with the live delegate. A panicking hook is logged and the
// process carries on.
func (c *Coordinator) dispatch(p *Process, event string, deliver func(d any) bool) {
	d := c.registry.current()
	if d == nil {
		log.Tracef("no delegate attached, skipping %s notification of process %s", event, p.ID())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("delegate panicked in %s notification of process %s: %v\n%s", event, p.ID(), r, debug.Stack())
		}
	}()

	if !deliver(d) {
		log.Tracef("delegate does not handle %s notification", event)
	}
}
