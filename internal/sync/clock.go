// ABOUTME: Projection of the remote clock from a local clock plus the active offset
// ABOUTME: Holds exactly one accepted offset and answers "remote now" without network access
package sync

import (
	"sync/atomic"
	"time"
)

// LocalClock is the free-running local time source
type LocalClock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock of this process
func SystemClock() LocalClock { return systemClock{} }

// Projector owns the active offset and projects remote time from local time.
//
// Between accepted offsets the projection moves exactly with the local
// clock. Readers never block writers: the active offset is swapped
// atomically, so a reader sees either the old or the new offset in full.
type Projector struct {
	clock  LocalClock
	active atomic.Pointer[Offset]
}

// Status is a point-in-time view of the projector for display purposes
type Status struct {
	Synced bool
	Stale  bool
	Offset Offset
	Age    time.Duration
}

// NewProjector creates an unsynced projector. A nil clock uses the system clock.
func NewProjector(clock LocalClock) *Projector {
	if clock == nil {
		clock = SystemClock()
	}
	return &Projector{clock: clock}
}

// Accept makes o the active offset, superseding the previous one
func (p *Projector) Accept(o Offset) {
	p.active.Store(&o)
}

// Reset drops the active offset; the projector reports unsynced afterwards
func (p *Projector) Reset() {
	p.active.Store(nil)
}

// Offset returns the active offset, if any
func (p *Projector) Offset() (Offset, bool) {
	o := p.active.Load()
	if o == nil {
		return Offset{}, false
	}
	return *o, true
}

// Now returns the projected remote time. ok is false until an offset has
// been accepted.
func (p *Projector) Now() (t time.Time, ok bool) {
	o := p.active.Load()
	if o == nil {
		return time.Time{}, false
	}
	return p.clock.Now().Add(o.Value), true
}

// LocalNow returns the local clock reading the projection is based on
func (p *Projector) LocalNow() time.Time {
	return p.clock.Now()
}

// ToLocal converts a remote instant into the local instant at which the
// projection will reach it
func (p *Projector) ToLocal(remote time.Time) (time.Time, bool) {
	o := p.active.Load()
	if o == nil {
		return time.Time{}, false
	}
	return remote.Add(-o.Value), true
}

// Age returns how long ago the active offset was estimated, or zero when unsynced
func (p *Projector) Age() time.Duration {
	o := p.active.Load()
	if o == nil {
		return 0
	}
	return p.clock.Now().Sub(o.EstimatedAt)
}

// Status reports the sync state. The offset is stale once it is older than
// staleAfter; a staleAfter <= 0 never marks it stale.
func (p *Projector) Status(staleAfter time.Duration) Status {
	o := p.active.Load()
	if o == nil {
		return Status{}
	}
	age := p.clock.Now().Sub(o.EstimatedAt)
	return Status{
		Synced: true,
		Stale:  staleAfter > 0 && age > staleAfter,
		Offset: *o,
		Age:    age,
	}
}
