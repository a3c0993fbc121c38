// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package regtable implements the registration table of spec.md §4.2: a
// live table polled by the event thread, a deferred-change queue drained
// by the sync thread, and the mutex/condition variable guarding both.
package regtable

import (
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/aremmell/sal/internal/evtypes"
	"github.com/aremmell/sal/internal/keyedlist"
	"github.com/aremmell/sal/internal/pollsyscall"
	"github.com/aremmell/sal/internal/safejob"
)

// Sentinel errors. The root package translates these into its ErrorCode
// taxonomy; regtable stays free of that dependency to avoid an import
// cycle (package sal imports regtable).
var (
	ErrInvalidMask    = errors.New("regtable: event mask is empty or contains unknown bits")
	ErrBadDescriptor  = errors.New("regtable: invalid descriptor")
	ErrAlreadyPending = errors.New("regtable: descriptor already live or has a pending registration")
	ErrNotRegistered  = errors.New("regtable: descriptor is not registered")
)

// Record is a socket registration: descriptor, interest mask, callback,
// user context, and the per-socket dispatch-state flags of spec.md §3.
type Record struct {
	Descriptor evtypes.Descriptor
	Callback   evtypes.Callback
	UserCtx    interface{}

	mask atomic.Uint32 // interest_mask, mutated in place by Modify

	Listening             atomic.Bool
	ConnectPending        atomic.Bool
	ClosedCircuitObserved atomic.Bool
	InvalidObserved       atomic.Bool

	// InCallback enforces spec.md §5's per-descriptor non-reentrancy: the
	// event thread holds it for the duration of a callback invocation.
	// It is the non-blocking ExclusiveUnblockJob variant, not
	// ExclusiveBlockJob: spec.md §5 requires the sync thread to
	// *non-blockingly observe* `in_callback == false` before freeing a
	// record and defer to the next drain cycle if it's set, not block
	// waiting for the in-flight callback to finish.
	InCallback safejob.ExclusiveUnblockJob

	// removalNotified guards the out-of-band "removed" delivery so it
	// fires exactly once (spec.md §4.2).
	removalNotified atomic.Bool
}

// TerminalDelivered reports whether a final CLOSE or INVALID event has
// already been delivered for this record. spec.md §4.2's unregister
// contract is an either/or: a terminal CLOSE/INVALID delivery already
// tells the caller teardown is complete, so the sync thread's out-of-band
// "removed" notification must not also fire.
func (r *Record) TerminalDelivered() bool {
	return r.ClosedCircuitObserved.Load() || r.InvalidObserved.Load()
}

// Mask returns the record's current effective interest mask.
func (r *Record) Mask() evtypes.EventMask {
	return evtypes.EventMask(r.mask.Load())
}

// SetMask atomically updates the record's interest mask. Effective no
// later than the next poll snapshot (spec.md G4: by the second).
func (r *Record) SetMask(m evtypes.EventMask) {
	r.mask.Store(uint32(m))
}

// MarkRemovalNotified reports whether this call is the first to claim the
// out-of-band "removed" notification for the record; subsequent calls
// return false.
func (r *Record) MarkRemovalNotified() bool {
	return r.removalNotified.CAS(false, true)
}

type opKind uint8

const (
	opAdd opKind = iota
	opRemove
)

type deferredEntry struct {
	kind opKind
	rec  *Record
}

// Table is the composite { mutex, live, deferred, sync_cond } of
// spec.md §3/§4.2.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	live     *keyedlist.List[evtypes.Descriptor, *Record]
	deferred *keyedlist.List[evtypes.Descriptor, *deferredEntry]
}

// New creates an empty Table.
func New() *Table {
	t := &Table{
		live:     keyedlist.New[evtypes.Descriptor, *Record](),
		deferred: keyedlist.New[evtypes.Descriptor, *deferredEntry](),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Register validates and enqueues an ADD, returning the freshly allocated
// Record. It signals the sync condition so the sync thread wakes promptly.
func (t *Table) Register(d evtypes.Descriptor, mask evtypes.EventMask, cb evtypes.Callback, userCtx interface{}) (*Record, error) {
	if d == evtypes.InvalidDescriptor {
		return nil, ErrBadDescriptor
	}
	if !mask.Valid() {
		return nil, ErrInvalidMask
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live.Find(d); ok {
		return nil, ErrAlreadyPending
	}
	if entry, ok := t.deferred.Find(d); ok && entry.kind == opAdd {
		return nil, ErrAlreadyPending
	}

	rec := &Record{Descriptor: d, Callback: cb, UserCtx: userCtx}
	rec.SetMask(mask)
	applyStateFlags(rec, mask)
	t.deferred.Add(d, &deferredEntry{kind: opAdd, rec: rec})
	t.cond.Signal()
	return rec, nil
}

// applyStateFlags derives a record's Listening/ConnectPending flags from
// the interest mask a caller registered: asking for ACCEPT declares the
// descriptor a listening socket, asking for CONNECT declares a pending
// non-blocking connect, matching balinternal.h's _bal_haspendingconnect
// contract (the caller, not the library, knows which syscall it issued).
func applyStateFlags(rec *Record, mask evtypes.EventMask) {
	if mask&evtypes.EventAccept != 0 {
		rec.Listening.Store(true)
	}
	if mask&evtypes.EventConnect != 0 {
		rec.ConnectPending.Store(true)
	}
}

// Modify atomically updates a live record's interest mask, or — if the
// descriptor isn't live yet — rewrites the still-queued ADD in place
// (spec.md B5: coalesces, no second live entry is ever created, since the
// deferred ADD and the eventual live entry share the same *Record).
func (t *Table) Modify(d evtypes.Descriptor, mask evtypes.EventMask) error {
	if !mask.Valid() {
		return ErrInvalidMask
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.live.Find(d); ok {
		rec.SetMask(mask)
		applyStateFlags(rec, mask)
		return nil
	}
	if entry, ok := t.deferred.Find(d); ok && entry.kind == opAdd {
		entry.rec.SetMask(mask)
		applyStateFlags(entry.rec, mask)
		return nil
	}
	return ErrNotRegistered
}

// Unregister enqueues a REMOVE. Succeeds whether the descriptor is
// currently live or only queued; ordering in the deferred FIFO guarantees
// a queued ADD followed by an immediate REMOVE nets out to "never lived".
func (t *Table) Unregister(d evtypes.Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, live := t.live.Find(d)
	if !live {
		entry, queued := t.deferred.Find(d)
		if !queued {
			return ErrNotRegistered
		}
		rec = entry.rec
	}
	t.deferred.Add(d, &deferredEntry{kind: opRemove, rec: rec})
	t.cond.Signal()
	return nil
}

// Snapshot clears and repopulates the three readiness sets from the live
// table's current effective masks, returning the largest descriptor seen
// (or InvalidDescriptor if the table is empty). Called only by the event
// thread, which must hold Lock/Unlock around the call (spec.md I3).
func (t *Table) Snapshot(readers, writers, errs *pollsyscall.FDSet) evtypes.Descriptor {
	readers.Reset()
	writers.Reset()
	errs.Reset()
	maxFD := evtypes.InvalidDescriptor
	t.live.Iterate(func(d evtypes.Descriptor, rec *Record) bool {
		m := rec.Mask()
		if m&(evtypes.EventRead|evtypes.EventAccept|evtypes.EventClose) != 0 {
			readers.Add(d)
		}
		if m&(evtypes.EventWrite|evtypes.EventConnect) != 0 {
			writers.Add(d)
		}
		if m&(evtypes.EventError|evtypes.EventConnFail) != 0 {
			errs.Add(d)
		}
		if d > maxFD {
			maxFD = d
		}
		return true
	})
	return maxFD
}

// Lock/Unlock/Cond expose the table's mutex and condition variable to the
// event and sync threads, which coordinate snapshot/drain cycles through
// them directly rather than through higher-level wrappers, matching
// balinternal.h's shared-mutex design.
func (t *Table) Lock()         { t.mu.Lock() }
func (t *Table) Unlock()       { t.mu.Unlock() }
func (t *Table) Cond() *sync.Cond { return t.cond }

// Live looks up a live record by descriptor. Used by the event thread
// while already holding the lock during Snapshot/dispatch setup.
func (t *Table) Live(d evtypes.Descriptor) (*Record, bool) {
	return t.live.Find(d)
}

// DrainResult summarizes one sync-thread drain cycle, for metrics.
type DrainResult struct {
	Added   []*Record
	Removed []*Record
}

// Drain moves every queued deferred operation into the live table,
// returning the records added and removed so the caller (the sync thread)
// can deliver out-of-band "removed" notifications outside the lock.
// Caller must hold the lock.
func (t *Table) Drain() DrainResult {
	var result DrainResult
	t.deferred.Iterate(func(d evtypes.Descriptor, entry *deferredEntry) bool {
		switch entry.kind {
		case opAdd:
			t.live.Add(d, entry.rec)
			result.Added = append(result.Added, entry.rec)
		case opRemove:
			if rec, ok := t.live.Remove(d); ok {
				result.Removed = append(result.Removed, rec)
			} else {
				// Not live: a second REMOVE queued for a descriptor an
				// earlier REMOVE in this drain already took out. (An
				// ADD/REMOVE pair queued back to back goes through the
				// branch above: its ADD is applied first.)
				result.Removed = append(result.Removed, entry.rec)
			}
		}
		return true
	})
	t.deferred.RemoveAll()
	return result
}

// DeferredEmpty reports whether the deferred queue currently has no
// pending operations. Caller must hold the lock.
func (t *Table) DeferredEmpty() bool {
	return t.deferred.Empty()
}
