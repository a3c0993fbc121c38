// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package eventloop implements the event thread and sync thread of
// spec.md §4.3/§4.4, grounded on balinternal.h's _bal_eventthread /
// _bal_syncthread pair and on the build/poll/dispatch shape of
// internal/poller's epoll loop, adapted from edge-triggered epoll_wait
// to level-triggered select(2).
package eventloop

import (
	"time"

	"github.com/aremmell/sal/internal/evtypes"
	"github.com/aremmell/sal/internal/pollsyscall"
	"github.com/aremmell/sal/internal/regtable"
	"github.com/aremmell/sal/internal/sockprobe"
	"github.com/aremmell/sal/log"
	"github.com/aremmell/sal/metrics"
)

// DefaultPollInterval is the select(2) timeout used between readiness
// polls when descriptors are registered (spec.md §4.3's T_poll).
const DefaultPollInterval = 100 * time.Millisecond

// EventThread repeatedly snapshots the live registration table, polls it
// with select(2), and dispatches ready descriptors to their callbacks in
// BUILD -> POLL -> DISPATCH order (spec.md §4.3). One descriptor's
// callback never runs concurrently with itself (spec.md I4/G1): the
// dispatch step holds Record.InCallback for the duration of the call.
type EventThread struct {
	table        *regtable.Table
	pollInterval time.Duration
	stop         chan struct{}
	done         chan struct{}
}

// NewEventThread creates an EventThread bound to table. pollInterval <= 0
// selects DefaultPollInterval.
func NewEventThread(table *regtable.Table, pollInterval time.Duration) *EventThread {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &EventThread{
		table:        table,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run executes the BUILD/POLL/DISPATCH loop until Stop is called. Run
// blocks the calling goroutine; callers invoke it via `go et.Run()`.
func (et *EventThread) Run() {
	defer close(et.done)

	var readers, writers, errs pollsyscall.FDSet
	for {
		select {
		case <-et.stop:
			return
		default:
		}

		et.table.Lock()
		maxFD := et.table.Snapshot(&readers, &writers, &errs)
		et.table.Unlock()

		metrics.Add(metrics.SelectCalls, 1)
		result, err := pollsyscall.Select(maxFD, &readers, &writers, &errs, et.pollInterval)
		if err != nil {
			log.Default.Errorf("eventloop: select failed: %v", err)
			continue
		}

		ready := et.collectReady(maxFD, result)
		if len(ready) == 0 {
			metrics.Add(metrics.SelectTimeouts, 1)
			continue
		}
		metrics.Add(metrics.SelectEvents, uint64(len(ready)))
		et.dispatch(ready)
	}
}

// Stop signals the loop to exit and blocks until the current iteration
// finishes, bounding shutdown latency to roughly one poll interval.
func (et *EventThread) Stop() {
	close(et.stop)
	<-et.done
}

type readyDescriptor struct {
	rec   *regtable.Record
	event evtypes.EventMask
}

// collectReady maps raw select(2) readiness back onto registered records
// and decodes it into the public event taxonomy (spec.md §4.1): a listening
// socket's readability is ACCEPT, a connect-pending socket's writability is
// CONNECT, and so on.
func (et *EventThread) collectReady(maxFD evtypes.Descriptor, result *pollsyscall.Result) []readyDescriptor {
	if maxFD == evtypes.InvalidDescriptor {
		return nil
	}

	et.table.Lock()
	defer et.table.Unlock()

	var out []readyDescriptor
	for d := evtypes.Descriptor(0); d <= maxFD; d++ {
		readable, writable, errored := result.Ready(d)
		if !readable && !writable && !errored {
			continue
		}
		rec, ok := et.table.Live(d)
		if !ok {
			continue
		}
		mask := rec.Mask()
		if errored {
			out = append(out, readyDescriptor{rec, decodeErrorEvent(d, rec, mask)})
			continue
		}
		if readable {
			if ev, ok := decodeReadEvent(d, rec, mask); ok {
				out = append(out, readyDescriptor{rec, ev})
			}
		}
		if writable {
			if ev, ok := decodeWriteEvent(d, rec, mask); ok {
				out = append(out, readyDescriptor{rec, ev})
			}
		}
	}
	return out
}

// decodeErrorEvent implements spec.md §4.3's ERROR-vs-INVALID split: a
// descriptor that no longer names a live socket (SO_TYPE probe fails) is
// reported as INVALID rather than ERROR, and a connect-pending descriptor
// that lands on the error set is CONN_FAIL rather than a bare ERROR
// (clearing ConnectPending, as decodeWriteEvent does).
// Snapshot only ever puts a descriptor in the error set when its mask
// contains ERROR or CONN_FAIL (spec.md §4.2), so no further mask gate is
// needed here. InvalidObserved latches so the sync thread's out-of-band
// "removed" notification knows a terminal event already reached the
// caller (spec.md §4.2).
func decodeErrorEvent(d evtypes.Descriptor, rec *regtable.Record, mask evtypes.EventMask) evtypes.EventMask {
	if !sockprobe.IsDescriptorUsable(d) {
		rec.InvalidObserved.Store(true)
		return evtypes.EventInvalid
	}
	if rec.ConnectPending.Load() && mask&evtypes.EventConnect != 0 {
		rec.ConnectPending.Store(false)
		return evtypes.EventConnFail
	}
	return evtypes.EventError
}

// decodeReadEvent implements spec.md §4.3's READ-vs-ACCEPT-vs-CLOSE split.
// A listening socket's readability is always ACCEPT. Otherwise delivery
// requires m & READ, per spec.md's literal decode rule ("Else if d in
// read set AND m & READ: ..."); a descriptor readable only because it
// carries some other bit (e.g. CONNECT) gets no read-branch delivery. A
// zero-byte MSG_PEEK then disambiguates an orderly remote shutdown
// (CLOSE) from ordinary readability (READ), latching
// ClosedCircuitObserved so a later drain of the same buffered data
// doesn't re-probe. The bool result reports whether an event was
// decoded at all; false means skip this descriptor for this cycle.
func decodeReadEvent(d evtypes.Descriptor, rec *regtable.Record, mask evtypes.EventMask) (evtypes.EventMask, bool) {
	if rec.Listening.Load() && mask&evtypes.EventAccept != 0 {
		return evtypes.EventAccept, true
	}
	if mask&evtypes.EventRead == 0 {
		return 0, false
	}
	if rec.ClosedCircuitObserved.Load() {
		return evtypes.EventClose, true
	}
	if closed, err := sockprobe.PeekOrderlyShutdown(d); err == nil && closed {
		rec.ClosedCircuitObserved.Store(true)
		return evtypes.EventClose, true
	}
	return evtypes.EventRead, true
}

// decodeWriteEvent implements spec.md §4.3's WRITE-vs-CONNECT split: a
// connect-pending descriptor's writability is resolved via SO_ERROR —
// zero means the connect succeeded (CONNECT), nonzero means it failed
// (CONN_FAIL) — and ConnectPending is cleared either way since the
// pending connect has now resolved. Absent a pending connect, delivery
// requires m & WRITE ("Else if d in write set AND m & WRITE: deliver
// WRITE"); a descriptor that's merely always-writable but never asked
// for WRITE (e.g. CONNECT-only, post-resolution) gets no delivery. The
// bool result reports whether an event was decoded at all.
func decodeWriteEvent(d evtypes.Descriptor, rec *regtable.Record, mask evtypes.EventMask) (evtypes.EventMask, bool) {
	if rec.ConnectPending.Load() && mask&evtypes.EventConnect != 0 {
		rec.ConnectPending.Store(false)
		if errno, err := sockprobe.SocketError(d); err != nil || errno != 0 {
			return evtypes.EventConnFail, true
		}
		return evtypes.EventConnect, true
	}
	if mask&evtypes.EventWrite == 0 {
		return 0, false
	}
	return evtypes.EventWrite, true
}

// dispatch invokes each ready descriptor's callback synchronously on the
// event thread, holding the descriptor's non-reentrancy guard for the
// duration of the call. A descriptor whose guard is already held (the
// previous callback hasn't returned, or it's mid-removal) is skipped for
// this cycle rather than blocked on, so one slow callback can't stall
// delivery to unrelated descriptors.
func (et *EventThread) dispatch(ready []readyDescriptor) {
	for _, r := range ready {
		if !r.rec.InCallback.Begin() {
			metrics.Add(metrics.CallbacksSkippedBusy, 1)
			continue
		}
		cb := r.rec.Callback
		d := r.rec.Descriptor
		ctx := r.rec.UserCtx
		ev := r.event
		func() {
			defer r.rec.InCallback.End()
			if cb == nil {
				return
			}
			metrics.Add(metrics.CallbacksDispatched, 1)
			cb(d, ev, ctx)
		}()
	}
}
