// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package eventloop

import (
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/aremmell/sal/internal/evtypes"
	"github.com/aremmell/sal/internal/regtable"
	"github.com/aremmell/sal/log"
	"github.com/aremmell/sal/metrics"
)

// DefaultSyncInterval is the fallback wakeup period of the sync thread
// (spec.md §4.4's T_sync), used in addition to the condition-variable
// signal Register/Modify/Unregister raise so a drain still happens
// promptly even under spurious-wakeup loss.
const DefaultSyncInterval = 1 * time.Second

// SyncThread drains the registration table's deferred-change queue into
// the live table on every condition-variable signal (and at least once
// per sync interval), and delivers the out-of-band "removed" notification
// for descriptors a drain takes out of the live table, except those with
// no callback or that already received a terminal CLOSE/INVALID (see
// notifyRemoved) (spec.md §4.2/§4.4), grounded on balinternal.h's
// _bal_syncthread.
type SyncThread struct {
	table        *regtable.Table
	syncInterval time.Duration
	removalPool  *ants.Pool

	// pendingRemoval holds records whose out-of-band "removed" delivery
	// was deferred because the event thread still held InCallback for
	// them at the time of a drain (spec.md §5: "the sync thread must
	// observe in_callback == false before freeing; if set, the sync
	// thread defers the free to the next drain cycle"). Touched only by
	// the goroutine running drainOnce, so it needs no locking of its own.
	pendingRemoval []*regtable.Record

	stop chan struct{}
	done chan struct{}
}

// NewSyncThread creates a SyncThread bound to table. syncInterval <= 0
// selects DefaultSyncInterval. removalPool dispatches out-of-band
// "removed" callbacks so a slow caller callback can't stall the next
// drain cycle; a nil pool runs removal notifications synchronously.
func NewSyncThread(table *regtable.Table, syncInterval time.Duration, removalPool *ants.Pool) *SyncThread {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	return &SyncThread{
		table:        table,
		syncInterval: syncInterval,
		removalPool:  removalPool,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run executes the wait/drain loop until Stop is called.
func (st *SyncThread) Run() {
	defer close(st.done)

	wake := make(chan struct{})
	go st.waitLoop(wake)

	for {
		select {
		case <-st.stop:
			return
		case <-wake:
			st.drainOnce()
		case <-time.After(st.syncInterval):
			st.drainOnce()
		}
	}
}

// waitLoop blocks on the table's condition variable and forwards each
// signal as a wakeup, exiting once Stop closes st.stop.
func (st *SyncThread) waitLoop(wake chan<- struct{}) {
	for {
		st.table.Lock()
		for st.table.DeferredEmpty() {
			select {
			case <-st.stop:
				st.table.Unlock()
				return
			default:
			}
			st.table.Cond().Wait()
		}
		st.table.Unlock()

		select {
		case wake <- struct{}{}:
		case <-st.stop:
			return
		}
	}
}

// Stop signals the loop to exit and wakes the condition wait so waitLoop
// observes the signal promptly, then blocks until Run returns. It does
// not wait for waitLoop to exit.
func (st *SyncThread) Stop() {
	close(st.stop)
	st.table.Cond().Broadcast()
	<-st.done
}

func (st *SyncThread) drainOnce() {
	st.table.Lock()
	result := st.table.Drain()
	st.table.Unlock()

	removed := st.pendingRemoval
	st.pendingRemoval = nil
	removed = append(removed, result.Removed...)

	if len(result.Added) == 0 && len(removed) == 0 {
		return
	}
	metrics.Add(metrics.SyncDrainCycles, 1)
	metrics.Add(metrics.SyncAdded, uint64(len(result.Added)))
	metrics.Add(metrics.SyncRemoved, uint64(len(result.Removed)))

	for _, rec := range removed {
		st.notifyRemoved(rec)
	}
}

// notifyRemoved delivers the exactly-once out-of-band "removed" callback
// for rec (spec.md §4.2), observing two exclusions the spec requires:
//
//   - the unregister contract is an either/or — a terminal CLOSE or
//     INVALID delivery already told the caller teardown is complete, so
//     no out-of-band "removed" follows it (spec.md §4.2).
//   - the record must not be freed, nor its callback re-entered, while
//     the event thread's dispatch of an earlier event for the same
//     descriptor is still in flight (spec.md §5). InCallback.Begin() is
//     non-blocking (ExclusiveUnblockJob): if the event thread holds it,
//     this removal is deferred to the next drain cycle rather than
//     either blocking the sync thread or firing concurrently with the
//     in-flight callback.
func (st *SyncThread) notifyRemoved(rec *regtable.Record) {
	if rec.Callback == nil || rec.TerminalDelivered() {
		return
	}
	if !rec.InCallback.Begin() {
		st.pendingRemoval = append(st.pendingRemoval, rec)
		metrics.Add(metrics.RemovalNotificationsDeferred, 1)
		return
	}
	if !rec.MarkRemovalNotified() {
		rec.InCallback.End()
		return
	}

	deliver := func() {
		defer rec.InCallback.End()
		defer func() {
			if p := recover(); p != nil {
				log.Default.Errorf("eventloop: removal callback for descriptor %d panicked: %v", rec.Descriptor, p)
			}
		}()
		rec.Callback(rec.Descriptor, evtypes.EventRemoved, rec.UserCtx)
		metrics.Add(metrics.RemovalNotificationsSent, 1)
	}

	if st.removalPool == nil {
		deliver()
		return
	}
	if err := st.removalPool.Submit(deliver); err != nil {
		log.Default.Errorf("eventloop: submitting removal notification for descriptor %d: %v", rec.Descriptor, err)
		deliver()
	}
}
