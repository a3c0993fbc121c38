//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package metrics provides runtime monitoring data for the event dispatcher,
// such as select(2) call rates and registration-table churn, useful for
// tuning poll/sync intervals.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// SelectCalls counts invocations of the select(2) readiness poll.
	SelectCalls = iota
	// SelectTimeouts counts poll iterations that produced no event
	// delivery: the poll interval elapsed, or the reported readiness
	// decoded to no requested event.
	SelectTimeouts
	// SelectEvents counts the event deliveries decoded from select(2)
	// readiness across all calls (one descriptor can yield more than one).
	SelectEvents
	// SelectEINTR counts select(2) calls retried after EINTR.
	SelectEINTR
	// CallbacksDispatched counts event callbacks invoked by the event thread.
	CallbacksDispatched
	// CallbacksSkippedBusy counts callbacks skipped because the descriptor's
	// non-reentrancy guard was already held (spec §5).
	CallbacksSkippedBusy

	// RegisterCalls counts calls to Register.
	RegisterCalls
	// RegisterRejected counts Register calls rejected by validation.
	RegisterRejected
	// ModifyCalls counts calls to Modify.
	ModifyCalls
	// UnregisterCalls counts calls to Unregister.
	UnregisterCalls

	// SyncDrainCycles counts sync-thread drain cycles.
	SyncDrainCycles
	// SyncAdded counts descriptors moved from deferred to live by a drain.
	SyncAdded
	// SyncRemoved counts descriptors removed from live (or dropped before
	// going live) by a drain.
	SyncRemoved
	// RemovalNotificationsSent counts out-of-band "removed" callbacks
	// delivered.
	RemovalNotificationsSent
	// RemovalNotificationsDeferred counts out-of-band "removed" callbacks
	// postponed to a later drain cycle because the event thread still
	// held the descriptor's non-reentrancy guard (spec §5).
	RemovalNotificationsDeferred

	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	newer := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = newer[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	fmt.Println("######### dispatcher metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showPollMetrics(m)
	showRegistrationMetrics(m)
	fmt.Printf("\n")
}

func showPollMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# POLL - number of select(2) calls", m[SelectCalls])
	fmt.Printf("%-59s: %d\n", "# POLL - number of select(2) timeouts", m[SelectTimeouts])
	fmt.Printf("%-59s: %d\n", "# POLL - number of select(2) EINTR retries", m[SelectEINTR])
	fmt.Printf("%-59s: %d\n", "# POLL - total ready descriptors reported", m[SelectEvents])
	fmt.Printf("%-59s: %d\n", "# POLL - callbacks dispatched", m[CallbacksDispatched])
	fmt.Printf("%-59s: %d\n", "# POLL - callbacks skipped (busy)", m[CallbacksSkippedBusy])
	if m[SelectCalls] > 0 {
		fmt.Printf("%-59s: %.2f\n", "# POLL - average ready descriptors per call",
			float32(m[SelectEvents])/float32(m[SelectCalls]))
	}
}

func showRegistrationMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# REG - number of Register calls", m[RegisterCalls])
	fmt.Printf("%-59s: %d\n", "# REG - number of Register calls rejected", m[RegisterRejected])
	fmt.Printf("%-59s: %d\n", "# REG - number of Modify calls", m[ModifyCalls])
	fmt.Printf("%-59s: %d\n", "# REG - number of Unregister calls", m[UnregisterCalls])
	fmt.Printf("%-59s: %d\n", "# REG - number of sync-thread drain cycles", m[SyncDrainCycles])
	fmt.Printf("%-59s: %d\n", "# REG - descriptors added by drain", m[SyncAdded])
	fmt.Printf("%-59s: %d\n", "# REG - descriptors removed by drain", m[SyncRemoved])
	fmt.Printf("%-59s: %d\n", "# REG - out-of-band removal notifications sent", m[RemovalNotificationsSent])
	fmt.Printf("%-59s: %d\n", "# REG - out-of-band removal notifications deferred", m[RemovalNotificationsDeferred])
}
