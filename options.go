//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package sal

import "time"

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultSyncInterval = 1 * time.Second
	defaultJoinTimeout  = 5 * time.Second
	defaultRemovalPool  = 0 // meaning unbounded, matching ants' maxRoutines=0 convention.
)

// Option configures a Context at Init time.
type Option struct {
	f func(*options)
}

type options struct {
	pollInterval   time.Duration
	syncInterval   time.Duration
	joinTimeout    time.Duration
	removalPool    int
	selfLogEnabled bool
}

func (o *options) setDefault() {
	o.pollInterval = defaultPollInterval
	o.syncInterval = defaultSyncInterval
	o.joinTimeout = defaultJoinTimeout
	o.removalPool = defaultRemovalPool
}

// WithPollInterval sets the event thread's select(2) timeout (spec.md
// §4.3's T_poll). Also bounds the latency of a Modify/Unregister taking
// visible effect on the poll side, and Cleanup's worst-case shutdown
// latency for the event thread.
func WithPollInterval(d time.Duration) Option {
	return Option{func(op *options) { op.pollInterval = d }}
}

// WithSyncInterval sets the sync thread's fallback wakeup period (spec.md
// §4.4's T_sync), used in addition to the condition-variable signal that
// Register/Modify/Unregister raise.
func WithSyncInterval(d time.Duration) Option {
	return Option{func(op *options) { op.syncInterval = d }}
}

// WithJoinTimeout bounds how long Cleanup waits for the event and sync
// threads to exit before giving up and returning ErrInternal.
func WithJoinTimeout(d time.Duration) Option {
	return Option{func(op *options) { op.joinTimeout = d }}
}

// WithRemovalPoolSize bounds the goroutine pool used to deliver
// out-of-band "removed" notifications (spec.md §4.2). size <= 0 means
// unbounded, matching ants' own convention.
func WithRemovalPoolSize(size int) Option {
	return Option{func(op *options) { op.removalPool = size }}
}

// WithSelfLogging enables the library's internal diagnostic logging
// (BAL_SELFLOG in the original C implementation) via log.Default.
func WithSelfLogging(enabled bool) Option {
	return Option{func(op *options) { op.selfLogEnabled = enabled }}
}
