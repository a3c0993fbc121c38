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

package sal

import (
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"github.com/aremmell/sal/internal/eventloop"
	"github.com/aremmell/sal/internal/regtable"
	"github.com/aremmell/sal/log"
	"github.com/aremmell/sal/metrics"
)

// Context is one instance of the library's asynchronous event system: a
// registration table, an event thread polling it, and a sync thread
// draining deferred mutations into it (spec.md §4). defaultContext is the
// process-wide instance backing the package-level functions. newContext,
// init and cleanup are unexported, so additional instances can only be
// created from inside this package (the package's own tests do so).
type Context struct {
	opts options

	table       *regtable.Table
	eventThread *eventloop.EventThread
	syncThread  *eventloop.SyncThread
	removalPool *ants.Pool
	initialized atomic.Bool
}

var defaultContext = newContext()

func newContext() *Context {
	return &Context{}
}

// init brings the async event system up: allocates the registration
// table, starts the event and sync threads, and marks the context
// initialized. Returns ErrDupeInit if already initialized.
func (c *Context) init(opts ...Option) error {
	if !c.initialized.CAS(false, true) {
		return fail(ErrDupeInit, nil)
	}

	var o options
	o.setDefault()
	for _, opt := range opts {
		opt.f(&o)
	}
	c.opts = o

	pool, err := ants.NewPool(o.removalPool)
	if err != nil {
		c.initialized.Store(false)
		return fail(ErrInternal, err)
	}
	c.removalPool = pool

	c.table = regtable.New()
	c.eventThread = eventloop.NewEventThread(c.table, o.pollInterval)
	c.syncThread = eventloop.NewSyncThread(c.table, o.syncInterval, c.removalPool)

	if o.selfLogEnabled {
		log.Default.Infof("sal: context initialized (poll=%s sync=%s)", o.pollInterval, o.syncInterval)
	}

	go c.eventThread.Run()
	go c.syncThread.Run()
	return nil
}

// cleanup tears the async event system down: stops both threads, waiting
// up to the configured join timeout for each, and releases the removal
// pool. Returns ErrNotInit if not initialized.
func (c *Context) cleanup() error {
	if !c.initialized.CAS(true, false) {
		return fail(ErrNotInit, nil)
	}

	eventErr := stopWithTimeout(c.eventThread.Stop, c.opts.joinTimeout)
	syncErr := stopWithTimeout(c.syncThread.Stop, c.opts.joinTimeout)
	c.removalPool.Release()
	if eventErr != nil {
		return fail(ErrInternal, eventErr)
	}
	if syncErr != nil {
		return fail(ErrInternal, syncErr)
	}

	if c.opts.selfLogEnabled {
		log.Default.Infof("sal: context torn down")
	}
	return nil
}

// stopWithTimeout runs a blocking stop function on its own goroutine and
// bounds how long the caller waits for it, so a wedged thread can't hang
// Cleanup forever; the goroutine itself is leaked in that case, matching
// the "best-effort bounded shutdown" spec.md §9 settles on.
func stopWithTimeout(stop func(), timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for dispatcher thread to stop")
	}
}

// Register validates and enqueues a socket registration, translating the
// registration table's sentinel errors into the public ErrorCode taxonomy.
func (c *Context) Register(d Descriptor, mask EventMask, cb Callback, userCtx interface{}) error {
	if !c.initialized.Load() {
		return fail(ErrAsyncNotInit, nil)
	}
	metrics.Add(metrics.RegisterCalls, 1)
	_, err := c.table.Register(d, mask, cb, userCtx)
	if err == nil {
		return nil
	}
	metrics.Add(metrics.RegisterRejected, 1)
	return fail(translateRegtableError(err), err)
}

// Modify updates an already-registered (or still-queued) descriptor's
// interest mask.
func (c *Context) Modify(d Descriptor, mask EventMask) error {
	if !c.initialized.Load() {
		return fail(ErrAsyncNotInit, nil)
	}
	metrics.Add(metrics.ModifyCalls, 1)
	if err := c.table.Modify(d, mask); err != nil {
		return fail(translateRegtableError(err), err)
	}
	return nil
}

// Unregister enqueues removal of a descriptor.
func (c *Context) Unregister(d Descriptor) error {
	if !c.initialized.Load() {
		return fail(ErrAsyncNotInit, nil)
	}
	metrics.Add(metrics.UnregisterCalls, 1)
	if err := c.table.Unregister(d); err != nil {
		return fail(translateRegtableError(err), err)
	}
	return nil
}

func translateRegtableError(err error) ErrorCode {
	switch {
	case errors.Is(err, regtable.ErrBadDescriptor):
		return ErrBadSocket
	case errors.Is(err, regtable.ErrInvalidMask):
		return ErrInvalidArg
	case errors.Is(err, regtable.ErrAlreadyPending):
		return errDupeReg
	case errors.Is(err, regtable.ErrNotRegistered):
		return ErrAsyncNoSocket
	default:
		return ErrInternal
	}
}
