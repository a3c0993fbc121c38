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

// Package sal is a cross-platform Berkeley-sockets abstraction: a uniform
// synchronous socket API, plus an asynchronous event-notification
// dispatcher built on top of it. Callers register sockets with an event
// mask and a callback; the library observes readiness across all
// registered sockets on a dedicated event thread and invokes callbacks
// there, never concurrently with themselves.
package sal

import "github.com/aremmell/sal/internal/evtypes"

// Descriptor is an opaque handle identifying an OS socket.
type Descriptor = evtypes.Descriptor

// InvalidDescriptor is the sentinel value for "no socket".
const InvalidDescriptor = evtypes.InvalidDescriptor

// EventMask is a bitmask of event kinds a registration is interested in,
// or that a delivery carries (exactly one bit set per delivery).
type EventMask = evtypes.EventMask

// Event bits, per spec.md §3.
const (
	EventRead     = evtypes.EventRead
	EventWrite    = evtypes.EventWrite
	EventConnect  = evtypes.EventConnect
	EventAccept   = evtypes.EventAccept
	EventClose    = evtypes.EventClose
	EventConnFail = evtypes.EventConnFail
	EventError    = evtypes.EventError
	EventInvalid  = evtypes.EventInvalid
	EventRemoved  = evtypes.EventRemoved
)

// Callback is invoked once per event delivery, on the library's event
// thread, with exactly one event bit set. It must not call Init/Cleanup.
// It may call Register/Modify/Unregister for any descriptor, including
// its own, but such calls take effect no sooner than the deferred-change
// protocol allows (spec.md §4.2/§5).
type Callback = evtypes.Callback

// Init initializes the default, process-wide library context. Fails with
// ErrDupeInit if already initialized.
func Init(opts ...Option) error {
	return defaultContext.init(opts...)
}

// Cleanup tears down the default library context. Fails with ErrNotInit
// if not initialized.
func Cleanup() error {
	return defaultContext.cleanup()
}

// Register enqueues a socket for event monitoring on the default context.
// See Context.Register.
func Register(d Descriptor, mask EventMask, cb Callback, userCtx interface{}) error {
	return defaultContext.Register(d, mask, cb, userCtx)
}

// Modify updates the interest mask for an already-registered (or
// still-queued) descriptor on the default context. See Context.Modify.
func Modify(d Descriptor, mask EventMask) error {
	return defaultContext.Modify(d, mask)
}

// Unregister enqueues removal of a descriptor from the default context.
// See Context.Unregister.
func Unregister(d Descriptor) error {
	return defaultContext.Unregister(d)
}
