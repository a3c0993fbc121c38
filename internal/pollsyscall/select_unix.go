// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux || darwin || freebsd || dragonfly

package pollsyscall

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/aremmell/sal/internal/evtypes"
	"github.com/aremmell/sal/metrics"
)

// Result is the outcome of one Select call: the three readiness sets as
// reported by the kernel, restricted to descriptors below maxFD+1.
type Result struct {
	Readable FDSet
	Writable FDSet
	Errored  FDSet
}

// Ready reports, for each of the three sets, whether d was reported ready
// in it.
func (r *Result) Ready(d evtypes.Descriptor) (readable, writable, errored bool) {
	return r.Readable.IsSet(d), r.Writable.IsSet(d), r.Errored.IsSet(d)
}

// toUnix converts our platform-independent FDSet into a unix.FdSet.
func toUnix(s *FDSet, maxFD evtypes.Descriptor) unix.FdSet {
	var out unix.FdSet
	for fd := evtypes.Descriptor(0); fd <= maxFD; fd++ {
		if s.IsSet(fd) {
			fdSet(&out, int(fd))
		}
	}
	return out
}

func fromUnix(in *unix.FdSet, maxFD evtypes.Descriptor, out *FDSet) {
	out.Reset()
	for fd := evtypes.Descriptor(0); fd <= maxFD; fd++ {
		if fdIsSet(in, int(fd)) {
			out.Add(fd)
		}
	}
}

// Select wraps the select(2) readiness-poll syscall: given the three
// interest sets built by regtable.Snapshot and the largest descriptor in
// them, it blocks up to timeout for readiness, retrying transparently on
// EINTR (spec.md B3), and returns which descriptors are ready.
//
// timeout must not be negative: a negative value reaches select(2) as a
// negative timeval, which it rejects with EINVAL, and with nothing
// registered it returns at once. This package's only caller (the event
// thread) always supplies a bounded timeout so shutdown latency stays
// bounded (spec.md §4.3).
func Select(maxFD evtypes.Descriptor, readers, writers, errs *FDSet, timeout time.Duration) (*Result, error) {
	if maxFD == evtypes.InvalidDescriptor {
		// Nothing registered: still sleep for the timeout so the caller's
		// shutdown-polling cadence is honored, without invoking select(2)
		// on empty sets (undefined nfd=0 edge case on some platforms).
		time.Sleep(timeout)
		return &Result{}, nil
	}

	r := toUnix(readers, maxFD)
	w := toUnix(writers, maxFD)
	e := toUnix(errs, maxFD)
	tv := unix.NsecToTimeval(timeout.Nanoseconds())

	for {
		n, err := unix.Select(int(maxFD)+1, &r, &w, &e, &tv)
		if err == unix.EINTR {
			metrics.Add(metrics.SelectEINTR, 1)
			continue
		}
		if err != nil {
			return nil, err
		}
		result := &Result{}
		if n > 0 {
			fromUnix(&r, maxFD, &result.Readable)
			fromUnix(&w, maxFD, &result.Writable)
			fromUnix(&e, maxFD, &result.Errored)
		}
		return result, nil
	}
}
