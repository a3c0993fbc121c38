// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package pollsyscall wraps the platform's readiness-poll syscall behind
// the capability contract of spec.md §6: three descriptor sets, a max
// descriptor, and a timeout, reporting per-descriptor readability,
// writability, and error status. This is the select-equivalent primitive;
// unlike the teacher's epoll/kqueue-based poller, it is level-triggered
// and bounded by a caller-supplied timeout rather than edge-triggered and
// blocking indefinitely, matching spec.md §4.3's BUILD/POLL/DISPATCH loop.
package pollsyscall

import (
	"github.com/aremmell/sal/internal/evtypes"
)

// MaxDescriptors bounds the descriptor sets this package can represent,
// mirroring the historical FD_SETSIZE limit of select(2).
const MaxDescriptors = 1024

// FDSet is a fixed-size bitset of descriptors, one of the three readiness
// sets spec.md's Snapshot/poll contract passes around.
type FDSet struct {
	bits [MaxDescriptors/64 + 1]uint64
}

// Reset clears every bit.
func (s *FDSet) Reset() {
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// Add sets the bit for descriptor d. Descriptors at or beyond
// MaxDescriptors are silently dropped from the set (the event thread will
// simply never observe readiness for them); this mirrors select(2)'s own
// FD_SETSIZE ceiling rather than being a library-specific limitation.
func (s *FDSet) Add(d evtypes.Descriptor) {
	if d < 0 || int(d) >= MaxDescriptors {
		return
	}
	s.bits[d/64] |= 1 << uint(d%64)
}

// IsSet reports whether descriptor d is present in the set.
func (s *FDSet) IsSet(d evtypes.Descriptor) bool {
	if d < 0 || int(d) >= MaxDescriptors {
		return false
	}
	return s.bits[d/64]&(1<<uint(d%64)) != 0
}
