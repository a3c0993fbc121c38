// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package sockprobe holds the raw-fd getsockopt/recvfrom probes the event
// thread needs to disambiguate readiness bits into the public event
// taxonomy (spec.md §4.3): orderly-shutdown detection via a zero-byte
// peek, pending-connect outcome via SO_ERROR, and descriptor liveness via
// SO_TYPE. Split out of the root package so internal/eventloop can call
// these without importing the root package and creating an import cycle.
package sockprobe

import (
	"golang.org/x/sys/unix"

	"github.com/aremmell/sal/internal/evtypes"
)

// PeekOrderlyShutdown implements spec.md §4.3's "zero-byte peek reveals
// orderly shutdown" READ-vs-CLOSE disambiguation: MSG_PEEK a single byte
// without consuming it; a zero-length successful read means the peer
// performed an orderly shutdown.
func PeekOrderlyShutdown(d evtypes.Descriptor) (bool, error) {
	var buf [1]byte
	n, _, err := unix.Recvfrom(int(d), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	return n == 0, nil
}

// SocketError implements the "probe socket error status" step of spec.md
// §4.3's CONNECT/CONN_FAIL decoding, via getsockopt(SO_ERROR). A zero
// result means the pending connect succeeded.
func SocketError(d evtypes.Descriptor) (int, error) {
	errno, err := unix.GetsockoptInt(int(d), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return errno, nil
}

// IsDescriptorUsable reports whether d still names an open socket,
// distinguishing the INVALID event from a plain ERROR delivery.
func IsDescriptorUsable(d evtypes.Descriptor) bool {
	_, err := unix.GetsockoptInt(int(d), unix.SOL_SOCKET, unix.SO_TYPE)
	return err == nil
}
