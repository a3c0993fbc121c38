// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package sal

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

type osFile = os.File

func mustPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	return r, w
}

// localAddr returns the address the OS assigned a just-bound socket,
// resolving the ephemeral port BindSocket(addr{Port:0}) picked.
func localAddr(d Descriptor) (Addr, error) {
	sa, err := unix.Getsockname(int(d))
	if err != nil {
		return Addr{}, err
	}
	return addrFromSockaddr(sa)
}
