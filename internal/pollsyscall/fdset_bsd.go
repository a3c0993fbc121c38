// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build darwin || freebsd || dragonfly

package pollsyscall

import "golang.org/x/sys/unix"

// unix.FdSet.Bits is [32]int32 on darwin/freebsd/dragonfly: 32-bit words,
// mirroring the word-size split the teacher uses for kqueue idents
// (poller_kqueue32.go / poller_kqueue64.go).
const fdWordBits = 32

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/fdWordBits] |= int32(1) << uint(fd%fdWordBits)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdWordBits]&(int32(1)<<uint(fd%fdWordBits)) != 0
}
