// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux

package pollsyscall

import "golang.org/x/sys/unix"

// unix.FdSet.Bits is [16]int64 on linux/amd64 and friends: 64-bit words.
const fdWordBits = 64

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/fdWordBits] |= int64(1) << uint(fd%fdWordBits)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdWordBits]&(int64(1)<<uint(fd%fdWordBits)) != 0
}
