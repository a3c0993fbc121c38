// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package keyedlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFindRemove(t *testing.T) {
	l := New[int, string]()
	assert.True(t, l.Empty())

	l.Add(1, "one")
	l.Add(2, "two")
	l.Add(3, "three")
	assert.Equal(t, 3, l.Len())

	v, ok := l.Find(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = l.Find(99)
	assert.False(t, ok)

	v, ok = l.Remove(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)
	assert.Equal(t, 2, l.Len())

	_, ok = l.Find(2)
	assert.False(t, ok)
}

func TestRemoveAll(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 5; i++ {
		l.Add(i, i*i)
	}
	l.RemoveAll()
	assert.True(t, l.Empty())
	assert.Equal(t, 0, l.Len())
}

func TestIterateOrder(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 5; i++ {
		l.Add(i, i)
	}
	var seen []int
	l.Iterate(func(key, value int) bool {
		seen = append(seen, key)
		return true
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestIterateEarlyStop(t *testing.T) {
	l := New[int, int]()
	for i := 0; i < 5; i++ {
		l.Add(i, i)
	}
	var seen []int
	l.Iterate(func(key, value int) bool {
		seen = append(seen, key)
		return key != 2
	})
	assert.Equal(t, []int{0, 1, 2}, seen)
}

// TestIterateToleratesRemovalOfCurrentNode exercises the contract that the
// callback may arrange for the current node to be removed from a *different*
// list (simulating the deferred queue) during iteration, without disturbing
// advancement to subsequent nodes.
func TestIterateToleratesRemovalOfCurrentNode(t *testing.T) {
	live := New[int, int]()
	for i := 0; i < 4; i++ {
		live.Add(i, i)
	}
	deferred := New[int, string]()
	var seen []int
	live.Iterate(func(key, value int) bool {
		seen = append(seen, key)
		if key == 1 {
			// Side channel: does not touch `live` directly, but proves
			// Iterate already captured `next` before this call runs.
			deferred.Add(key, "remove")
		}
		return true
	})
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	_, ok := deferred.Find(1)
	assert.True(t, ok)
}

func TestRemoveMissingKey(t *testing.T) {
	l := New[int, int]()
	l.Add(1, 1)
	_, ok := l.Remove(2)
	assert.False(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestRemoveTailUpdatesTail(t *testing.T) {
	l := New[int, int]()
	l.Add(1, 1)
	l.Add(2, 2)
	_, ok := l.Remove(2)
	require.True(t, ok)
	l.Add(3, 3)
	var seen []int
	l.Iterate(func(key, value int) bool {
		seen = append(seen, key)
		return true
	})
	assert.Equal(t, []int{1, 3}, seen)
}
