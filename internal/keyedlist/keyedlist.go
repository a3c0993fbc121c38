// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package keyedlist provides an ordered associative container mapping a
// comparable key to a value, with an iterator that tolerates the callback
// requesting removal of the node currently being visited.
//
// A List carries no internal locking: callers that share a List across
// goroutines (the registration table does) must hold their own mutex for
// the duration of any operation, including Iterate.
package keyedlist

// node is an intrusive singly linked list entry, mirroring the
// next-pointer shape used by the teacher's poller.Desc free list.
type node[K comparable, V any] struct {
	next  *node[K, V]
	key   K
	value V
}

// List is an ordered, singly linked association from K to V. The zero
// value is not ready for use; call New.
type List[K comparable, V any] struct {
	head *node[K, V]
	tail *node[K, V]
	n    int
}

// New creates an empty List.
func New[K comparable, V any]() *List[K, V] {
	return &List[K, V]{}
}

// Empty returns whether the list contains zero nodes.
func (l *List[K, V]) Empty() bool {
	return l.n == 0
}

// Len returns the number of nodes in the list.
func (l *List[K, V]) Len() int {
	return l.n
}

// Add appends a node with the given key and value to the end of the list.
// The caller guarantees key uniqueness; Add does not check for duplicates.
func (l *List[K, V]) Add(key K, value V) {
	nd := &node[K, V]{key: key, value: value}
	if l.tail == nil {
		l.head, l.tail = nd, nd
		l.n++
		return
	}
	l.tail.next = nd
	l.tail = nd
	l.n++
}

// Find returns the value stored under key, if present.
func (l *List[K, V]) Find(key K) (V, bool) {
	for nd := l.head; nd != nil; nd = nd.next {
		if nd.key == key {
			return nd.value, true
		}
	}
	var zero V
	return zero, false
}

// Remove finds a node by key, unlinks it, and returns its value.
func (l *List[K, V]) Remove(key K) (V, bool) {
	var prev *node[K, V]
	for nd := l.head; nd != nil; prev, nd = nd, nd.next {
		if nd.key != key {
			continue
		}
		l.unlink(prev, nd)
		return nd.value, true
	}
	var zero V
	return zero, false
}

// RemoveAll removes and discards every node, leaving the list empty.
func (l *List[K, V]) RemoveAll() {
	l.head, l.tail, l.n = nil, nil, 0
}

func (l *List[K, V]) unlink(prev, nd *node[K, V]) {
	if prev == nil {
		l.head = nd.next
	} else {
		prev.next = nd.next
	}
	if nd == l.tail {
		l.tail = prev
	}
	l.n--
}

// IterFunc is invoked once per node during Iterate. Returning false stops
// iteration early.
type IterFunc[K comparable, V any] func(key K, value V) (cont bool)

// Iterate walks the list in insertion order, invoking fn for each node.
//
// fn may request removal of the node currently being visited through a
// side channel (e.g. by enqueueing a deferred removal elsewhere) without
// corrupting iteration: Iterate captures the next pointer before invoking
// fn, so unlinking the current node — which Iterate itself never does —
// cannot invalidate advancement. Iterate is not safe against concurrent
// mutation of the list from another goroutine; callers must hold whatever
// external lock guards the list.
func (l *List[K, V]) Iterate(fn IterFunc[K, V]) {
	for nd := l.head; nd != nil; {
		next := nd.next
		if !fn(nd.key, nd.value) {
			return
		}
		nd = next
	}
}
