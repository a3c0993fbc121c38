// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package eventloop_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aremmell/sal/internal/evtypes"
	"github.com/aremmell/sal/internal/eventloop"
	"github.com/aremmell/sal/internal/regtable"
	"github.com/aremmell/sal/metrics"
)

func TestEventThreadDispatchesReadableDescriptor(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	table := regtable.New()
	var mu sync.Mutex
	var events []evtypes.EventMask
	_, err = table.Register(evtypes.Descriptor(r.Fd()), evtypes.EventRead, func(d evtypes.Descriptor, e evtypes.EventMask, ctx interface{}) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	table.Lock()
	table.Drain()
	table.Unlock()

	et := eventloop.NewEventThread(table, 20*time.Millisecond)
	go et.Run()
	defer et.Stop()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, evtypes.EventRead, events[0])
	mu.Unlock()
}

func TestEventThreadSkipsBusyDescriptor(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	table := regtable.New()
	var calls int
	var mu sync.Mutex
	rec, err := table.Register(evtypes.Descriptor(r.Fd()), evtypes.EventRead, func(d evtypes.Descriptor, e evtypes.EventMask, ctx interface{}) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	table.Lock()
	table.Drain()
	table.Unlock()

	// Hold the descriptor's guard, as an in-flight callback would.
	require.True(t, rec.InCallback.Begin())
	skippedBefore := metrics.Get(metrics.CallbacksSkippedBusy)

	et := eventloop.NewEventThread(table, 10*time.Millisecond)
	go et.Run()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return metrics.Get(metrics.CallbacksSkippedBusy) > skippedBefore
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()

	rec.InCallback.End()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, 10*time.Millisecond)
	et.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 1)
}

func TestSyncThreadDeliversRemovalNotification(t *testing.T) {
	table := regtable.New()
	notified := make(chan evtypes.Descriptor, 1)
	_, err := table.Register(5, evtypes.EventRead, func(d evtypes.Descriptor, e evtypes.EventMask, ctx interface{}) {
		if e == evtypes.EventRemoved {
			notified <- d
		}
	}, nil)
	require.NoError(t, err)

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	st := eventloop.NewSyncThread(table, 20*time.Millisecond, pool)
	go st.Run()
	defer st.Stop()

	require.NoError(t, table.Unregister(5))

	select {
	case d := <-notified:
		assert.Equal(t, evtypes.Descriptor(5), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removal notification")
	}
}

func TestSyncThreadNotifiesOnceOnly(t *testing.T) {
	table := regtable.New()
	var count int
	var mu sync.Mutex
	_, err := table.Register(7, evtypes.EventRead, func(d evtypes.Descriptor, e evtypes.EventMask, ctx interface{}) {
		if e == evtypes.EventRemoved {
			mu.Lock()
			count++
			mu.Unlock()
		}
	}, nil)
	require.NoError(t, err)

	st := eventloop.NewSyncThread(table, 10*time.Millisecond, nil)
	go st.Run()
	defer st.Stop()

	require.NoError(t, table.Unregister(7))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}
