//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package sal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	var o options
	o.setDefault()
	assert.Equal(t, defaultPollInterval, o.pollInterval)
	assert.Equal(t, defaultSyncInterval, o.syncInterval)
	assert.Equal(t, defaultJoinTimeout, o.joinTimeout)
	assert.False(t, o.selfLogEnabled)

	WithPollInterval(50 * time.Millisecond).f(&o)
	assert.Equal(t, 50*time.Millisecond, o.pollInterval)

	WithSyncInterval(2 * time.Second).f(&o)
	assert.Equal(t, 2*time.Second, o.syncInterval)

	WithJoinTimeout(10 * time.Second).f(&o)
	assert.Equal(t, 10*time.Second, o.joinTimeout)

	WithRemovalPoolSize(8).f(&o)
	assert.Equal(t, 8, o.removalPool)

	WithSelfLogging(true).f(&o)
	assert.True(t, o.selfLogEnabled)
}
