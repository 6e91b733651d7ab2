/*
Copyright 2025 Chronoworks Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockSingleHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewLocker(client, "mig_123", "worker-a")
	second := NewLocker(client, "mig_123", "worker-b")

	assert.NoError(t, first.Lock(ctx, time.Minute))
	assert.Error(t, second.Lock(ctx, time.Minute), "second holder must not acquire the same migration lock")

	// A different migration is an independent lock.
	other := NewLocker(client, "mig_456", "worker-b")
	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestUnlockOnlyHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "mig_123", "worker-a")
	intruder := NewLocker(client, "mig_123", "worker-b")

	assert.NoError(t, holder.Lock(ctx, time.Minute))
	assert.Error(t, intruder.Unlock(ctx), "non-holder unlock must fail")
	assert.NoError(t, holder.Unlock(ctx))

	// Once released, anyone may take it.
	assert.NoError(t, intruder.Lock(ctx, time.Minute))
}

func TestWaitLockAcquiresAfterRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "mig_123", "worker-a")
	require.NoError(t, holder.Lock(ctx, time.Minute))

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = holder.Unlock(ctx)
	}()

	successor := NewLocker(client, "mig_123", "worker-b")
	assert.NoError(t, successor.WaitLock(ctx, time.Minute, 2*time.Second))
}

func TestWaitLockGivesUpAfterWaitTimeout(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "mig_123", "worker-a")
	require.NoError(t, holder.Lock(ctx, time.Minute))

	successor := NewLocker(client, "mig_123", "worker-b")
	assert.Error(t, successor.WaitLock(ctx, time.Minute, 300*time.Millisecond))
}

func TestExtendLock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "mig_123", "worker-a")
	assert.NoError(t, holder.Lock(ctx, time.Minute))
	assert.NoError(t, holder.ExtendLock(ctx, 2*time.Minute))

	intruder := NewLocker(client, "mig_123", "worker-b")
	assert.Error(t, intruder.ExtendLock(ctx, time.Minute))
}
