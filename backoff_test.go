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

package ledgersync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoublesWithJitter(t *testing.T) {
	base := 30 * time.Second
	cap := 30 * time.Minute

	for attempt, expected := range map[int]time.Duration{
		1: 30 * time.Second,
		2: 60 * time.Second,
		3: 120 * time.Second,
	} {
		delay := RetryDelay(base, cap, attempt)
		min := time.Duration(float64(expected) * (1 - retryRandomization))
		max := time.Duration(float64(expected) * (1 + retryRandomization))
		assert.GreaterOrEqual(t, delay, min, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, max, "attempt %d", attempt)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	base := 30 * time.Second
	cap := 30 * time.Minute

	delay := RetryDelay(base, cap, 20)
	max := time.Duration(float64(cap) * (1 + retryRandomization))
	assert.LessOrEqual(t, delay, max)
	assert.GreaterOrEqual(t, delay, time.Duration(float64(cap)*(1-retryRandomization)))
}
