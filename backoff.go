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
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryRandomization spreads retry deadlines so a burst of failures does not
// come back as a burst of retries.
const retryRandomization = 0.25

// RetryDelay returns how long a job should wait before its next attempt.
// Delays double per attempt from the configured base up to the configured
// cap, with jitter. Attempt is 1-based: the delay after the first failure
// uses attempt 1.
func RetryDelay(base, cap time.Duration, attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.RandomizationFactor = retryRandomization
	bo.Multiplier = 2
	bo.MaxInterval = cap
	bo.MaxElapsedTime = 0
	bo.Reset()

	delay := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}
