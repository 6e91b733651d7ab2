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
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/chronoworks/ledgersync/model"
)

// ErrorCategory names the failure classes the pipeline reacts to.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "transient"
	CategoryRateLimit  ErrorCategory = "rate_limit"
	CategoryAuth       ErrorCategory = "auth"
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryInternal   ErrorCategory = "internal"
)

// Classification is the verdict on one failed sync attempt. At most one of
// Retry and Quarantine is set; internal faults set neither and the job fails
// terminally.
type Classification struct {
	Category   ErrorCategory
	Retry      bool
	Quarantine bool
	// HaltQueue pauses dispatch entirely: the failure would hit every job on
	// the queue, not just this one.
	HaltQueue bool
	// RetryAfter carries the ledger's throttle hint, zero when absent.
	RetryAfter time.Duration
	Priority   model.QuarantinePriority
}

// Classify decides what to do with a failed attempt. Transient and rate-limit
// errors retry until the attempt budget runs out, then quarantine at low
// priority. Validation errors quarantine immediately at medium priority.
// Conflicts and auth failures quarantine at high priority; auth additionally
// halts the queue. Anything unrecognized is an internal fault: retrying the
// same inputs would reproduce it and there is nothing for a reviewer to
// correct, so the job fails outright and operators are alerted instead.
func Classify(err error, attempt, maxAttempts int) Classification {
	category := categorize(err)

	switch category {
	case CategoryAuth:
		return Classification{Category: category, Quarantine: true, HaltQueue: true, Priority: model.QuarantinePriorityHigh}
	case CategoryValidation:
		return Classification{Category: category, Quarantine: true, Priority: model.QuarantinePriorityMedium}
	case CategoryConflict:
		return Classification{Category: category, Quarantine: true, Priority: model.QuarantinePriorityHigh}
	case CategoryRateLimit:
		var rateErr *RateLimitError
		c := Classification{Category: category}
		if errors.As(err, &rateErr) {
			c.RetryAfter = rateErr.RetryAfter
		}
		if attempt >= maxAttempts {
			c.Quarantine = true
			c.Priority = model.QuarantinePriorityLow
			return c
		}
		c.Retry = true
		return c
	case CategoryTransient:
		if attempt >= maxAttempts {
			return Classification{Category: category, Quarantine: true, Priority: model.QuarantinePriorityLow}
		}
		return Classification{Category: category, Retry: true}
	default:
		return Classification{Category: CategoryInternal}
	}
}

func categorize(err error) ErrorCategory {
	var (
		transientErr  *TransientError
		rateErr       *RateLimitError
		authErr       *AuthError
		validationErr *ValidationError
		conflictErr   *ConflictError
		netErr        net.Error
	)
	switch {
	case errors.As(err, &rateErr):
		return CategoryRateLimit
	case errors.As(err, &authErr):
		return CategoryAuth
	case errors.As(err, &validationErr):
		return CategoryValidation
	case errors.As(err, &conflictErr):
		return CategoryConflict
	case errors.As(err, &transientErr):
		return CategoryTransient
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	default:
		return CategoryInternal
	}
}
