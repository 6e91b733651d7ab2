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
	"fmt"
	"time"

	"github.com/chronoworks/ledgersync/model"
)

// LedgerClient is the outbound port to the external accounting ledger. The
// pipeline only ever talks to the ledger through this interface; the HTTP
// adapter implements it in production and tests substitute a mock.
type LedgerClient interface {
	// SyncRecord pushes one billing record to the ledger. The idempotency key
	// makes redelivery safe: the ledger deduplicates on it, so an at-least-once
	// job cannot double-book an entry.
	SyncRecord(ctx context.Context, operation model.SyncOperation, record *model.BillingRecord, idempotencyKey string) (*LedgerReceipt, error)
}

// LedgerReceipt is the ledger's acknowledgement of a successful sync.
type LedgerReceipt struct {
	LedgerRef string    `json:"ledger_ref"`
	SyncedAt  time.Time `json:"synced_at"`
}

// TransientError covers ledger failures worth retrying: network faults,
// timeouts and 5xx responses.
type TransientError struct {
	Detail string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("ledger temporarily unavailable: %s", e.Detail)
}

// RateLimitError is returned when the ledger throttles the pipeline. It is
// retryable; RetryAfter carries the server's hint when one was given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ledger rate limited, retry after %s", e.RetryAfter)
	}
	return "ledger rate limited"
}

// AuthError means the pipeline's credentials were rejected. Retrying cannot
// help and every other job would fail the same way, so the dispatcher halts
// the queue on it.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ledger rejected credentials: %s", e.Detail)
}

// ValidationError means the ledger rejected the record's data. The record
// needs human correction, not another attempt.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("ledger rejected record: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("ledger rejected record: %s", e.Detail)
}

// ConflictError means the ledger holds a conflicting version of the entity.
// Resolving it needs a human decision about which side wins.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger entry conflict: %s", e.Detail)
}
