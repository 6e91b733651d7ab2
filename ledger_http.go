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
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/internal/request"
	"github.com/chronoworks/ledgersync/model"
)

// HTTPLedgerClient talks to the accounting ledger's REST API. Response status
// codes map onto the pipeline's error taxonomy; everything the classifier
// reacts to originates here.
type HTTPLedgerClient struct {
	baseURL  string
	apiToken string
	timeout  time.Duration
}

// NewHTTPLedgerClient builds the production ledger adapter from configuration.
func NewHTTPLedgerClient() (*HTTPLedgerClient, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &HTTPLedgerClient{
		baseURL:  strings.TrimSuffix(conf.Ledger.BaseURL, "/"),
		apiToken: conf.Ledger.APIToken,
		timeout:  time.Duration(conf.Ledger.TimeoutSec) * time.Second,
	}, nil
}

// ledgerEntryPayload is the wire shape of a sync request.
type ledgerEntryPayload struct {
	Operation   string                 `json:"operation"`
	ExternalRef string                 `json:"external_ref"`
	ProjectID   string                 `json:"project_id"`
	UserID      string                 `json:"user_id"`
	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	Hours       string                 `json:"hours"`
	Amount      string                 `json:"amount"`
	Currency    string                 `json:"currency"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

type ledgerEntryResponse struct {
	LedgerRef string    `json:"ledger_ref"`
	SyncedAt  time.Time `json:"synced_at"`
	Error     string    `json:"error"`
	Field     string    `json:"field"`
}

// SyncRecord pushes one billing record to the ledger. The idempotency key
// travels in a header; the ledger replays the original response for a
// duplicate key instead of writing twice.
func (c *HTTPLedgerClient) SyncRecord(ctx context.Context, operation model.SyncOperation, record *model.BillingRecord, idempotencyKey string) (*LedgerReceipt, error) {
	payload, err := request.ToJsonReq(&ledgerEntryPayload{
		Operation:   string(operation),
		ExternalRef: record.RecordID,
		ProjectID:   record.ProjectID,
		UserID:      record.UserID,
		PeriodStart: record.PeriodStart,
		PeriodEnd:   record.PeriodEnd,
		Hours:       record.Hours.String(),
		Amount:      record.Amount.String(),
		Currency:    record.Currency,
		MetaData:    record.MetaData,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entries", payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", request.BearerAuth(c.apiToken))
	req.Header.Set("Idempotency-Key", idempotencyKey)

	var body ledgerEntryResponse
	resp, err := request.Call(req, &body)
	if err != nil {
		if resp == nil {
			// Connection-level failure, nothing reached the ledger.
			return nil, &TransientError{Detail: err.Error()}
		}
		return nil, c.mapStatus(resp, ledgerEntryResponse{})
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return &LedgerReceipt{LedgerRef: body.LedgerRef, SyncedAt: body.SyncedAt}, nil
	}
	return nil, c.mapStatus(resp, body)
}

// mapStatus translates a ledger error response into the pipeline's taxonomy.
func (c *HTTPLedgerClient) mapStatus(resp *http.Response, body ledgerEntryResponse) error {
	detail := body.Error
	if detail == "" {
		detail = fmt.Sprintf("ledger returned %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Detail: detail}
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Detail: detail}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Field: body.Field, Detail: detail}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &TransientError{Detail: detail}
	default:
		return fmt.Errorf("unexpected ledger response %d: %s", resp.StatusCode, detail)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
