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

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Billing record statuses as written by the timesheet application.
const (
	BillingStatusDraft    = "draft"
	BillingStatusApproved = "approved"
	BillingStatusRejected = "rejected"
	BillingStatusSynced   = "synced"
)

// BillingRecord is the pipeline's view of one approved timesheet submission.
// It is the entity pushed to the ledger, the source dataset of batch
// migrations, and the target of corrected-data merges during quarantine
// review. The record-management layer owns everything else about it.
type BillingRecord struct {
	ID          int64                  `json:"-"`
	RecordID    string                 `json:"record_id"`
	ProjectID   string                 `json:"project_id"`
	UserID      string                 `json:"user_id"`
	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	Hours       decimal.Decimal        `json:"hours"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Status      string                 `json:"status"`
	LedgerRef   string                 `json:"ledger_ref,omitempty"`
	SyncedAt    *time.Time             `json:"synced_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

// Validate applies the entity-level checks the ledger is known to enforce.
// Dry-run migrations and quarantine reviews run the same checks so that a
// record rejected here would also have been rejected remotely.
func (r *BillingRecord) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("record id is required")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("record %s has no project reference", r.RecordID)
	}
	if r.UserID == "" {
		return fmt.Errorf("record %s has no user reference", r.RecordID)
	}
	if r.Currency == "" {
		return fmt.Errorf("record %s has no currency", r.RecordID)
	}
	if r.Hours.IsNegative() {
		return fmt.Errorf("record %s has negative hours %s", r.RecordID, r.Hours)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("record %s has negative amount %s", r.RecordID, r.Amount)
	}
	if r.PeriodEnd.Before(r.PeriodStart) {
		return fmt.Errorf("record %s period ends before it starts", r.RecordID)
	}
	return nil
}

// ApplyCorrections merges operator-supplied overrides into the record.
// Unknown keys land in MetaData so corrections are never silently dropped.
func (r *BillingRecord) ApplyCorrections(corrections map[string]interface{}) error {
	for key, value := range corrections {
		switch key {
		case "project_id":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("corrected project_id must be a string")
			}
			r.ProjectID = s
		case "user_id":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("corrected user_id must be a string")
			}
			r.UserID = s
		case "currency":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("corrected currency must be a string")
			}
			r.Currency = s
		case "hours":
			d, err := decimalFromJSON(value)
			if err != nil {
				return fmt.Errorf("corrected hours: %v", err)
			}
			r.Hours = d
		case "amount":
			d, err := decimalFromJSON(value)
			if err != nil {
				return fmt.Errorf("corrected amount: %v", err)
			}
			r.Amount = d
		default:
			if r.MetaData == nil {
				r.MetaData = make(map[string]interface{})
			}
			r.MetaData[key] = value
		}
	}
	return nil
}

// decimalFromJSON accepts the numeric shapes json unmarshalling produces.
func decimalFromJSON(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric value %v", value)
	}
}
