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

import "time"

// QuarantineStatus is the review state of a quarantined entity. Resolved and
// rejected are terminal; pending and in_review count as open.
type QuarantineStatus string

const (
	QuarantinePending  QuarantineStatus = "pending"
	QuarantineInReview QuarantineStatus = "in_review"
	QuarantineResolved QuarantineStatus = "resolved"
	QuarantineRejected QuarantineStatus = "rejected"
)

// IsOpen reports whether the record still needs operator attention.
func (s QuarantineStatus) IsOpen() bool {
	return s == QuarantinePending || s == QuarantineInReview
}

// QuarantinePriority orders the operator worklist.
type QuarantinePriority string

const (
	QuarantinePriorityHigh   QuarantinePriority = "high"
	QuarantinePriorityMedium QuarantinePriority = "medium"
	QuarantinePriorityLow    QuarantinePriority = "low"
)

// QuarantineRecord holds one entity the pipeline could not reconcile
// automatically. Exactly one open record exists per (entity type, entity id);
// repeat failures increment Occurrences on the open record.
type QuarantineRecord struct {
	ID              int64                  `json:"-"`
	QuarantineID    string                 `json:"quarantine_id"`
	EntityType      string                 `json:"entity_type"`
	EntityID        string                 `json:"entity_id"`
	Status          QuarantineStatus       `json:"status"`
	Priority        QuarantinePriority     `json:"priority"`
	Reason          string                 `json:"reason"`
	ErrorDetail     string                 `json:"error_detail,omitempty"`
	Occurrences     int                    `json:"occurrences"`
	CorrectedData   map[string]interface{} `json:"corrected_data,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	LastSeenAt      time.Time              `json:"last_seen_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy      string                 `json:"resolved_by,omitempty"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
}

// QuarantineFilters narrows a quarantine listing. Zero values match everything.
type QuarantineFilters struct {
	EntityType string             `json:"entity_type"`
	Status     QuarantineStatus   `json:"status"`
	Priority   QuarantinePriority `json:"priority"`
	From       *time.Time         `json:"from,omitempty"`
	To         *time.Time         `json:"to,omitempty"`
}

// ReviewDecision is the operator's verdict on a quarantined entity.
type ReviewDecision string

const (
	DecisionResolved ReviewDecision = "resolved"
	DecisionRejected ReviewDecision = "rejected"
)

// BulkUpdateResult reports the outcome of one record in a bulk quarantine
// update. Bulk updates are atomic per record, not across records.
type BulkUpdateResult struct {
	QuarantineID string `json:"quarantine_id"`
	Updated      bool   `json:"updated"`
	Error        string `json:"error,omitempty"`
}
