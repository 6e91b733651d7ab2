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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	ledgersync "github.com/chronoworks/ledgersync"
	"github.com/chronoworks/ledgersync/model"
)

// EnqueueSyncJob is the request body of POST /sync-jobs.
type EnqueueSyncJob struct {
	EntityID    string                 `json:"entity_id"`
	Operation   string                 `json:"operation"`
	Priority    string                 `json:"priority"`
	Trigger     string                 `json:"trigger"`
	MaxAttempts int                    `json:"max_attempts"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

func (e *EnqueueSyncJob) ValidateEnqueueSyncJob() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.EntityID, validation.Required),
		validation.Field(&e.Operation, validation.In("", "create", "update", "reconcile")),
		validation.Field(&e.Priority, validation.In("", "high", "medium", "low")),
		validation.Field(&e.Trigger, validation.In("", "manual", "scheduled", "event")),
		validation.Field(&e.MaxAttempts, validation.Min(0)),
	)
}

func (e *EnqueueSyncJob) ToEnqueueOptions() model.EnqueueOptions {
	return model.EnqueueOptions{
		EntityID:    e.EntityID,
		Operation:   model.SyncOperation(e.Operation),
		Priority:    model.JobPriority(e.Priority),
		Trigger:     model.JobTrigger(e.Trigger),
		MaxAttempts: e.MaxAttempts,
		MetaData:    e.MetaData,
	}
}

// EnqueueBatchSyncJobs is the request body of POST /sync-jobs/batch. Records
// are selected either by an explicit entity list or by a period date range;
// force re-enqueues records already marked synced when selecting by range.
type EnqueueBatchSyncJobs struct {
	EntityIDs []string               `json:"entity_ids"`
	From      string                 `json:"from"`
	To        string                 `json:"to"`
	Force     bool                   `json:"force"`
	Operation string                 `json:"operation"`
	Priority  string                 `json:"priority"`
	Trigger   string                 `json:"trigger"`
	MetaData  map[string]interface{} `json:"meta_data"`
}

func (e *EnqueueBatchSyncJobs) ValidateEnqueueBatchSyncJobs() error {
	if len(e.EntityIDs) == 0 && e.From == "" && e.To == "" {
		return errors.New("either entity_ids or a from/to date range is required")
	}
	return validation.ValidateStruct(e,
		validation.Field(&e.From, validation.By(optionalDateValidation)),
		validation.Field(&e.To, validation.By(optionalDateValidation)),
		validation.Field(&e.Operation, validation.In("", "create", "update", "reconcile")),
		validation.Field(&e.Priority, validation.In("", "high", "medium", "low")),
		validation.Field(&e.Trigger, validation.In("", "manual", "scheduled", "event")),
	)
}

func (e *EnqueueBatchSyncJobs) ToEnqueueOptions() model.EnqueueOptions {
	return model.EnqueueOptions{
		Operation: model.SyncOperation(e.Operation),
		Priority:  model.JobPriority(e.Priority),
		Trigger:   model.JobTrigger(e.Trigger),
		MetaData:  e.MetaData,
	}
}

// ToBatchSelection parses the selection half of the request.
func (e *EnqueueBatchSyncJobs) ToBatchSelection() (ledgersync.BatchSelection, error) {
	selection := ledgersync.BatchSelection{EntityIDs: e.EntityIDs, Force: e.Force}
	if e.From != "" {
		from, err := time.Parse(time.RFC3339, e.From)
		if err != nil {
			return selection, err
		}
		selection.From = &from
	}
	if e.To != "" {
		to, err := time.Parse(time.RFC3339, e.To)
		if err != nil {
			return selection, err
		}
		selection.To = &to
	}
	return selection, nil
}

// QueueControl is the request body of POST /queue/control.
type QueueControl struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (q *QueueControl) ValidateQueueControl() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Action, validation.Required,
			validation.In("pause", "resume", "retry-failed", "clear-failed")),
	)
}

// StartMigration is the request body of POST /migrations and the query shape
// of the analyze and validate endpoints.
type StartMigration struct {
	BatchSize        int     `json:"batch_size" form:"batch_size"`
	DelaySeconds     int     `json:"delay_seconds" form:"delay_seconds"`
	MaxRetries       int     `json:"max_retries" form:"max_retries"`
	DryRun           bool    `json:"dry_run" form:"dry_run"`
	From             string  `json:"from" form:"from"`
	To               string  `json:"to" form:"to"`
	IncludeRejected  bool    `json:"include_rejected" form:"include_rejected"`
	FailureThreshold float64 `json:"failure_threshold" form:"failure_threshold"`
}

func (s *StartMigration) ValidateStartMigration() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.BatchSize, validation.Min(0)),
		validation.Field(&s.DelaySeconds, validation.Min(0)),
		validation.Field(&s.MaxRetries, validation.Min(0)),
		validation.Field(&s.FailureThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.From, validation.By(optionalDateValidation)),
		validation.Field(&s.To, validation.By(optionalDateValidation)),
	)
}

func (s *StartMigration) ToMigrationConfig() (model.BatchMigrationConfig, error) {
	cfg := model.BatchMigrationConfig{
		BatchSize:           s.BatchSize,
		DelayBetweenBatches: time.Duration(s.DelaySeconds) * time.Second,
		MaxRetries:          s.MaxRetries,
		DryRun:              s.DryRun,
		IncludeRejected:     s.IncludeRejected,
		FailureThreshold:    s.FailureThreshold,
	}
	if s.From != "" {
		from, err := time.Parse(time.RFC3339, s.From)
		if err != nil {
			return cfg, err
		}
		cfg.From = &from
	}
	if s.To != "" {
		to, err := time.Parse(time.RFC3339, s.To)
		if err != nil {
			return cfg, err
		}
		cfg.To = &to
	}
	return cfg, nil
}

func optionalDateValidation(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return errors.New("please format dates as RFC3339 (e.g., 2025-04-22T15:28:03+00:00)")
	}
	return nil
}

// MigrationControl is the request body of POST /migrations/:id/control.
type MigrationControl struct {
	Action string `json:"action"`
}

func (m *MigrationControl) ValidateMigrationControl() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Action, validation.Required, validation.In("pause", "resume", "cancel")),
	)
}

// ReviewQuarantine is the request body of PATCH /quarantine/:id/review.
type ReviewQuarantine struct {
	Decision      string                 `json:"decision"`
	CorrectedData map[string]interface{} `json:"corrected_data"`
	Notes         string                 `json:"notes"`
}

func (r *ReviewQuarantine) ValidateReviewQuarantine() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Decision, validation.Required, validation.In("resolved", "rejected")),
	)
}

// BulkReviewQuarantine is the request body of PATCH /quarantine/bulk.
type BulkReviewQuarantine struct {
	QuarantineIDs []string `json:"quarantine_ids"`
	Decision      string   `json:"decision"`
	Notes         string   `json:"notes"`
}

func (b *BulkReviewQuarantine) ValidateBulkReviewQuarantine() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.QuarantineIDs, validation.Required, validation.Length(1, 0)),
		validation.Field(&b.Decision, validation.Required, validation.In("resolved", "rejected")),
	)
}
