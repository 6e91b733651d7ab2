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
)

// SyncOperation is the closed set of operations a job can perform against the ledger.
type SyncOperation string

const (
	OperationCreate    SyncOperation = "create"
	OperationUpdate    SyncOperation = "update"
	OperationReconcile SyncOperation = "reconcile"
)

// JobPriority orders dispatch across entities. Within a tier jobs dispatch
// oldest first.
type JobPriority string

const (
	PriorityHigh   JobPriority = "high"
	PriorityMedium JobPriority = "medium"
	PriorityLow    JobPriority = "low"
)

// JobState is the lifecycle state of a sync job. Completed, failed and
// cancelled are terminal.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
	JobStateCancelled JobState = "cancelled"
)

// JobTrigger records what caused a job to be enqueued.
type JobTrigger string

const (
	TriggerManual    JobTrigger = "manual"
	TriggerScheduled JobTrigger = "scheduled"
	TriggerEvent     JobTrigger = "event"
)

// SyncJob is a unit of work that pushes one billing record to the ledger.
// At most one job per entity may be open (waiting, active or delayed) at a
// time; a second enqueue for the same entity coalesces into the open job.
type SyncJob struct {
	ID            int64                  `json:"-"`
	JobID         string                 `json:"job_id"`
	EntityID      string                 `json:"entity_id"`
	Operation     SyncOperation          `json:"operation"`
	Priority      JobPriority            `json:"priority"`
	State         JobState               `json:"state"`
	Queue         string                 `json:"queue"`
	Trigger       JobTrigger             `json:"trigger"`
	Attempts      int                    `json:"attempts"`
	MaxAttempts   int                    `json:"max_attempts"`
	MigrationID   string                 `json:"migration_id,omitempty"`
	BatchID       string                 `json:"batch_id,omitempty"`
	WorkerID      string                 `json:"worker_id,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// EnqueueOptions carries the caller-supplied parameters of an enqueue call.
// Zero values fall back to the defaults applied by ApplyDefaults.
type EnqueueOptions struct {
	EntityID    string                 `json:"entity_id"`
	Operation   SyncOperation          `json:"operation"`
	Priority    JobPriority            `json:"priority"`
	Trigger     JobTrigger             `json:"trigger"`
	Queue       string                 `json:"queue"`
	MaxAttempts int                    `json:"max_attempts"`
	MigrationID string                 `json:"migration_id"`
	BatchID     string                 `json:"batch_id"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

const (
	DefaultQueue       = "ledger_sync"
	DefaultMaxAttempts = 5
)

// ApplyDefaults fills unset optional fields with their defaults.
func (o *EnqueueOptions) ApplyDefaults() {
	if o.Operation == "" {
		o.Operation = OperationUpdate
	}
	if o.Priority == "" {
		o.Priority = PriorityMedium
	}
	if o.Trigger == "" {
		o.Trigger = TriggerManual
	}
	if o.Queue == "" {
		o.Queue = DefaultQueue
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
}

// Validate checks that the options name an entity and only use known enum values.
func (o *EnqueueOptions) Validate() error {
	if o.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	switch o.Operation {
	case OperationCreate, OperationUpdate, OperationReconcile:
	default:
		return fmt.Errorf("unknown sync operation %q", o.Operation)
	}
	switch o.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("unknown job priority %q", o.Priority)
	}
	switch o.Trigger {
	case TriggerManual, TriggerScheduled, TriggerEvent:
	default:
		return fmt.Errorf("unknown job trigger %q", o.Trigger)
	}
	return nil
}

// IsTerminal reports whether the state admits no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// IdempotencyKey derives the key sent to the ledger so that a redelivered job
// cannot produce a second write for the same entity and operation.
func (j *SyncJob) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", j.EntityID, j.Operation)
}

// QueueStatus is the read-only snapshot returned by the queue status endpoint.
type QueueStatus struct {
	Queue          string           `json:"queue"`
	Paused         bool             `json:"paused"`
	PausedReason   string           `json:"paused_reason,omitempty"`
	StateCounts    map[string]int64 `json:"state_counts"`
	ErrorRate      float64          `json:"error_rate"`
	AvgLatencySecs float64          `json:"avg_latency_secs"`
}
