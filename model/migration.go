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

// MigrationState is the lifecycle state of a batch migration. Cancelled,
// completed and failed are terminal.
type MigrationState string

const (
	MigrationPending   MigrationState = "pending"
	MigrationRunning   MigrationState = "running"
	MigrationPaused    MigrationState = "paused"
	MigrationCancelled MigrationState = "cancelled"
	MigrationCompleted MigrationState = "completed"
	MigrationFailed    MigrationState = "failed"
)

// IsTerminal reports whether the migration can make no further progress.
func (s MigrationState) IsTerminal() bool {
	return s == MigrationCancelled || s == MigrationCompleted || s == MigrationFailed
}

// BatchMigrationConfig controls how a historical replay is generated.
// DelayBetweenBatches bounds the request rate seen by the ledger.
type BatchMigrationConfig struct {
	BatchSize           int           `json:"batch_size"`
	DelayBetweenBatches time.Duration `json:"delay_between_batches"`
	MaxRetries          int           `json:"max_retries"`
	DryRun              bool          `json:"dry_run"`
	From                *time.Time    `json:"from,omitempty"`
	To                  *time.Time    `json:"to,omitempty"`
	IncludeRejected     bool          `json:"include_rejected"`
	FailureThreshold    float64       `json:"failure_threshold"`
}

const (
	DefaultMigrationBatchSize = 50
	DefaultMigrationDelay     = 5 * time.Second
	// DefaultFailureThreshold fails a migration once more than half of a
	// wave's jobs end in failure.
	DefaultFailureThreshold = 0.5
)

// ApplyDefaults fills unset fields with their defaults.
func (c *BatchMigrationConfig) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultMigrationBatchSize
	}
	if c.DelayBetweenBatches <= 0 {
		c.DelayBetweenBatches = DefaultMigrationDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxAttempts
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = DefaultFailureThreshold
	}
}

// Validate rejects configurations the controller cannot honor.
func (c *BatchMigrationConfig) Validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size cannot be negative")
	}
	if c.From != nil && c.To != nil && c.To.Before(*c.From) {
		return fmt.Errorf("migration date range is inverted: %s is before %s", c.To, c.From)
	}
	return nil
}

// MigrationProgress holds the aggregate counters of a migration run.
// ItemsProcessed is non-decreasing and never exceeds ItemsTotal.
type MigrationProgress struct {
	ItemsTotal     int64 `json:"items_total"`
	ItemsProcessed int64 `json:"items_processed"`
	ItemsSucceeded int64 `json:"items_succeeded"`
	ItemsFailed    int64 `json:"items_failed"`
}

// PercentComplete returns processed/total as a percentage, 0 when the total
// is unknown.
func (p MigrationProgress) PercentComplete() float64 {
	if p.ItemsTotal == 0 {
		return 0
	}
	return float64(p.ItemsProcessed) / float64(p.ItemsTotal) * 100
}

// BatchMigration is a supervised historical replay into the ledger.
type BatchMigration struct {
	ID            int64                `json:"-"`
	MigrationID   string               `json:"migration_id"`
	Config        BatchMigrationConfig `json:"config"`
	State         MigrationState       `json:"state"`
	Progress      MigrationProgress    `json:"progress"`
	InitiatedBy   string               `json:"initiated_by,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// EstimatedRemaining projects time to completion from the configured batch
// cadence. Zero when nothing remains or the total is unknown.
func (m *BatchMigration) EstimatedRemaining() time.Duration {
	remaining := m.Progress.ItemsTotal - m.Progress.ItemsProcessed
	if remaining <= 0 || m.Config.BatchSize <= 0 {
		return 0
	}
	wavesLeft := (remaining + int64(m.Config.BatchSize) - 1) / int64(m.Config.BatchSize)
	return time.Duration(wavesLeft) * m.Config.DelayBetweenBatches
}

// MigrationAnalysis is the read-only pre-flight estimate of a migration.
type MigrationAnalysis struct {
	ItemsTotal        int64         `json:"items_total"`
	Waves             int64         `json:"waves"`
	BatchSize         int           `json:"batch_size"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// ValidationIssue describes one historical record the migration would not be
// able to sync as-is.
type ValidationIssue struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Problem  string `json:"problem"`
}

// ValidationReport summarizes a read-only consistency scan of the source
// dataset. It informs the operator but does not block a migration start.
type ValidationReport struct {
	ScannedAt    time.Time         `json:"scanned_at"`
	ItemsScanned int64             `json:"items_scanned"`
	Issues       []ValidationIssue `json:"issues"`
}
