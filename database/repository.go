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

package database

import (
	"context"
	"time"

	"github.com/chronoworks/ledgersync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	syncJob        // Interface for sync job lifecycle operations
	queueControl   // Interface for queue pause/resume flags
	batchMigration // Interface for batch migration state and progress
	quarantine     // Interface for quarantine records
	billing        // Interface for the synced billing record view
}

// syncJob defines methods for handling sync jobs. All state transitions are
// single-row conditional updates so that concurrent workers on separate
// processes cannot double-claim or resurrect a job.
type syncJob interface {
	CreateSyncJob(ctx context.Context, job *model.SyncJob) (*model.SyncJob, bool, error)                // Inserts a job; returns the existing open job (and true) when coalesced
	GetSyncJob(ctx context.Context, jobID string) (*model.SyncJob, error)                               // Retrieves a job by ID
	GetOpenSyncJobByEntity(ctx context.Context, entityID string) (*model.SyncJob, error)                // Retrieves the open job for an entity, if any
	ClaimNextSyncJob(ctx context.Context, queue, workerID string) (*model.SyncJob, error)               // Atomically claims the next eligible job; nil when the queue is drained
	CompleteSyncJob(ctx context.Context, jobID string) error                                            // active -> completed
	DelaySyncJob(ctx context.Context, jobID string, nextAttemptAt time.Time, lastError string) error    // active -> delayed with a backoff deadline
	FailSyncJob(ctx context.Context, jobID string, lastError string) error                              // active -> failed
	CancelSyncJob(ctx context.Context, jobID string) error                                              // any open state -> cancelled
	RequeueStaleActiveJobs(ctx context.Context, olderThan time.Duration) (int64, error)                 // Requeues active jobs whose worker went silent
	RetryFailedJobs(ctx context.Context, queue string) (int64, error)                                   // Re-arms terminal failed jobs
	ClearFailedJobs(ctx context.Context, queue string) (int64, error)                                   // Discards terminal failed jobs
	CountJobStates(ctx context.Context, queue string) (map[string]int64, error)                         // Per-state job counts
	QueueErrorStats(ctx context.Context, queue string) (errorRate float64, avgLatency float64, e error) // Failure ratio and average completion latency
	CountMigrationJobStates(ctx context.Context, migrationID string) (map[string]int64, error)          // Per-state counts of a migration's jobs
}

// queueControl defines methods for the durable pause flag of a queue. The
// actor is recorded for audit.
type queueControl interface {
	SetQueuePaused(ctx context.Context, queue string, paused bool, reason, actor string) error
	IsQueuePaused(ctx context.Context, queue string) (bool, string, error)
}

// batchMigration defines methods for migration state and progress. State
// changes are compare-and-swap on the expected prior state.
type batchMigration interface {
	CreateBatchMigration(ctx context.Context, migration *model.BatchMigration) error
	GetBatchMigration(ctx context.Context, migrationID string) (*model.BatchMigration, error)
	UpdateBatchMigrationState(ctx context.Context, migrationID string, from, to model.MigrationState) error
	FinishBatchMigration(ctx context.Context, migrationID string, to model.MigrationState, reason string) error
	SetMigrationTotals(ctx context.Context, migrationID string, total int64) error
	UpdateMigrationProgress(ctx context.Context, migrationID string, processed, succeeded, failed int64) error
}

// quarantine defines methods for quarantine capture and review.
type quarantine interface {
	UpsertQuarantineRecord(ctx context.Context, record *model.QuarantineRecord) (*model.QuarantineRecord, error)
	GetQuarantineRecord(ctx context.Context, quarantineID string) (*model.QuarantineRecord, error)
	ListQuarantineRecords(ctx context.Context, filters model.QuarantineFilters, page, pageSize int) ([]*model.QuarantineRecord, error)
	CloseQuarantineRecord(ctx context.Context, quarantineID string, status model.QuarantineStatus, reviewerID, notes string) error
	MarkQuarantineInReview(ctx context.Context, quarantineID string, correctedData map[string]interface{}) error
}

// billing defines the pipeline's read/update surface over billing records.
type billing interface {
	GetBillingRecord(ctx context.Context, recordID string) (*model.BillingRecord, error)
	GetBillingRecordsPaginated(ctx context.Context, from, to *time.Time, includeRejected bool, batchSize int, offset int64) ([]*model.BillingRecord, error)
	CountBillingRecords(ctx context.Context, from, to *time.Time, includeRejected bool) (int64, error)
	UpdateBillingRecordData(ctx context.Context, record *model.BillingRecord) error
	MarkBillingRecordSynced(ctx context.Context, recordID, ledgerRef string) error
}
