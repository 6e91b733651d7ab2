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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

const syncJobColumns = `
	id, job_id, entity_id, operation, priority, state, queue, trigger_source,
	attempts, max_attempts, migration_id, batch_id, worker_id, last_error,
	created_at, last_attempt_at, next_attempt_at, completed_at, meta_data`

// CreateSyncJob inserts a new sync job in the waiting state. When an open job
// already exists for the entity the partial unique index rejects the insert
// and the existing job is returned with coalesced=true.
func (d Datasource) CreateSyncJob(ctx context.Context, job *model.SyncJob) (*model.SyncJob, bool, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Saving sync job to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(job.MetaData)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid job metadata", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO ledgersync.sync_jobs (
			job_id, entity_id, operation, priority, state, queue, trigger_source,
			attempts, max_attempts, migration_id, batch_id, meta_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)
		RETURNING id, created_at
	`, job.JobID, job.EntityID, job.Operation, job.Priority, model.JobStateWaiting,
		job.Queue, job.Trigger, 0, job.MaxAttempts, job.MigrationID, job.BatchID, metaDataJSON,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			existing, lookupErr := d.GetOpenSyncJobByEntity(ctx, job.EntityID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, true, nil
			}
			// The open job reached a terminal state between the insert and
			// the lookup; the caller may simply retry.
			return nil, false, apierror.NewAPIError(apierror.ErrConflict, "enqueue raced a finishing job, retry", err)
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create sync job", err)
	}

	job.State = model.JobStateWaiting
	return job, false, nil
}

// GetSyncJob retrieves a sync job by its ID.
func (d Datasource) GetSyncJob(ctx context.Context, jobID string) (*model.SyncJob, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Fetching sync job from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM ledgersync.sync_jobs WHERE job_id = $1`, syncJobColumns), jobID)
	job, err := scanSyncJob(row)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("sync job %s not found", jobID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch sync job", err)
	}
	return job, nil
}

// GetOpenSyncJobByEntity returns the single waiting/active/delayed job for an
// entity, or nil when none is open.
func (d Datasource) GetOpenSyncJobByEntity(ctx context.Context, entityID string) (*model.SyncJob, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Fetching open sync job for entity")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM ledgersync.sync_jobs
		WHERE entity_id = $1 AND state IN ('waiting', 'active', 'delayed')
	`, syncJobColumns), entityID)
	job, err := scanSyncJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch open sync job", err)
	}
	return job, nil
}

// ClaimNextSyncJob atomically selects and activates the next eligible job:
// waiting, or delayed with a due next_attempt_at, ordered by priority tier
// then age. FOR UPDATE SKIP LOCKED plus the state predicate on the outer
// UPDATE make the claim safe across worker processes. Returns nil when no
// job is eligible.
func (d Datasource) ClaimNextSyncJob(ctx context.Context, queue, workerID string) (*model.SyncJob, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Claiming next sync job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE ledgersync.sync_jobs
		SET state = 'active', worker_id = $2, attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = (
			SELECT id FROM ledgersync.sync_jobs
			WHERE queue = $1
			  AND (state = 'waiting' OR (state = 'delayed' AND next_attempt_at <= NOW()))
			ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		) AND state IN ('waiting', 'delayed')
		RETURNING %s
	`, syncJobColumns), queue, workerID)
	job, err := scanSyncJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to claim sync job", err)
	}
	return job, nil
}

// CompleteSyncJob transitions a job from active to completed.
func (d Datasource) CompleteSyncJob(ctx context.Context, jobID string) error {
	return d.transitionSyncJob(ctx, "Completing sync job", `
		UPDATE ledgersync.sync_jobs
		SET state = 'completed', completed_at = NOW(), last_error = NULL
		WHERE job_id = $1 AND state = 'active'
	`, jobID)
}

// DelaySyncJob transitions a job from active to delayed with a retry deadline.
func (d Datasource) DelaySyncJob(ctx context.Context, jobID string, nextAttemptAt time.Time, lastError string) error {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Delaying sync job for retry")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.sync_jobs
		SET state = 'delayed', next_attempt_at = $2, last_error = $3
		WHERE job_id = $1 AND state = 'active'
	`, jobID, nextAttemptAt, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to delay sync job", err)
	}
	return requireTransition(result, jobID)
}

// FailSyncJob transitions a job from active to the terminal failed state.
func (d Datasource) FailSyncJob(ctx context.Context, jobID string, lastError string) error {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Failing sync job")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.sync_jobs
		SET state = 'failed', completed_at = NOW(), last_error = $2
		WHERE job_id = $1 AND state = 'active'
	`, jobID, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to fail sync job", err)
	}
	return requireTransition(result, jobID)
}

// CancelSyncJob cancels a job in any open state. Active jobs are left to
// their worker; cancellation only prevents further dispatch.
func (d Datasource) CancelSyncJob(ctx context.Context, jobID string) error {
	return d.transitionSyncJob(ctx, "Cancelling sync job", `
		UPDATE ledgersync.sync_jobs
		SET state = 'cancelled', completed_at = NOW()
		WHERE job_id = $1 AND state IN ('waiting', 'delayed')
	`, jobID)
}

func (d Datasource) transitionSyncJob(ctx context.Context, spanName, query, jobID string) error {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, spanName)
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, query, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "sync job state transition failed", err)
	}
	return requireTransition(result, jobID)
}

func requireTransition(result sql.Result, jobID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "sync job state transition failed", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("sync job %s is not in the expected state", jobID), nil)
	}
	return nil
}

// RequeueStaleActiveJobs returns active jobs whose worker has not reported
// within the liveness timeout back to waiting. This is the at-least-once
// delivery path after a worker crash.
func (d Datasource) RequeueStaleActiveJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Requeuing stale active sync jobs")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.sync_jobs
		SET state = 'waiting', worker_id = NULL
		WHERE state = 'active' AND last_attempt_at < NOW() - ($1 * INTERVAL '1 second')
	`, int64(olderThan.Seconds()))
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to requeue stale jobs", err)
	}
	return result.RowsAffected()
}

// RetryFailedJobs re-arms every terminal failed job on the queue with a
// fresh attempt budget.
func (d Datasource) RetryFailedJobs(ctx context.Context, queue string) (int64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Re-arming failed sync jobs")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.sync_jobs
		SET state = 'waiting', attempts = 0, next_attempt_at = NULL, completed_at = NULL, last_error = NULL
		WHERE queue = $1 AND state = 'failed'
		  AND entity_id NOT IN (
			SELECT entity_id FROM ledgersync.sync_jobs WHERE state IN ('waiting', 'active', 'delayed')
		  )
	`, queue)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retry failed jobs", err)
	}
	return result.RowsAffected()
}

// ClearFailedJobs discards every terminal failed job on the queue.
func (d Datasource) ClearFailedJobs(ctx context.Context, queue string) (int64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Clearing failed sync jobs")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM ledgersync.sync_jobs WHERE queue = $1 AND state = 'failed'
	`, queue)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to clear failed jobs", err)
	}
	return result.RowsAffected()
}

// CountJobStates returns the number of jobs per state on a queue.
func (d Datasource) CountJobStates(ctx context.Context, queue string) (map[string]int64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Counting sync job states")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM ledgersync.sync_jobs WHERE queue = $1 GROUP BY state
	`, queue)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to count job states", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan job state counts", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// QueueErrorStats returns the failure ratio over terminal jobs and the
// average seconds from creation to completion.
func (d Datasource) QueueErrorStats(ctx context.Context, queue string) (float64, float64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Computing queue error stats")
	defer span.End()

	var errorRate, avgLatency sql.NullFloat64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(COUNT(*) FILTER (WHERE state = 'failed')::float / NULLIF(COUNT(*), 0), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - created_at))) FILTER (WHERE state = 'completed'), 0)
		FROM ledgersync.sync_jobs
		WHERE queue = $1 AND state IN ('completed', 'failed')
	`, queue).Scan(&errorRate, &avgLatency)
	if err != nil {
		return 0, 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to compute queue stats", err)
	}
	return errorRate.Float64, avgLatency.Float64, nil
}

// CountMigrationJobStates returns per-state counts for jobs generated by one
// migration. The migration controller derives wave progress from this.
func (d Datasource) CountMigrationJobStates(ctx context.Context, migrationID string) (map[string]int64, error) {
	ctx, span := otel.Tracer("SyncJob").Start(ctx, "Counting migration job states")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM ledgersync.sync_jobs WHERE migration_id = $1 GROUP BY state
	`, migrationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to count migration job states", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan migration job counts", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSyncJob(row scannable) (*model.SyncJob, error) {
	job := &model.SyncJob{}
	var migrationID, batchID, workerID, lastError sql.NullString
	var lastAttemptAt, nextAttemptAt, completedAt sql.NullTime
	var metaDataJSON []byte

	err := row.Scan(
		&job.ID, &job.JobID, &job.EntityID, &job.Operation, &job.Priority, &job.State,
		&job.Queue, &job.Trigger, &job.Attempts, &job.MaxAttempts,
		&migrationID, &batchID, &workerID, &lastError,
		&job.CreatedAt, &lastAttemptAt, &nextAttemptAt, &completedAt, &metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	job.MigrationID = migrationID.String
	job.BatchID = batchID.String
	job.WorkerID = workerID.String
	job.LastError = lastError.String
	if lastAttemptAt.Valid {
		job.LastAttemptAt = &lastAttemptAt.Time
	}
	if nextAttemptAt.Valid {
		job.NextAttemptAt = &nextAttemptAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &job.MetaData); err != nil {
			return nil, err
		}
	}
	return job, nil
}
