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

	"github.com/sirupsen/logrus"

	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/database"
	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/internal/notification"
	"github.com/chronoworks/ledgersync/model"
)

// SystemActor is recorded when the pipeline itself, not an operator, changes
// queue state (e.g. an auth failure halting dispatch).
const SystemActor = "system"

// EnqueueSync creates a sync job for one entity. If the entity already has an
// open job the call coalesces into it and reports that instead of creating a
// duplicate. The entity must exist before it can be queued.
func (l *Ledgersync) EnqueueSync(ctx context.Context, options model.EnqueueOptions) (*model.SyncJob, bool, error) {
	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if _, err := l.datasource.GetBillingRecord(ctx, options.EntityID); err != nil {
		return nil, false, err
	}

	job := &model.SyncJob{
		JobID:       database.GenerateUUIDWithSuffix("syncjob"),
		EntityID:    options.EntityID,
		Operation:   options.Operation,
		Priority:    options.Priority,
		Queue:       options.Queue,
		Trigger:     options.Trigger,
		MaxAttempts: options.MaxAttempts,
		MigrationID: options.MigrationID,
		BatchID:     options.BatchID,
		MetaData:    options.MetaData,
	}
	stored, coalesced, err := l.datasource.CreateSyncJob(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if coalesced {
		logrus.Infof("enqueue for %s coalesced into open job %s", options.EntityID, stored.JobID)
	}
	return stored, coalesced, nil
}

// BatchEnqueueResult reports the outcome of one entity in a batch enqueue.
type BatchEnqueueResult struct {
	EntityID  string `json:"entity_id"`
	JobID     string `json:"job_id,omitempty"`
	Coalesced bool   `json:"coalesced"`
	Error     string `json:"error,omitempty"`
}

// BatchSelection names the records a batch enqueue covers: an explicit entity
// list, a period date range, or both (the list narrowed by the range is not
// supported; an explicit list wins). Without Force, range selection skips
// records already marked synced; Force re-enqueues them too. Force cannot
// bypass coalescing: an entity with an open job still folds into it.
type BatchSelection struct {
	EntityIDs []string
	From      *time.Time
	To        *time.Time
	Force     bool
}

// batchResolvePageSize bounds one page of a date-range scan.
const batchResolvePageSize = 200

// EnqueueBatchSync enqueues the selected entities under a shared batch ID.
// Entities are enqueued independently: one bad entity does not sink the
// batch, its result just carries the error.
func (l *Ledgersync) EnqueueBatchSync(ctx context.Context, selection BatchSelection, options model.EnqueueOptions) (string, []BatchEnqueueResult, error) {
	entityIDs := selection.EntityIDs
	if len(entityIDs) == 0 {
		if selection.From == nil && selection.To == nil {
			return "", nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				"batch enqueue needs entity ids or a date range", nil)
		}
		resolved, err := l.resolveBatchEntities(ctx, selection)
		if err != nil {
			return "", nil, err
		}
		entityIDs = resolved
	}

	batchID := database.GenerateUUIDWithSuffix("batch")
	results := make([]BatchEnqueueResult, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		opts := options
		opts.EntityID = entityID
		opts.BatchID = batchID
		job, coalesced, err := l.EnqueueSync(ctx, opts)
		result := BatchEnqueueResult{EntityID: entityID, Coalesced: coalesced}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.JobID = job.JobID
		}
		results = append(results, result)
	}
	return batchID, results, nil
}

// resolveBatchEntities pages through the billing records whose period falls
// in the selection's range. Already-synced records are skipped unless the
// selection forces a re-sync.
func (l *Ledgersync) resolveBatchEntities(ctx context.Context, selection BatchSelection) ([]string, error) {
	var entityIDs []string
	var offset int64
	for {
		records, err := l.datasource.GetBillingRecordsPaginated(ctx, selection.From, selection.To,
			false, batchResolvePageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		for _, record := range records {
			if record.Status == model.BillingStatusSynced && !selection.Force {
				continue
			}
			entityIDs = append(entityIDs, record.RecordID)
		}
		offset += int64(len(records))
	}
	if len(entityIDs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			"no billing records match the batch date range", nil)
	}
	return entityIDs, nil
}

// GetSyncJob retrieves a sync job by ID.
func (l *Ledgersync) GetSyncJob(ctx context.Context, jobID string) (*model.SyncJob, error) {
	return l.datasource.GetSyncJob(ctx, jobID)
}

// CancelSyncJob cancels a waiting or delayed job.
func (l *Ledgersync) CancelSyncJob(ctx context.Context, jobID string) error {
	return l.datasource.CancelSyncJob(ctx, jobID)
}

// PauseQueue durably stops dispatch on a queue. Jobs keep accumulating and
// in-flight jobs finish; nothing new is claimed until the queue resumes. The
// acting identity is persisted with the flag.
func (l *Ledgersync) PauseQueue(ctx context.Context, queue, reason, actor string) error {
	if err := l.datasource.SetQueuePaused(ctx, queue, true, reason, actor); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"queue": queue, "actor": actor}).Warnf("queue paused: %s", reason)
	return nil
}

// ResumeQueue clears the pause flag on a queue.
func (l *Ledgersync) ResumeQueue(ctx context.Context, queue, actor string) error {
	if err := l.datasource.SetQueuePaused(ctx, queue, false, "", actor); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"queue": queue, "actor": actor}).Info("queue resumed")
	return nil
}

// RetryFailedJobs re-arms every terminal failed job on the queue.
func (l *Ledgersync) RetryFailedJobs(ctx context.Context, queue, actor string) (int64, error) {
	retried, err := l.datasource.RetryFailedJobs(ctx, queue)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"queue": queue, "actor": actor}).Infof("re-armed %d failed job(s)", retried)
	return retried, nil
}

// ClearFailedJobs discards every terminal failed job on the queue.
func (l *Ledgersync) ClearFailedJobs(ctx context.Context, queue, actor string) (int64, error) {
	cleared, err := l.datasource.ClearFailedJobs(ctx, queue)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"queue": queue, "actor": actor}).Infof("cleared %d failed job(s)", cleared)
	return cleared, nil
}

// GetQueueStatus returns a snapshot of a queue: per-state depths, the pause
// flag, the failure ratio and the average completion latency.
func (l *Ledgersync) GetQueueStatus(ctx context.Context, queue string) (*model.QueueStatus, error) {
	counts, err := l.datasource.CountJobStates(ctx, queue)
	if err != nil {
		return nil, err
	}
	paused, reason, err := l.datasource.IsQueuePaused(ctx, queue)
	if err != nil {
		return nil, err
	}
	errorRate, avgLatency, err := l.datasource.QueueErrorStats(ctx, queue)
	if err != nil {
		return nil, err
	}
	return &model.QueueStatus{
		Queue:          queue,
		Paused:         paused,
		PausedReason:   reason,
		StateCounts:    counts,
		ErrorRate:      errorRate,
		AvgLatencySecs: avgLatency,
	}, nil
}

// processJob executes one claimed job end to end: load the record, push it to
// the ledger under the job's idempotency key, and settle the outcome.
func (l *Ledgersync) processJob(ctx context.Context, job *model.SyncJob) error {
	record, err := l.datasource.GetBillingRecord(ctx, job.EntityID)
	if err != nil {
		return l.ReportOutcome(ctx, job, nil, err)
	}

	receipt, syncErr := l.ledger.SyncRecord(ctx, job.Operation, record, job.IdempotencyKey())
	return l.ReportOutcome(ctx, job, receipt, syncErr)
}

// ReportOutcome settles a finished attempt. On success the job completes and
// the record is stamped with the ledger reference. On failure the error
// classifier decides between a delayed retry, quarantine, and halting the
// queue outright.
func (l *Ledgersync) ReportOutcome(ctx context.Context, job *model.SyncJob, receipt *LedgerReceipt, syncErr error) error {
	if syncErr == nil {
		if err := l.datasource.CompleteSyncJob(ctx, job.JobID); err != nil {
			return err
		}
		if receipt != nil {
			if err := l.datasource.MarkBillingRecordSynced(ctx, job.EntityID, receipt.LedgerRef); err != nil {
				logrus.Errorf("job %s completed but marking record %s synced failed: %v", job.JobID, job.EntityID, err)
			}
		}
		return nil
	}

	classification := Classify(syncErr, job.Attempts, job.MaxAttempts)
	logrus.WithFields(logrus.Fields{
		"job":      job.JobID,
		"entity":   job.EntityID,
		"attempt":  job.Attempts,
		"category": classification.Category,
	}).Warnf("sync attempt failed: %v", syncErr)

	if classification.Retry {
		delay, err := l.retryDelay(classification, job.Attempts)
		if err != nil {
			return err
		}
		return l.datasource.DelaySyncJob(ctx, job.JobID, time.Now().Add(delay), syncErr.Error())
	}

	if err := l.datasource.FailSyncJob(ctx, job.JobID, syncErr.Error()); err != nil {
		return err
	}
	l.publishEvent(ctx, EventJobFailed, map[string]interface{}{
		"job_id":    job.JobID,
		"entity_id": job.EntityID,
		"category":  string(classification.Category),
		"error":     syncErr.Error(),
	})
	if classification.Category == CategoryInternal {
		// Not retryable and not reviewable; someone has to look at the code.
		notification.NotifyError(fmt.Errorf("job %s for %s failed on internal error: %v", job.JobID, job.EntityID, syncErr))
	}

	if classification.Quarantine {
		if _, err := l.CaptureQuarantine(ctx, job, classification, syncErr); err != nil {
			return err
		}
	}
	if classification.HaltQueue {
		reason := fmt.Sprintf("halted on %s failure: %v", classification.Category, syncErr)
		if err := l.PauseQueue(ctx, job.Queue, reason, SystemActor); err != nil {
			return err
		}
	}
	return nil
}

// retryDelay picks the next retry delay, honoring the ledger's own throttle
// hint when it is longer than the computed backoff.
func (l *Ledgersync) retryDelay(classification Classification, attempt int) (time.Duration, error) {
	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	delay := RetryDelay(conf.Queue.BackoffBase(), conf.Queue.BackoffCap(), attempt)
	if classification.RetryAfter > delay {
		delay = classification.RetryAfter
	}
	return delay, nil
}
