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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

var syncJobCols = []string{
	"id", "job_id", "entity_id", "operation", "priority", "state", "queue", "trigger_source",
	"attempts", "max_attempts", "migration_id", "batch_id", "worker_id", "last_error",
	"created_at", "last_attempt_at", "next_attempt_at", "completed_at", "meta_data",
}

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func TestCreateSyncJob(t *testing.T) {
	ds, mock := newTestDatasource(t)

	job := &model.SyncJob{
		JobID:       "syncjob_6164573b",
		EntityID:    "billing_0221acd9",
		Operation:   model.OperationUpdate,
		Priority:    model.PriorityMedium,
		Queue:       "ledger_sync",
		Trigger:     model.TriggerManual,
		MaxAttempts: 5,
	}

	mock.ExpectQuery("INSERT INTO ledgersync.sync_jobs").
		WithArgs(job.JobID, job.EntityID, string(job.Operation), string(job.Priority),
			string(model.JobStateWaiting), job.Queue, string(job.Trigger),
			0, job.MaxAttempts, "", "", []byte("null")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	stored, coalesced, err := ds.CreateSyncJob(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, coalesced)
	assert.Equal(t, model.JobStateWaiting, stored.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSyncJobCoalescesIntoOpenJob(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO ledgersync.sync_jobs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_sync_jobs_open_entity"})
	mock.ExpectQuery("SELECT (.+) FROM ledgersync.sync_jobs").
		WillReturnRows(sqlmock.NewRows(syncJobCols).AddRow(
			7, "syncjob_existing", "billing_0221acd9", "update", "medium", "waiting",
			"ledger_sync", "event", 0, 5, nil, nil, nil, nil, now, nil, nil, nil, nil))

	job := &model.SyncJob{
		JobID:       "syncjob_new",
		EntityID:    "billing_0221acd9",
		Operation:   model.OperationUpdate,
		Priority:    model.PriorityMedium,
		Queue:       "ledger_sync",
		Trigger:     model.TriggerManual,
		MaxAttempts: 5,
	}
	stored, coalesced, err := ds.CreateSyncJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, coalesced)
	assert.Equal(t, "syncjob_existing", stored.JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextSyncJob(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("UPDATE ledgersync.sync_jobs").
		WithArgs("ledger_sync", "worker-1").
		WillReturnRows(sqlmock.NewRows(syncJobCols).AddRow(
			3, "syncjob_claimed", "billing_77", "create", "high", "active",
			"ledger_sync", "scheduled", 1, 5, "migration_1", "batch_1", "worker-1", nil,
			now, now, nil, nil, []byte(`{"source":"backfill"}`)))

	job, err := ds.ClaimNextSyncJob(context.Background(), "ledger_sync", "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStateActive, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "migration_1", job.MigrationID)
	assert.Equal(t, "backfill", job.MetaData["source"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextSyncJobDrainedQueue(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("UPDATE ledgersync.sync_jobs").
		WithArgs("ledger_sync", "worker-1").
		WillReturnError(sql.ErrNoRows)

	job, err := ds.ClaimNextSyncJob(context.Background(), "ledger_sync", "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestCompleteSyncJobWrongState(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.sync_jobs").
		WithArgs("syncjob_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.CompleteSyncJob(context.Background(), "syncjob_1")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestDelaySyncJob(t *testing.T) {
	ds, mock := newTestDatasource(t)

	next := time.Now().Add(30 * time.Second)
	mock.ExpectExec("UPDATE ledgersync.sync_jobs").
		WithArgs("syncjob_1", next, "ledger rate limited").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.DelaySyncJob(context.Background(), "syncjob_1", next, "ledger rate limited")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueStaleActiveJobs(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.sync_jobs").
		WithArgs(int64(600)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	requeued, err := ds.RequeueStaleActiveJobs(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), requeued)
}

func TestCountJobStates(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT state, COUNT").
		WithArgs("ledger_sync").
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("waiting", 4).
			AddRow("active", 2).
			AddRow("failed", 1))

	counts, err := ds.CountJobStates(context.Background(), "ledger_sync")
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts["waiting"])
	assert.Equal(t, int64(2), counts["active"])
	assert.Equal(t, int64(1), counts["failed"])
}

func TestQueueErrorStats(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT").
		WithArgs("ledger_sync").
		WillReturnRows(sqlmock.NewRows([]string{"error_rate", "avg_latency"}).AddRow(0.25, 12.5))

	errorRate, avgLatency, err := ds.QueueErrorStats(context.Background(), "ledger_sync")
	require.NoError(t, err)
	assert.Equal(t, 0.25, errorRate)
	assert.Equal(t, 12.5, avgLatency)
}
