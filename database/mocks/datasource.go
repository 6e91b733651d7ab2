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

// Package mocks provides a testify mock of the datasource for service tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/chronoworks/ledgersync/model"
)

// MockDataSource implements database.IDataSource for tests.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) CreateSyncJob(ctx context.Context, job *model.SyncJob) (*model.SyncJob, bool, error) {
	args := m.Called(ctx, job)
	var stored *model.SyncJob
	if args.Get(0) != nil {
		stored = args.Get(0).(*model.SyncJob)
	}
	return stored, args.Bool(1), args.Error(2)
}

func (m *MockDataSource) GetSyncJob(ctx context.Context, jobID string) (*model.SyncJob, error) {
	args := m.Called(ctx, jobID)
	var job *model.SyncJob
	if args.Get(0) != nil {
		job = args.Get(0).(*model.SyncJob)
	}
	return job, args.Error(1)
}

func (m *MockDataSource) GetOpenSyncJobByEntity(ctx context.Context, entityID string) (*model.SyncJob, error) {
	args := m.Called(ctx, entityID)
	var job *model.SyncJob
	if args.Get(0) != nil {
		job = args.Get(0).(*model.SyncJob)
	}
	return job, args.Error(1)
}

func (m *MockDataSource) ClaimNextSyncJob(ctx context.Context, queue, workerID string) (*model.SyncJob, error) {
	args := m.Called(ctx, queue, workerID)
	var job *model.SyncJob
	if args.Get(0) != nil {
		job = args.Get(0).(*model.SyncJob)
	}
	return job, args.Error(1)
}

func (m *MockDataSource) CompleteSyncJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) DelaySyncJob(ctx context.Context, jobID string, nextAttemptAt time.Time, lastError string) error {
	args := m.Called(ctx, jobID, nextAttemptAt, lastError)
	return args.Error(0)
}

func (m *MockDataSource) FailSyncJob(ctx context.Context, jobID string, lastError string) error {
	args := m.Called(ctx, jobID, lastError)
	return args.Error(0)
}

func (m *MockDataSource) CancelSyncJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) RequeueStaleActiveJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) RetryFailedJobs(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ClearFailedJobs(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CountJobStates(ctx context.Context, queue string) (map[string]int64, error) {
	args := m.Called(ctx, queue)
	var counts map[string]int64
	if args.Get(0) != nil {
		counts = args.Get(0).(map[string]int64)
	}
	return counts, args.Error(1)
}

func (m *MockDataSource) QueueErrorStats(ctx context.Context, queue string) (float64, float64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

func (m *MockDataSource) CountMigrationJobStates(ctx context.Context, migrationID string) (map[string]int64, error) {
	args := m.Called(ctx, migrationID)
	var counts map[string]int64
	if args.Get(0) != nil {
		counts = args.Get(0).(map[string]int64)
	}
	return counts, args.Error(1)
}

func (m *MockDataSource) SetQueuePaused(ctx context.Context, queue string, paused bool, reason, actor string) error {
	args := m.Called(ctx, queue, paused, reason, actor)
	return args.Error(0)
}

func (m *MockDataSource) IsQueuePaused(ctx context.Context, queue string) (bool, string, error) {
	args := m.Called(ctx, queue)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *MockDataSource) CreateBatchMigration(ctx context.Context, migration *model.BatchMigration) error {
	args := m.Called(ctx, migration)
	return args.Error(0)
}

func (m *MockDataSource) GetBatchMigration(ctx context.Context, migrationID string) (*model.BatchMigration, error) {
	args := m.Called(ctx, migrationID)
	var migration *model.BatchMigration
	if args.Get(0) != nil {
		migration = args.Get(0).(*model.BatchMigration)
	}
	return migration, args.Error(1)
}

func (m *MockDataSource) UpdateBatchMigrationState(ctx context.Context, migrationID string, from, to model.MigrationState) error {
	args := m.Called(ctx, migrationID, from, to)
	return args.Error(0)
}

func (m *MockDataSource) FinishBatchMigration(ctx context.Context, migrationID string, to model.MigrationState, reason string) error {
	args := m.Called(ctx, migrationID, to, reason)
	return args.Error(0)
}

func (m *MockDataSource) SetMigrationTotals(ctx context.Context, migrationID string, total int64) error {
	args := m.Called(ctx, migrationID, total)
	return args.Error(0)
}

func (m *MockDataSource) UpdateMigrationProgress(ctx context.Context, migrationID string, processed, succeeded, failed int64) error {
	args := m.Called(ctx, migrationID, processed, succeeded, failed)
	return args.Error(0)
}

func (m *MockDataSource) UpsertQuarantineRecord(ctx context.Context, record *model.QuarantineRecord) (*model.QuarantineRecord, error) {
	args := m.Called(ctx, record)
	var stored *model.QuarantineRecord
	if args.Get(0) != nil {
		stored = args.Get(0).(*model.QuarantineRecord)
	}
	return stored, args.Error(1)
}

func (m *MockDataSource) GetQuarantineRecord(ctx context.Context, quarantineID string) (*model.QuarantineRecord, error) {
	args := m.Called(ctx, quarantineID)
	var record *model.QuarantineRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*model.QuarantineRecord)
	}
	return record, args.Error(1)
}

func (m *MockDataSource) ListQuarantineRecords(ctx context.Context, filters model.QuarantineFilters, page, pageSize int) ([]*model.QuarantineRecord, error) {
	args := m.Called(ctx, filters, page, pageSize)
	var records []*model.QuarantineRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]*model.QuarantineRecord)
	}
	return records, args.Error(1)
}

func (m *MockDataSource) CloseQuarantineRecord(ctx context.Context, quarantineID string, status model.QuarantineStatus, reviewerID, notes string) error {
	args := m.Called(ctx, quarantineID, status, reviewerID, notes)
	return args.Error(0)
}

func (m *MockDataSource) MarkQuarantineInReview(ctx context.Context, quarantineID string, correctedData map[string]interface{}) error {
	args := m.Called(ctx, quarantineID, correctedData)
	return args.Error(0)
}

func (m *MockDataSource) GetBillingRecord(ctx context.Context, recordID string) (*model.BillingRecord, error) {
	args := m.Called(ctx, recordID)
	var record *model.BillingRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*model.BillingRecord)
	}
	return record, args.Error(1)
}

func (m *MockDataSource) GetBillingRecordsPaginated(ctx context.Context, from, to *time.Time, includeRejected bool, batchSize int, offset int64) ([]*model.BillingRecord, error) {
	args := m.Called(ctx, from, to, includeRejected, batchSize, offset)
	var records []*model.BillingRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]*model.BillingRecord)
	}
	return records, args.Error(1)
}

func (m *MockDataSource) CountBillingRecords(ctx context.Context, from, to *time.Time, includeRejected bool) (int64, error) {
	args := m.Called(ctx, from, to, includeRejected)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) UpdateBillingRecordData(ctx context.Context, record *model.BillingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) MarkBillingRecordSynced(ctx context.Context, recordID, ledgerRef string) error {
	args := m.Called(ctx, recordID, ledgerRef)
	return args.Error(0)
}
