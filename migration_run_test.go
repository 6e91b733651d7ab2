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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chronoworks/ledgersync/model"
)

func TestAnalyzeMigration(t *testing.T) {
	service, datasource, _ := newTestService(t)

	datasource.On("CountBillingRecords", mock.Anything, (*time.Time)(nil), (*time.Time)(nil), false).
		Return(int64(120), nil)

	analysis, err := service.AnalyzeMigration(context.Background(), model.BatchMigrationConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(120), analysis.ItemsTotal)
	assert.Equal(t, int64(3), analysis.Waves)
	assert.Equal(t, 50, analysis.BatchSize)
	assert.Equal(t, 15*time.Second, analysis.EstimatedDuration)
}

func TestAnalyzeMigrationRejectsInvertedRange(t *testing.T) {
	service, _, _ := newTestService(t)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err := service.AnalyzeMigration(context.Background(), model.BatchMigrationConfig{From: &from, To: &to})
	require.Error(t, err)
}

func TestValidateHistoricalData(t *testing.T) {
	service, datasource, _ := newTestService(t)

	good := approvedRecord("billing_good")
	bad := approvedRecord("billing_bad")
	bad.Currency = ""

	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 50, int64(0)).Return([]*model.BillingRecord{good, bad}, nil)
	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 50, int64(2)).Return([]*model.BillingRecord{}, nil)

	report, err := service.ValidateHistoricalData(context.Background(), model.BatchMigrationConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.ItemsScanned)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "billing_bad", report.Issues[0].EntityID)
}

func TestControlMigrationPause(t *testing.T) {
	service, datasource, _ := newTestService(t)

	datasource.On("UpdateBatchMigrationState", mock.Anything, "migration_1",
		model.MigrationRunning, model.MigrationPaused).Return(nil)
	paused := &model.BatchMigration{MigrationID: "migration_1", State: model.MigrationPaused}
	datasource.On("GetBatchMigration", mock.Anything, "migration_1").Return(paused, nil)

	migration, err := service.ControlMigration(context.Background(), "migration_1", MigrationActionPause, "ops-lead")
	require.NoError(t, err)
	assert.Equal(t, model.MigrationPaused, migration.State)
}

func TestControlMigrationCancel(t *testing.T) {
	service, datasource, _ := newTestService(t)

	datasource.On("FinishBatchMigration", mock.Anything, "migration_1",
		model.MigrationCancelled, "cancelled by operator").Return(nil)
	cancelled := &model.BatchMigration{MigrationID: "migration_1", State: model.MigrationCancelled}
	datasource.On("GetBatchMigration", mock.Anything, "migration_1").Return(cancelled, nil)

	migration, err := service.ControlMigration(context.Background(), "migration_1", MigrationActionCancel, "")
	require.NoError(t, err)
	assert.Equal(t, model.MigrationCancelled, migration.State)
}

func TestControlMigrationCancelRecordsActor(t *testing.T) {
	service, datasource, _ := newTestService(t)

	datasource.On("FinishBatchMigration", mock.Anything, "migration_1",
		model.MigrationCancelled, "cancelled by ops-lead").Return(nil)
	cancelled := &model.BatchMigration{MigrationID: "migration_1", State: model.MigrationCancelled}
	datasource.On("GetBatchMigration", mock.Anything, "migration_1").Return(cancelled, nil)

	_, err := service.ControlMigration(context.Background(), "migration_1", MigrationActionCancel, "ops-lead")
	require.NoError(t, err)
	datasource.AssertExpectations(t)
}

// A dry run walks every wave, validates locally and never touches the ledger
// or the job queue.
func TestStartMigrationDryRun(t *testing.T) {
	service, datasource, ledger := newTestService(t)

	cfg := model.BatchMigrationConfig{
		BatchSize:           2,
		DelayBetweenBatches: time.Millisecond,
		DryRun:              true,
	}
	cfg.ApplyDefaults()

	datasource.On("CreateBatchMigration", mock.Anything, mock.MatchedBy(func(m *model.BatchMigration) bool {
		return m.Config.DryRun && m.InitiatedBy == "ops-lead"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.BatchMigration).StartedAt = time.Now()
	}).Return(nil)
	datasource.On("CountBillingRecords", mock.Anything, (*time.Time)(nil), (*time.Time)(nil), false).
		Return(int64(3), nil)
	datasource.On("SetMigrationTotals", mock.Anything, mock.Anything, int64(3)).Return(nil)
	datasource.On("UpdateBatchMigrationState", mock.Anything, mock.Anything,
		model.MigrationPending, model.MigrationRunning).Return(nil)

	good := approvedRecord("billing_1")
	bad := approvedRecord("billing_2")
	bad.Currency = ""
	last := approvedRecord("billing_3")

	progress := func(processed, succeeded, failed int64) *model.BatchMigration {
		return &model.BatchMigration{
			MigrationID: "migration_dry",
			Config:      cfg,
			State:       model.MigrationRunning,
			Progress: model.MigrationProgress{
				ItemsTotal: 3, ItemsProcessed: processed,
				ItemsSucceeded: succeeded, ItemsFailed: failed,
			},
		}
	}
	datasource.On("GetBatchMigration", mock.Anything, mock.Anything).Return(progress(0, 0, 0), nil).Once()
	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 2, int64(0)).Return([]*model.BillingRecord{good, bad}, nil)
	datasource.On("UpdateMigrationProgress", mock.Anything, mock.Anything,
		int64(2), int64(1), int64(1)).Return(nil)

	datasource.On("GetBatchMigration", mock.Anything, mock.Anything).Return(progress(2, 1, 1), nil).Once()
	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 2, int64(2)).Return([]*model.BillingRecord{last}, nil)
	datasource.On("UpdateMigrationProgress", mock.Anything, mock.Anything,
		int64(1), int64(1), int64(0)).Return(nil)

	datasource.On("GetBatchMigration", mock.Anything, mock.Anything).Return(progress(3, 2, 1), nil).Once()

	finished := make(chan struct{})
	datasource.On("FinishBatchMigration", mock.Anything, mock.Anything,
		model.MigrationCompleted, "").Run(func(mock.Arguments) {
		close(finished)
	}).Return(nil)

	migration, err := service.StartMigration(context.Background(), cfg, "ops-lead")
	require.NoError(t, err)
	assert.Equal(t, model.MigrationRunning, migration.State)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("dry run migration did not finish")
	}

	ledger.AssertNotCalled(t, "SyncRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "CreateSyncJob", mock.Anything, mock.Anything)
}

// A pause observed at the wave boundary stops the runner before it fetches
// another page.
func TestMigrationPauseStopsWaveGeneration(t *testing.T) {
	service, datasource, _ := newTestService(t)

	cfg := model.BatchMigrationConfig{
		BatchSize:           2,
		DelayBetweenBatches: time.Millisecond,
		DryRun:              true,
	}
	cfg.ApplyDefaults()

	snapshot := func(state model.MigrationState, processed int64) *model.BatchMigration {
		return &model.BatchMigration{
			MigrationID: "migration_paused",
			Config:      cfg,
			State:       state,
			Progress: model.MigrationProgress{
				ItemsTotal: 4, ItemsProcessed: processed,
				ItemsSucceeded: processed,
			},
		}
	}
	datasource.On("GetBatchMigration", mock.Anything, "migration_paused").
		Return(snapshot(model.MigrationRunning, 0), nil).Once()
	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 2, int64(0)).
		Return([]*model.BillingRecord{approvedRecord("billing_1"), approvedRecord("billing_2")}, nil).Once()
	datasource.On("UpdateMigrationProgress", mock.Anything, "migration_paused",
		int64(2), int64(2), int64(0)).Return(nil)
	datasource.On("GetBatchMigration", mock.Anything, "migration_paused").
		Return(snapshot(model.MigrationPaused, 2), nil).Once()

	service.runMigration(context.Background(), "migration_paused")

	datasource.AssertExpectations(t)
	datasource.AssertNumberOfCalls(t, "GetBillingRecordsPaginated", 1)
	datasource.AssertNotCalled(t, "FinishBatchMigration", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// A wave whose failure rate crosses the threshold fails the whole migration.
func TestMigrationFailsOnThreshold(t *testing.T) {
	service, datasource, _ := newTestService(t)

	cfg := model.BatchMigrationConfig{
		BatchSize:           2,
		DelayBetweenBatches: time.Millisecond,
		DryRun:              true,
		FailureThreshold:    0.4,
	}
	cfg.ApplyDefaults()

	bad1 := approvedRecord("billing_1")
	bad1.Currency = ""
	good := approvedRecord("billing_2")

	running := &model.BatchMigration{
		MigrationID: "migration_bad",
		Config:      cfg,
		State:       model.MigrationRunning,
		Progress:    model.MigrationProgress{ItemsTotal: 4},
	}
	datasource.On("GetBatchMigration", mock.Anything, "migration_bad").Return(running, nil)
	datasource.On("GetBillingRecordsPaginated", mock.Anything, (*time.Time)(nil), (*time.Time)(nil),
		false, 2, int64(0)).Return([]*model.BillingRecord{bad1, good}, nil)
	datasource.On("UpdateMigrationProgress", mock.Anything, "migration_bad",
		int64(2), int64(1), int64(1)).Return(nil)

	finished := make(chan string, 1)
	datasource.On("FinishBatchMigration", mock.Anything, "migration_bad",
		model.MigrationFailed, mock.Anything).Run(func(args mock.Arguments) {
		finished <- args.String(3)
	}).Return(nil)

	service.runMigration(context.Background(), "migration_bad")

	select {
	case reason := <-finished:
		assert.Contains(t, reason, "threshold")
	default:
		t.Fatal("migration was not failed")
	}
}
