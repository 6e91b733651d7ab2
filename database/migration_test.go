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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

func TestCreateBatchMigration(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("INSERT INTO ledgersync.batch_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "started_at"}).AddRow(1, time.Now()))

	migration := &model.BatchMigration{
		MigrationID: "migration_1",
		Config: model.BatchMigrationConfig{
			BatchSize:           50,
			DelayBetweenBatches: 5 * time.Second,
			MaxRetries:          5,
			FailureThreshold:    0.5,
		},
	}
	err := ds.CreateBatchMigration(context.Background(), migration)
	require.NoError(t, err)
	assert.Equal(t, model.MigrationPending, migration.State)
}

func TestUpdateBatchMigrationStateRejectsWrongPriorState(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.batch_migrations").
		WithArgs("migration_1", string(model.MigrationRunning), string(model.MigrationPaused)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateBatchMigrationState(context.Background(), "migration_1",
		model.MigrationRunning, model.MigrationPaused)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestFinishBatchMigrationIsIdempotentGuarded(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.batch_migrations").
		WithArgs("migration_1", string(model.MigrationFailed), "failure rate 0.62 exceeded threshold 0.50").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.FinishBatchMigration(context.Background(), "migration_1",
		model.MigrationFailed, "failure rate 0.62 exceeded threshold 0.50")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE ledgersync.batch_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = ds.FinishBatchMigration(context.Background(), "migration_1",
		model.MigrationCancelled, "")
	require.Error(t, err)
}

func TestGetBatchMigration(t *testing.T) {
	ds, mock := newTestDatasource(t)

	configJSON := `{"batch_size":25,"delay_between_batches":5000000000,"max_retries":5,"dry_run":false,"include_rejected":false,"failure_threshold":0.5}`
	mock.ExpectQuery("SELECT (.+) FROM ledgersync.batch_migrations").
		WithArgs("migration_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "migration_id", "config", "state", "items_total", "items_processed",
			"items_succeeded", "items_failed", "initiated_by", "failure_reason", "started_at", "completed_at",
		}).AddRow(1, "migration_1", []byte(configJSON), "running", 120, 50, 48, 2, "ops-lead", nil, time.Now(), nil))

	migration, err := ds.GetBatchMigration(context.Background(), "migration_1")
	require.NoError(t, err)
	assert.Equal(t, 25, migration.Config.BatchSize)
	assert.Equal(t, int64(120), migration.Progress.ItemsTotal)
	assert.Equal(t, "ops-lead", migration.InitiatedBy)
	assert.InDelta(t, 41.66, migration.Progress.PercentComplete(), 0.01)
}
