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

	"go.opentelemetry.io/otel"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

// CreateBatchMigration persists a new migration in the pending state.
func (d Datasource) CreateBatchMigration(ctx context.Context, migration *model.BatchMigration) error {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Saving batch migration to db")
	defer span.End()

	configJSON, err := json.Marshal(migration.Config)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "invalid migration config", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO ledgersync.batch_migrations (migration_id, config, state, initiated_by)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, started_at
	`, migration.MigrationID, configJSON, model.MigrationPending, migration.InitiatedBy).Scan(&migration.ID, &migration.StartedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to create batch migration", err)
	}

	migration.State = model.MigrationPending
	return nil
}

// GetBatchMigration retrieves a migration with its progress counters.
func (d Datasource) GetBatchMigration(ctx context.Context, migrationID string) (*model.BatchMigration, error) {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Fetching batch migration from db")
	defer span.End()

	migration := &model.BatchMigration{}
	var configJSON []byte
	var initiatedBy, failureReason sql.NullString
	var completedAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, migration_id, config, state, items_total, items_processed,
			items_succeeded, items_failed, initiated_by, failure_reason, started_at, completed_at
		FROM ledgersync.batch_migrations WHERE migration_id = $1
	`, migrationID).Scan(
		&migration.ID, &migration.MigrationID, &configJSON, &migration.State,
		&migration.Progress.ItemsTotal, &migration.Progress.ItemsProcessed,
		&migration.Progress.ItemsSucceeded, &migration.Progress.ItemsFailed,
		&initiatedBy, &failureReason, &migration.StartedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("migration %s not found", migrationID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch batch migration", err)
	}

	if err := json.Unmarshal(configJSON, &migration.Config); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "corrupt migration config", err)
	}
	migration.InitiatedBy = initiatedBy.String
	migration.FailureReason = failureReason.String
	if completedAt.Valid {
		migration.CompletedAt = &completedAt.Time
	}
	return migration, nil
}

// UpdateBatchMigrationState moves a migration between non-terminal states.
// The update is conditional on the expected prior state so concurrent control
// requests cannot produce an illegal transition.
func (d Datasource) UpdateBatchMigrationState(ctx context.Context, migrationID string, from, to model.MigrationState) error {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Updating batch migration state")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.batch_migrations SET state = $3 WHERE migration_id = $1 AND state = $2
	`, migrationID, from, to)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update migration state", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update migration state", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("migration %s is not in state %s", migrationID, from), nil)
	}
	return nil
}

// FinishBatchMigration moves a migration into a terminal state and stamps
// completion. Already-terminal migrations are left untouched.
func (d Datasource) FinishBatchMigration(ctx context.Context, migrationID string, to model.MigrationState, reason string) error {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Finishing batch migration")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.batch_migrations
		SET state = $2, failure_reason = NULLIF($3, ''), completed_at = NOW()
		WHERE migration_id = $1 AND state NOT IN ('cancelled', 'completed', 'failed')
	`, migrationID, to, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to finish migration", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to finish migration", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("migration %s already finished", migrationID), nil)
	}
	return nil
}

// SetMigrationTotals records the item total discovered during the initial scan.
func (d Datasource) SetMigrationTotals(ctx context.Context, migrationID string, total int64) error {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Setting migration totals")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.batch_migrations SET items_total = $2 WHERE migration_id = $1
	`, migrationID, total)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to set migration totals", err)
	}
	return nil
}

// UpdateMigrationProgress adds a wave's outcome to the aggregate counters.
// Counters only grow; the processed count is clamped to the total.
func (d Datasource) UpdateMigrationProgress(ctx context.Context, migrationID string, processed, succeeded, failed int64) error {
	ctx, span := otel.Tracer("Migration").Start(ctx, "Updating migration progress")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.batch_migrations
		SET items_processed = LEAST(items_processed + $2, items_total),
			items_succeeded = items_succeeded + $3,
			items_failed = items_failed + $4
		WHERE migration_id = $1
	`, migrationID, processed, succeeded, failed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update migration progress", err)
	}
	return nil
}
