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
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

const billingColumns = `
	id, record_id, project_id, user_id, period_start, period_end, hours, amount,
	currency, status, ledger_ref, synced_at, created_at, meta_data`

// GetBillingRecord retrieves one billing record by its ID.
func (d Datasource) GetBillingRecord(ctx context.Context, recordID string) (*model.BillingRecord, error) {
	ctx, span := otel.Tracer("Billing").Start(ctx, "Fetching billing record")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM ledgersync.billing_records WHERE record_id = $1
	`, billingColumns), recordID)
	record, err := scanBillingRecord(row)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("billing record %s not found", recordID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch billing record", err)
	}
	return record, nil
}

// billingFilter builds the shared WHERE clause of the migration source scan.
// Drafts never migrate; rejected records are opt-in.
func billingFilter(from, to *time.Time, includeRejected bool, args *[]interface{}) string {
	conditions := []string{"status != 'draft'"}
	if !includeRejected {
		conditions = append(conditions, "status != 'rejected'")
	}
	if from != nil {
		*args = append(*args, *from)
		conditions = append(conditions, fmt.Sprintf("period_start >= $%d", len(*args)))
	}
	if to != nil {
		*args = append(*args, *to)
		conditions = append(conditions, fmt.Sprintf("period_start <= $%d", len(*args)))
	}
	return strings.Join(conditions, " AND ")
}

// GetBillingRecordsPaginated returns one migration wave of historical records
// in stable creation order.
func (d Datasource) GetBillingRecordsPaginated(ctx context.Context, from, to *time.Time, includeRejected bool, batchSize int, offset int64) ([]*model.BillingRecord, error) {
	ctx, span := otel.Tracer("Billing").Start(ctx, "Fetching billing records page")
	defer span.End()

	args := []interface{}{}
	where := billingFilter(from, to, includeRejected, &args)
	args = append(args, batchSize, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM ledgersync.billing_records
		WHERE %s
		ORDER BY created_at, id
		LIMIT $%d OFFSET $%d
	`, billingColumns, where, len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch billing records", err)
	}
	defer rows.Close()

	records := []*model.BillingRecord{}
	for rows.Next() {
		record, err := scanBillingRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan billing record", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountBillingRecords counts the records a migration over the given range
// would touch.
func (d Datasource) CountBillingRecords(ctx context.Context, from, to *time.Time, includeRejected bool) (int64, error) {
	ctx, span := otel.Tracer("Billing").Start(ctx, "Counting billing records")
	defer span.End()

	args := []interface{}{}
	where := billingFilter(from, to, includeRejected, &args)

	var total int64
	err := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM ledgersync.billing_records WHERE %s`, where),
		args...).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to count billing records", err)
	}
	return total, nil
}

// UpdateBillingRecordData writes back the correctable fields of a record
// after a quarantine review merged operator corrections into it.
func (d Datasource) UpdateBillingRecordData(ctx context.Context, record *model.BillingRecord) error {
	ctx, span := otel.Tracer("Billing").Start(ctx, "Updating billing record data")
	defer span.End()

	metaDataJSON, err := json.Marshal(record.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "invalid record metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.billing_records
		SET project_id = $2, user_id = $3, currency = $4, hours = $5, amount = $6, meta_data = $7
		WHERE record_id = $1
	`, record.RecordID, record.ProjectID, record.UserID, record.Currency,
		record.Hours, record.Amount, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update billing record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update billing record", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("billing record %s not found", record.RecordID), nil)
	}
	return nil
}

// MarkBillingRecordSynced stamps a record with the ledger's entry reference
// after a successful sync.
func (d Datasource) MarkBillingRecordSynced(ctx context.Context, recordID, ledgerRef string) error {
	ctx, span := otel.Tracer("Billing").Start(ctx, "Marking billing record synced")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.billing_records
		SET status = 'synced', ledger_ref = $2, synced_at = NOW()
		WHERE record_id = $1
	`, recordID, ledgerRef)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to mark billing record synced", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to mark billing record synced", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("billing record %s not found", recordID), nil)
	}
	return nil
}

func scanBillingRecord(row scannable) (*model.BillingRecord, error) {
	record := &model.BillingRecord{}
	var projectID, userID, currency, ledgerRef sql.NullString
	var syncedAt sql.NullTime
	var metaDataJSON []byte

	err := row.Scan(
		&record.ID, &record.RecordID, &projectID, &userID,
		&record.PeriodStart, &record.PeriodEnd, &record.Hours, &record.Amount,
		&currency, &record.Status, &ledgerRef, &syncedAt, &record.CreatedAt, &metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	record.ProjectID = projectID.String
	record.UserID = userID.String
	record.Currency = currency.String
	record.LedgerRef = ledgerRef.String
	if syncedAt.Valid {
		record.SyncedAt = &syncedAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &record.MetaData); err != nil {
			return nil, err
		}
	}
	return record, nil
}
