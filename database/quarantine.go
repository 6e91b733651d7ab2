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

	"go.opentelemetry.io/otel"

	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

const quarantineColumns = `
	id, quarantine_id, entity_type, entity_id, status, priority, reason,
	error_detail, occurrences, corrected_data, created_at, last_seen_at,
	resolved_at, resolved_by, resolution_notes`

// UpsertQuarantineRecord captures a failed entity. A repeat capture for an
// entity with an open record increments its occurrence counter and refreshes
// the failure detail instead of opening a second record; priority only
// escalates, never drops. The row as stored is returned.
func (d Datasource) UpsertQuarantineRecord(ctx context.Context, record *model.QuarantineRecord) (*model.QuarantineRecord, error) {
	ctx, span := otel.Tracer("Quarantine").Start(ctx, "Upserting quarantine record")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO ledgersync.quarantine_records (
			quarantine_id, entity_type, entity_id, status, priority, reason, error_detail
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (entity_type, entity_id) WHERE status IN ('pending', 'in_review')
		DO UPDATE SET
			occurrences = ledgersync.quarantine_records.occurrences + 1,
			last_seen_at = NOW(),
			reason = EXCLUDED.reason,
			error_detail = EXCLUDED.error_detail,
			priority = CASE
				WHEN EXCLUDED.priority = 'high' THEN 'high'
				WHEN EXCLUDED.priority = 'medium' AND ledgersync.quarantine_records.priority = 'low' THEN 'medium'
				ELSE ledgersync.quarantine_records.priority
			END
		RETURNING %s
	`, quarantineColumns), record.QuarantineID, record.EntityType, record.EntityID,
		model.QuarantinePending, record.Priority, record.Reason, record.ErrorDetail)

	stored, err := scanQuarantineRecord(row)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to upsert quarantine record", err)
	}
	return stored, nil
}

// GetQuarantineRecord retrieves a quarantine record by its ID.
func (d Datasource) GetQuarantineRecord(ctx context.Context, quarantineID string) (*model.QuarantineRecord, error) {
	ctx, span := otel.Tracer("Quarantine").Start(ctx, "Fetching quarantine record")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM ledgersync.quarantine_records WHERE quarantine_id = $1
	`, quarantineColumns), quarantineID)
	record, err := scanQuarantineRecord(row)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("quarantine record %s not found", quarantineID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch quarantine record", err)
	}
	return record, nil
}

// ListQuarantineRecords returns a filtered page of the operator worklist,
// ordered by priority tier then age.
func (d Datasource) ListQuarantineRecords(ctx context.Context, filters model.QuarantineFilters, page, pageSize int) ([]*model.QuarantineRecord, error) {
	ctx, span := otel.Tracer("Quarantine").Start(ctx, "Listing quarantine records")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	conditions := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.EntityType != "" {
		conditions = append(conditions, "entity_type = "+arg(filters.EntityType))
	}
	if filters.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filters.Status)))
	}
	if filters.Priority != "" {
		conditions = append(conditions, "priority = "+arg(string(filters.Priority)))
	}
	if filters.From != nil {
		conditions = append(conditions, "created_at >= "+arg(*filters.From))
	}
	if filters.To != nil {
		conditions = append(conditions, "created_at <= "+arg(*filters.To))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM ledgersync.quarantine_records
		WHERE %s
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at
		LIMIT %s OFFSET %s
	`, quarantineColumns, strings.Join(conditions, " AND "),
		arg(pageSize), arg(int64(page-1)*int64(pageSize)))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list quarantine records", err)
	}
	defer rows.Close()

	records := []*model.QuarantineRecord{}
	for rows.Next() {
		record, err := scanQuarantineRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan quarantine record", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CloseQuarantineRecord moves an open record to a terminal status with the
// reviewer's identity and notes. Closing an already-terminal record reports
// a conflict so double reviews surface instead of silently overwriting.
func (d Datasource) CloseQuarantineRecord(ctx context.Context, quarantineID string, status model.QuarantineStatus, reviewerID, notes string) error {
	ctx, span := otel.Tracer("Quarantine").Start(ctx, "Closing quarantine record")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.quarantine_records
		SET status = $2, resolved_at = NOW(), resolved_by = $3, resolution_notes = NULLIF($4, '')
		WHERE quarantine_id = $1 AND status IN ('pending', 'in_review')
	`, quarantineID, status, reviewerID, notes)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to close quarantine record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to close quarantine record", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrAlreadyResolved,
			fmt.Sprintf("quarantine record %s is already closed", quarantineID), nil)
	}
	return nil
}

// MarkQuarantineInReview stores an operator's corrected data and moves the
// record to in_review. Used when a correction fails validation and needs
// another pass.
func (d Datasource) MarkQuarantineInReview(ctx context.Context, quarantineID string, correctedData map[string]interface{}) error {
	ctx, span := otel.Tracer("Quarantine").Start(ctx, "Marking quarantine record in review")
	defer span.End()

	correctedJSON, err := json.Marshal(correctedData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "invalid corrected data", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersync.quarantine_records
		SET status = 'in_review', corrected_data = $2
		WHERE quarantine_id = $1 AND status IN ('pending', 'in_review')
	`, quarantineID, correctedJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to mark quarantine record in review", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to mark quarantine record in review", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrAlreadyResolved,
			fmt.Sprintf("quarantine record %s is already closed", quarantineID), nil)
	}
	return nil
}

func scanQuarantineRecord(row scannable) (*model.QuarantineRecord, error) {
	record := &model.QuarantineRecord{}
	var errorDetail, resolvedBy, resolutionNotes sql.NullString
	var resolvedAt sql.NullTime
	var correctedJSON []byte

	err := row.Scan(
		&record.ID, &record.QuarantineID, &record.EntityType, &record.EntityID,
		&record.Status, &record.Priority, &record.Reason, &errorDetail,
		&record.Occurrences, &correctedJSON, &record.CreatedAt, &record.LastSeenAt,
		&resolvedAt, &resolvedBy, &resolutionNotes,
	)
	if err != nil {
		return nil, err
	}

	record.ErrorDetail = errorDetail.String
	record.ResolvedBy = resolvedBy.String
	record.ResolutionNotes = resolutionNotes.String
	if resolvedAt.Valid {
		record.ResolvedAt = &resolvedAt.Time
	}
	if len(correctedJSON) > 0 {
		if err := json.Unmarshal(correctedJSON, &record.CorrectedData); err != nil {
			return nil, err
		}
	}
	return record, nil
}
