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

var quarantineCols = []string{
	"id", "quarantine_id", "entity_type", "entity_id", "status", "priority", "reason",
	"error_detail", "occurrences", "corrected_data", "created_at", "last_seen_at",
	"resolved_at", "resolved_by", "resolution_notes",
}

func TestUpsertQuarantineRecordIncrementsOccurrences(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO ledgersync.quarantine_records").
		WillReturnRows(sqlmock.NewRows(quarantineCols).AddRow(
			5, "quarantine_1", "billing_record", "billing_42", "pending", "medium",
			"validation failed", "currency is required", 3, nil, now, now, nil, nil, nil))

	record := &model.QuarantineRecord{
		QuarantineID: "quarantine_new",
		EntityType:   "billing_record",
		EntityID:     "billing_42",
		Priority:     model.QuarantinePriorityMedium,
		Reason:       "validation failed",
		ErrorDetail:  "currency is required",
	}
	stored, err := ds.UpsertQuarantineRecord(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "quarantine_1", stored.QuarantineID)
	assert.Equal(t, 3, stored.Occurrences)
	assert.Equal(t, model.QuarantinePending, stored.Status)
}

func TestCloseQuarantineRecordAlreadyClosed(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.quarantine_records").
		WithArgs("quarantine_1", string(model.QuarantineResolved), "reviewer-9", "fixed currency").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.CloseQuarantineRecord(context.Background(), "quarantine_1", model.QuarantineResolved, "reviewer-9", "fixed currency")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrAlreadyResolved, apiErr.Code)
}

func TestListQuarantineRecordsWithFilters(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM ledgersync.quarantine_records").
		WithArgs("billing_record", "pending", 20, int64(0)).
		WillReturnRows(sqlmock.NewRows(quarantineCols).AddRow(
			1, "quarantine_1", "billing_record", "billing_7", "pending", "high",
			"authorization failed", nil, 1, nil, now, now, nil, nil, nil))

	records, err := ds.ListQuarantineRecords(context.Background(), model.QuarantineFilters{
		EntityType: "billing_record",
		Status:     model.QuarantinePending,
	}, 1, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.QuarantinePriorityHigh, records[0].Priority)
}

func TestMarkQuarantineInReview(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE ledgersync.quarantine_records").
		WithArgs("quarantine_1", []byte(`{"currency":"EUR"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.MarkQuarantineInReview(context.Background(), "quarantine_1",
		map[string]interface{}{"currency": "EUR"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
