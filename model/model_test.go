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

package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEnqueueOptionsDefaults(t *testing.T) {
	opts := EnqueueOptions{EntityID: "TS-100"}
	opts.ApplyDefaults()

	assert.Equal(t, OperationUpdate, opts.Operation)
	assert.Equal(t, PriorityMedium, opts.Priority)
	assert.Equal(t, TriggerManual, opts.Trigger)
	assert.Equal(t, DefaultQueue, opts.Queue)
	assert.Equal(t, DefaultMaxAttempts, opts.MaxAttempts)
	assert.NoError(t, opts.Validate())
}

func TestEnqueueOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    EnqueueOptions
		wantErr bool
	}{
		{
			name:    "missing entity id",
			opts:    EnqueueOptions{Operation: OperationCreate, Priority: PriorityHigh, Trigger: TriggerEvent},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			opts:    EnqueueOptions{EntityID: "TS-1", Operation: "upsert", Priority: PriorityHigh, Trigger: TriggerEvent},
			wantErr: true,
		},
		{
			name:    "unknown priority",
			opts:    EnqueueOptions{EntityID: "TS-1", Operation: OperationCreate, Priority: "urgent", Trigger: TriggerEvent},
			wantErr: true,
		},
		{
			name:    "valid",
			opts:    EnqueueOptions{EntityID: "TS-1", Operation: OperationReconcile, Priority: PriorityLow, Trigger: TriggerScheduled},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobStateTerminal(t *testing.T) {
	assert.True(t, JobStateCompleted.IsTerminal())
	assert.True(t, JobStateFailed.IsTerminal())
	assert.True(t, JobStateCancelled.IsTerminal())
	assert.False(t, JobStateWaiting.IsTerminal())
	assert.False(t, JobStateActive.IsTerminal())
	assert.False(t, JobStateDelayed.IsTerminal())
}

func TestIdempotencyKey(t *testing.T) {
	job := &SyncJob{EntityID: "TS-100", Operation: OperationUpdate}
	assert.Equal(t, "TS-100:update", job.IdempotencyKey())
}

func TestBatchMigrationConfigDefaults(t *testing.T) {
	cfg := BatchMigrationConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultMigrationBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultMigrationDelay, cfg.DelayBetweenBatches)
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestBatchMigrationConfigInvertedRange(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)
	cfg := BatchMigrationConfig{From: &from, To: &to}
	cfg.ApplyDefaults()

	assert.Error(t, cfg.Validate())
}

func TestMigrationProgressPercent(t *testing.T) {
	p := MigrationProgress{ItemsTotal: 120, ItemsProcessed: 30}
	assert.InDelta(t, 25.0, p.PercentComplete(), 0.001)

	empty := MigrationProgress{}
	assert.Equal(t, 0.0, empty.PercentComplete())
}

func TestEstimatedRemaining(t *testing.T) {
	m := &BatchMigration{
		Config:   BatchMigrationConfig{BatchSize: 50, DelayBetweenBatches: 5 * time.Second},
		Progress: MigrationProgress{ItemsTotal: 120, ItemsProcessed: 50},
	}
	// 70 items left at 50 per wave is two more waves.
	assert.Equal(t, 10*time.Second, m.EstimatedRemaining())

	m.Progress.ItemsProcessed = 120
	assert.Equal(t, time.Duration(0), m.EstimatedRemaining())
}

func TestQuarantineStatusOpen(t *testing.T) {
	assert.True(t, QuarantinePending.IsOpen())
	assert.True(t, QuarantineInReview.IsOpen())
	assert.False(t, QuarantineResolved.IsOpen())
	assert.False(t, QuarantineRejected.IsOpen())
}

func TestBillingRecordValidate(t *testing.T) {
	valid := BillingRecord{
		RecordID:    "TS-100",
		ProjectID:   "prj_1",
		UserID:      "usr_1",
		PeriodStart: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 5, 7, 0, 0, 0, 0, time.UTC),
		Hours:       decimal.NewFromInt(40),
		Amount:      decimal.NewFromFloat(4200.50),
		Currency:    "USD",
	}
	assert.NoError(t, valid.Validate())

	missingProject := valid
	missingProject.ProjectID = ""
	assert.Error(t, missingProject.Validate())

	negativeHours := valid
	negativeHours.Hours = decimal.NewFromInt(-1)
	assert.Error(t, negativeHours.Validate())

	invertedPeriod := valid
	invertedPeriod.PeriodEnd = invertedPeriod.PeriodStart.AddDate(0, 0, -1)
	assert.Error(t, invertedPeriod.Validate())
}

func TestApplyCorrections(t *testing.T) {
	record := BillingRecord{
		RecordID:  "TS-101",
		ProjectID: "prj_1",
		UserID:    "usr_1",
		Hours:     decimal.NewFromInt(8),
		Amount:    decimal.NewFromInt(800),
		Currency:  "USD",
	}

	err := record.ApplyCorrections(map[string]interface{}{
		"amount":     42.0,
		"project_id": "prj_2",
		"note":       "corrected after review",
	})
	assert.NoError(t, err)
	assert.True(t, record.Amount.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, "prj_2", record.ProjectID)
	assert.Equal(t, "corrected after review", record.MetaData["note"])

	err = record.ApplyCorrections(map[string]interface{}{"hours": true})
	assert.Error(t, err)

	err = record.ApplyCorrections(map[string]interface{}{"currency": 7})
	assert.Error(t, err)
}
