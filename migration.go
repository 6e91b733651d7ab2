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
	redlock "github.com/chronoworks/ledgersync/internal/lock"
	"github.com/chronoworks/ledgersync/model"
)

// MigrationControlAction is an operator command against a running migration.
type MigrationControlAction string

const (
	MigrationActionPause  MigrationControlAction = "pause"
	MigrationActionResume MigrationControlAction = "resume"
	MigrationActionCancel MigrationControlAction = "cancel"
)

// runnerLockWait bounds how long a relaunched runner waits for the previous
// runner to let go of the migration lock.
const runnerLockWait = 30 * time.Second

// AnalyzeMigration is the read-only pre-flight: it reports how many records
// the given configuration would touch and how long the replay would take at
// the configured cadence. It writes nothing.
func (l *Ledgersync) AnalyzeMigration(ctx context.Context, cfg model.BatchMigrationConfig) (*model.MigrationAnalysis, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	total, err := l.datasource.CountBillingRecords(ctx, cfg.From, cfg.To, cfg.IncludeRejected)
	if err != nil {
		return nil, err
	}

	waves := (total + int64(cfg.BatchSize) - 1) / int64(cfg.BatchSize)
	return &model.MigrationAnalysis{
		ItemsTotal:        total,
		Waves:             waves,
		BatchSize:         cfg.BatchSize,
		EstimatedDuration: time.Duration(waves) * cfg.DelayBetweenBatches,
	}, nil
}

// ValidateHistoricalData scans the records a migration would replay and
// reports the ones the ledger would reject as-is. The scan is read-only and
// does not block a subsequent start; it exists so operators can clean data
// first instead of harvesting quarantine records later.
func (l *Ledgersync) ValidateHistoricalData(ctx context.Context, cfg model.BatchMigrationConfig) (*model.ValidationReport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	report := &model.ValidationReport{ScannedAt: time.Now(), Issues: []model.ValidationIssue{}}
	var offset int64
	for {
		records, err := l.datasource.GetBillingRecordsPaginated(ctx, cfg.From, cfg.To, cfg.IncludeRejected, cfg.BatchSize, offset)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		for _, record := range records {
			report.ItemsScanned++
			if err := record.Validate(); err != nil {
				report.Issues = append(report.Issues, model.ValidationIssue{
					EntityID: record.RecordID,
					Problem:  err.Error(),
				})
			}
		}
		offset += int64(len(records))
	}
	return report, nil
}

// StartMigration creates a migration and launches its wave runner. The
// runner holds a redis lock on the migration id, so a duplicate start or a
// racing resume cannot produce two runners. The acting identity is stored on
// the migration record.
func (l *Ledgersync) StartMigration(ctx context.Context, cfg model.BatchMigrationConfig, actor string) (*model.BatchMigration, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	migration := &model.BatchMigration{
		MigrationID: database.GenerateUUIDWithSuffix("migration"),
		Config:      cfg,
		InitiatedBy: actor,
	}
	if err := l.datasource.CreateBatchMigration(ctx, migration); err != nil {
		return nil, err
	}

	total, err := l.datasource.CountBillingRecords(ctx, cfg.From, cfg.To, cfg.IncludeRejected)
	if err != nil {
		return nil, err
	}
	if err := l.datasource.SetMigrationTotals(ctx, migration.MigrationID, total); err != nil {
		return nil, err
	}
	migration.Progress.ItemsTotal = total

	if err := l.datasource.UpdateBatchMigrationState(ctx, migration.MigrationID, model.MigrationPending, model.MigrationRunning); err != nil {
		return nil, err
	}
	migration.State = model.MigrationRunning

	go l.runMigration(context.Background(), migration.MigrationID)
	return migration, nil
}

// GetMigrationProgress returns the migration with its live counters.
func (l *Ledgersync) GetMigrationProgress(ctx context.Context, migrationID string) (*model.BatchMigration, error) {
	return l.datasource.GetBatchMigration(ctx, migrationID)
}

// ControlMigration applies an operator command. Pause takes effect at the
// next wave boundary: the in-flight wave always settles. Resume relaunches
// the runner from the recorded progress. Cancel is terminal; jobs already
// enqueued still drain but no further waves are generated. The acting
// identity lands in the control log and, for cancel, in the failure reason.
func (l *Ledgersync) ControlMigration(ctx context.Context, migrationID string, action MigrationControlAction, actor string) (*model.BatchMigration, error) {
	switch action {
	case MigrationActionPause:
		if err := l.datasource.UpdateBatchMigrationState(ctx, migrationID, model.MigrationRunning, model.MigrationPaused); err != nil {
			return nil, err
		}
	case MigrationActionResume:
		if err := l.datasource.UpdateBatchMigrationState(ctx, migrationID, model.MigrationPaused, model.MigrationRunning); err != nil {
			return nil, err
		}
		go l.runMigration(context.Background(), migrationID)
	case MigrationActionCancel:
		reason := "cancelled by operator"
		if actor != "" {
			reason = fmt.Sprintf("cancelled by %s", actor)
		}
		if err := l.datasource.FinishBatchMigration(ctx, migrationID, model.MigrationCancelled, reason); err != nil {
			return nil, err
		}
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("unknown migration action %q", action), nil)
	}
	logrus.WithFields(logrus.Fields{"migration": migrationID, "actor": actor}).Infof("migration %s applied", action)
	return l.datasource.GetBatchMigration(ctx, migrationID)
}

// runMigration is the wave loop. It replays the source dataset in batches:
// each wave enqueues one page of records, waits for those jobs to settle,
// folds the outcome into the progress counters and checks the failure
// threshold. Dry runs validate locally and never enqueue anything.
func (l *Ledgersync) runMigration(ctx context.Context, migrationID string) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("migration %s: %v", migrationID, err)
		return
	}

	lockTimeout := time.Duration(conf.Migration.LockTimeoutSec) * time.Second
	locker := redlock.NewLocker(l.redis, "migration:"+migrationID, database.GenerateUUIDWithSuffix("runner"))
	// A resume can race the previous runner, which releases the lock only
	// after it observes the pause at the next wave boundary. Wait out that
	// window instead of failing the relaunch.
	if err := locker.WaitLock(ctx, lockTimeout, runnerLockWait); err != nil {
		logrus.Warnf("migration %s: %v", migrationID, err)
		return
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("migration %s: %v", migrationID, err)
		}
	}()

	for {
		migration, err := l.datasource.GetBatchMigration(ctx, migrationID)
		if err != nil {
			logrus.Errorf("migration %s: %v", migrationID, err)
			return
		}
		if migration.State != model.MigrationRunning {
			logrus.Infof("migration %s runner stopping in state %s", migrationID, migration.State)
			return
		}
		if migration.Progress.ItemsProcessed >= migration.Progress.ItemsTotal {
			l.finishMigration(ctx, migration, model.MigrationCompleted, "")
			return
		}

		if err := locker.ExtendLock(ctx, lockTimeout); err != nil {
			logrus.Warnf("migration %s lost its runner lock: %v", migrationID, err)
			return
		}

		processed, succeeded, failed, err := l.runWave(ctx, migration)
		if err != nil {
			logrus.Errorf("migration %s wave failed: %v", migrationID, err)
			l.finishMigration(ctx, migration, model.MigrationFailed, err.Error())
			return
		}
		if processed == 0 {
			// The source dataset shrank under us; treat the remainder as done.
			l.finishMigration(ctx, migration, model.MigrationCompleted, "")
			return
		}

		if err := l.datasource.UpdateMigrationProgress(ctx, migrationID, processed, succeeded, failed); err != nil {
			logrus.Errorf("migration %s: %v", migrationID, err)
			return
		}

		if failureRate := float64(failed) / float64(processed); failureRate > migration.Config.FailureThreshold {
			reason := fmt.Sprintf("wave failure rate %.2f exceeded threshold %.2f", failureRate, migration.Config.FailureThreshold)
			l.finishMigration(ctx, migration, model.MigrationFailed, reason)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(migration.Config.DelayBetweenBatches):
		}
	}
}

// runWave processes one batch of source records and reports its outcome
// counts. Dry-run waves validate records in place; live waves enqueue sync
// jobs tagged with the migration id and wait for them to settle.
func (l *Ledgersync) runWave(ctx context.Context, migration *model.BatchMigration) (processed, succeeded, failed int64, err error) {
	cfg := migration.Config
	records, err := l.datasource.GetBillingRecordsPaginated(ctx, cfg.From, cfg.To, cfg.IncludeRejected,
		cfg.BatchSize, migration.Progress.ItemsProcessed)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, 0, nil
	}

	if cfg.DryRun {
		for _, record := range records {
			if validationErr := record.Validate(); validationErr != nil {
				failed++
			} else {
				succeeded++
			}
		}
		return int64(len(records)), succeeded, failed, nil
	}

	before, err := l.datasource.CountMigrationJobStates(ctx, migration.MigrationID)
	if err != nil {
		return 0, 0, 0, err
	}

	for _, record := range records {
		_, _, enqueueErr := l.EnqueueSync(ctx, model.EnqueueOptions{
			EntityID:    record.RecordID,
			Operation:   model.OperationCreate,
			Priority:    model.PriorityLow,
			Trigger:     model.TriggerScheduled,
			MaxAttempts: cfg.MaxRetries,
			MigrationID: migration.MigrationID,
		})
		if enqueueErr != nil {
			logrus.Errorf("migration %s: enqueue of %s failed: %v", migration.MigrationID, record.RecordID, enqueueErr)
			failed++
		}
	}

	if err := l.waitForWave(ctx, migration.MigrationID); err != nil {
		return 0, 0, 0, err
	}

	after, err := l.datasource.CountMigrationJobStates(ctx, migration.MigrationID)
	if err != nil {
		return 0, 0, 0, err
	}
	succeeded += after["completed"] - before["completed"]
	failed += after["failed"] - before["failed"]
	return int64(len(records)), succeeded, failed, nil
}

// waitForWave blocks until no job of the migration is open. Jobs delayed for
// retry count as open, so a wave's outcome includes its retries.
func (l *Ledgersync) waitForWave(ctx context.Context, migrationID string) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	for {
		counts, err := l.datasource.CountMigrationJobStates(ctx, migrationID)
		if err != nil {
			return err
		}
		if counts["waiting"]+counts["active"]+counts["delayed"] == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(conf.Queue.PollInterval()):
		}
	}
}

func (l *Ledgersync) finishMigration(ctx context.Context, migration *model.BatchMigration, state model.MigrationState, reason string) {
	if err := l.datasource.FinishBatchMigration(ctx, migration.MigrationID, state, reason); err != nil {
		logrus.Errorf("migration %s: %v", migration.MigrationID, err)
		return
	}

	event := EventMigrationCompleted
	if state == model.MigrationFailed {
		event = EventMigrationFailed
		logrus.Errorf("migration %s failed: %s", migration.MigrationID, reason)
	} else {
		logrus.Infof("migration %s finished as %s", migration.MigrationID, state)
	}
	l.publishEvent(ctx, event, map[string]interface{}{
		"migration_id": migration.MigrationID,
		"state":        string(state),
		"reason":       reason,
	})
}
