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
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/chronoworks/ledgersync/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS ledgersync`); err != nil {
		return nil, err
	}
	err = createSyncJobTable(db)
	if err != nil {
		return nil, err
	}
	err = createQueueControlTable(db)
	if err != nil {
		return nil, err
	}
	err = createBatchMigrationTable(db)
	if err != nil {
		return nil, err
	}
	err = createQuarantineTable(db)
	if err != nil {
		return nil, err
	}
	err = createBillingRecordTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	idWithSuffix := fmt.Sprintf("%s_%s", module, id.String())
	return idWithSuffix
}

// createSyncJobTable creates the sync job table. The partial unique index on
// entity_id is what enforces the single-open-job-per-entity invariant: a
// second insert for an entity with a waiting, active or delayed job fails
// with a unique violation and the caller coalesces into the existing job.
func createSyncJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgersync.sync_jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK (operation IN ('create', 'update', 'reconcile')),
			priority TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
			state TEXT NOT NULL CHECK (state IN ('waiting', 'active', 'completed', 'failed', 'delayed', 'cancelled')),
			queue TEXT NOT NULL,
			trigger_source TEXT NOT NULL CHECK (trigger_source IN ('manual', 'scheduled', 'event')),
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL,
			migration_id TEXT,
			batch_id TEXT,
			worker_id TEXT,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_attempt_at TIMESTAMP,
			next_attempt_at TIMESTAMP,
			completed_at TIMESTAMP,
			meta_data JSONB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_open_entity
			ON ledgersync.sync_jobs (entity_id)
			WHERE state IN ('waiting', 'active', 'delayed');
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_dispatch
			ON ledgersync.sync_jobs (queue, state, next_attempt_at);
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_migration
			ON ledgersync.sync_jobs (migration_id) WHERE migration_id IS NOT NULL;
	`)
	if err != nil {
		log.Printf("Error creating sync_jobs table: %v", err)
	}
	return err
}

func createQueueControlTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgersync.queue_controls (
			queue TEXT PRIMARY KEY,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			paused_reason TEXT,
			updated_by TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating queue_controls table: %v", err)
	}
	return err
}

func createBatchMigrationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgersync.batch_migrations (
			id SERIAL PRIMARY KEY,
			migration_id TEXT NOT NULL UNIQUE,
			config JSONB NOT NULL,
			state TEXT NOT NULL CHECK (state IN ('pending', 'running', 'paused', 'cancelled', 'completed', 'failed')),
			items_total BIGINT NOT NULL DEFAULT 0,
			items_processed BIGINT NOT NULL DEFAULT 0,
			items_succeeded BIGINT NOT NULL DEFAULT 0,
			items_failed BIGINT NOT NULL DEFAULT 0,
			initiated_by TEXT,
			failure_reason TEXT,
			started_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		log.Printf("Error creating batch_migrations table: %v", err)
	}
	return err
}

// createQuarantineTable creates the quarantine table. The partial unique
// index keeps at most one open record per (entity_type, entity_id); repeat
// captures upsert into the open row.
func createQuarantineTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgersync.quarantine_records (
			id SERIAL PRIMARY KEY,
			quarantine_id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'in_review', 'resolved', 'rejected')),
			priority TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
			reason TEXT NOT NULL,
			error_detail TEXT,
			occurrences INT NOT NULL DEFAULT 1,
			corrected_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_seen_at TIMESTAMP NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMP,
			resolved_by TEXT,
			resolution_notes TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_quarantine_open_entity
			ON ledgersync.quarantine_records (entity_type, entity_id)
			WHERE status IN ('pending', 'in_review');
		CREATE INDEX IF NOT EXISTS idx_quarantine_worklist
			ON ledgersync.quarantine_records (status, priority, created_at);
	`)
	if err != nil {
		log.Printf("Error creating quarantine_records table: %v", err)
	}
	return err
}

// createBillingRecordTable creates the pipeline's view of billing records.
// The record-management layer writes these rows; the pipeline reads them for
// sync and migrations and updates sync status and corrected data.
func createBillingRecordTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgersync.billing_records (
			id SERIAL PRIMARY KEY,
			record_id TEXT NOT NULL UNIQUE,
			project_id TEXT,
			user_id TEXT,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			hours NUMERIC(10, 2) NOT NULL DEFAULT 0,
			amount NUMERIC(20, 4) NOT NULL DEFAULT 0,
			currency TEXT,
			status TEXT NOT NULL DEFAULT 'approved',
			ledger_ref TEXT,
			synced_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_billing_records_period
			ON ledgersync.billing_records (period_start, status);
	`)
	if err != nil {
		log.Printf("Error creating billing_records table: %v", err)
	}
	return err
}
