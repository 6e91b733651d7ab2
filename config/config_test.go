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

package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://ledger.example.com",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://ledger.example.com",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "ledger base URL is required" {
		t.Errorf("Expected ledger base URL required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://ledger.example.com",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
	if cnf.Queue.Name != "ledger_sync" {
		t.Errorf("Expected default queue name, got %s", cnf.Queue.Name)
	}
	if cnf.Queue.MaxWorkers != 10 {
		t.Errorf("Expected default max workers 10, got %d", cnf.Queue.MaxWorkers)
	}
	if cnf.Queue.PollInterval() != 2*time.Second {
		t.Errorf("Expected 2s poll interval, got %v", cnf.Queue.PollInterval())
	}
	if cnf.Queue.LivenessTimeout() != 10*time.Minute {
		t.Errorf("Expected 10m liveness timeout, got %v", cnf.Queue.LivenessTimeout())
	}
	if cnf.Migration.FailureThreshold != 0.5 {
		t.Errorf("Expected 0.5 failure threshold, got %f", cnf.Migration.FailureThreshold)
	}
	if cnf.Ledger.TimeoutSec != 30 {
		t.Errorf("Expected 30s ledger timeout, got %d", cnf.Ledger.TimeoutSec)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ledgersync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "temp-redis",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://ledger.example.com",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	os.Setenv("LEDGERSYNC_PROJECT_NAME", "Env Project")
	defer os.Unsetenv("LEDGERSYNC_PROJECT_NAME")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected env var to override project name, got %s", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected data source from file, got %s", loadedConfig.DataSource.Dns)
	}
}
