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
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"LEDGERSYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"LEDGERSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEDGERSYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"LEDGERSYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"LEDGERSYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"LEDGERSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSYNC_REDIS_DNS"`
}

// LedgerConfig describes the external accounting system the pipeline writes to.
type LedgerConfig struct {
	BaseURL    string `json:"base_url" envconfig:"LEDGERSYNC_LEDGER_BASE_URL"`
	APIToken   string `json:"api_token" envconfig:"LEDGERSYNC_LEDGER_API_TOKEN"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"LEDGERSYNC_LEDGER_TIMEOUT_SEC"`
}

// QueueConfig tunes the sync job dispatcher.
type QueueConfig struct {
	Name                string `json:"name" envconfig:"LEDGERSYNC_QUEUE_NAME"`
	NotificationQueue   string `json:"notification_queue" envconfig:"LEDGERSYNC_QUEUE_NOTIFICATION_QUEUE"`
	MaxWorkers          int    `json:"max_workers" envconfig:"LEDGERSYNC_QUEUE_MAX_WORKERS"`
	MaxAttempts         int    `json:"max_attempts" envconfig:"LEDGERSYNC_QUEUE_MAX_ATTEMPTS"`
	PollIntervalSec     int    `json:"poll_interval_sec" envconfig:"LEDGERSYNC_QUEUE_POLL_INTERVAL_SEC"`
	BackoffBaseSec      int    `json:"backoff_base_sec" envconfig:"LEDGERSYNC_QUEUE_BACKOFF_BASE_SEC"`
	BackoffCapSec       int    `json:"backoff_cap_sec" envconfig:"LEDGERSYNC_QUEUE_BACKOFF_CAP_SEC"`
	LivenessTimeoutSec  int    `json:"liveness_timeout_sec" envconfig:"LEDGERSYNC_QUEUE_LIVENESS_TIMEOUT_SEC"`
	RecoveryIntervalSec int    `json:"recovery_interval_sec" envconfig:"LEDGERSYNC_QUEUE_RECOVERY_INTERVAL_SEC"`
	MonitoringPort      string `json:"monitoring_port" envconfig:"LEDGERSYNC_QUEUE_MONITORING_PORT"`
}

// MigrationConfig tunes the batch migration controller.
type MigrationConfig struct {
	DefaultBatchSize int     `json:"default_batch_size" envconfig:"LEDGERSYNC_MIGRATION_DEFAULT_BATCH_SIZE"`
	DefaultDelaySec  int     `json:"default_delay_sec" envconfig:"LEDGERSYNC_MIGRATION_DEFAULT_DELAY_SEC"`
	FailureThreshold float64 `json:"failure_threshold" envconfig:"LEDGERSYNC_MIGRATION_FAILURE_THRESHOLD"`
	LockTimeoutSec   int     `json:"lock_timeout_sec" envconfig:"LEDGERSYNC_MIGRATION_LOCK_TIMEOUT_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEDGERSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEDGERSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEDGERSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"LEDGERSYNC_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Ledger       LedgerConfig     `json:"ledger"`
	Queue        QueueConfig      `json:"queue"`
	Migration    MigrationConfig  `json:"migration"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ledgersync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called ledgersync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Ledgersync Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Ledger.BaseURL == "" {
		log.Println("Error: Ledger base URL is empty. It's a required field.")
		return errors.New("ledger base URL is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Ledger.BaseURL = strings.TrimSpace(cnf.Ledger.BaseURL)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.applyDefaults()
	cnf.Migration.applyDefaults()

	if cnf.Ledger.TimeoutSec <= 0 {
		cnf.Ledger.TimeoutSec = 30
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) applyDefaults() {
	if q.Name == "" {
		q.Name = "ledger_sync"
	}
	if q.NotificationQueue == "" {
		q.NotificationQueue = "pipeline_events"
	}
	if q.MaxWorkers <= 0 {
		q.MaxWorkers = 10
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 5
	}
	if q.PollIntervalSec <= 0 {
		q.PollIntervalSec = 2
	}
	if q.BackoffBaseSec <= 0 {
		q.BackoffBaseSec = 30
	}
	if q.BackoffCapSec <= 0 {
		q.BackoffCapSec = 1800
	}
	if q.LivenessTimeoutSec <= 0 {
		q.LivenessTimeoutSec = 600
	}
	if q.RecoveryIntervalSec <= 0 {
		q.RecoveryIntervalSec = 60
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5003"
	}
}

func (m *MigrationConfig) applyDefaults() {
	if m.DefaultBatchSize <= 0 {
		m.DefaultBatchSize = 50
	}
	if m.DefaultDelaySec <= 0 {
		m.DefaultDelaySec = 5
	}
	if m.FailureThreshold <= 0 || m.FailureThreshold > 1 {
		m.FailureThreshold = 0.5
	}
	if m.LockTimeoutSec <= 0 {
		m.LockTimeoutSec = 300
	}
}

// PollInterval returns the dispatcher poll cadence as a duration.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalSec) * time.Second
}

// LivenessTimeout returns how long an active job may go unreported before it
// is presumed abandoned and requeued.
func (q QueueConfig) LivenessTimeout() time.Duration {
	return time.Duration(q.LivenessTimeoutSec) * time.Second
}

// RecoveryInterval returns how often the stale-job recovery sweep runs.
func (q QueueConfig) RecoveryInterval() time.Duration {
	return time.Duration(q.RecoveryIntervalSec) * time.Second
}

// BackoffBase returns the first retry delay as a duration.
func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseSec) * time.Second
}

// BackoffCap returns the ceiling on retry delays as a duration.
func (q QueueConfig) BackoffCap() time.Duration {
	return time.Duration(q.BackoffCapSec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Queue.applyDefaults()
	mockConfig.Migration.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
