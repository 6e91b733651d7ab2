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
	"embed"

	"github.com/redis/go-redis/v9"

	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/database"
	redis_db "github.com/chronoworks/ledgersync/internal/redis-db"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Ledgersync is the reconciliation pipeline. It owns the durable job queue,
// the batch migration controller and the quarantine subsystem, and is the
// only component that talks to the ledger.
type Ledgersync struct {
	datasource database.IDataSource
	ledger     LedgerClient
	redis      redis.UniversalClient
}

// NewLedgersync constructs the pipeline service over an initialized
// datasource. The redis connection backs the migration runner lock and the
// pipeline event queue.
func NewLedgersync(db database.IDataSource, ledger LedgerClient) (*Ledgersync, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	return &Ledgersync{
		datasource: db,
		ledger:     ledger,
		redis:      redisClient.Client(),
	}, nil
}

// NewLedgersyncWithRedis is like NewLedgersync with an injected redis client.
// Tests use it with miniredis.
func NewLedgersyncWithRedis(db database.IDataSource, ledger LedgerClient, redisClient redis.UniversalClient) *Ledgersync {
	return &Ledgersync{
		datasource: db,
		ledger:     ledger,
		redis:      redisClient,
	}
}
