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

	"go.opentelemetry.io/otel"

	"github.com/chronoworks/ledgersync/internal/apierror"
)

// SetQueuePaused persists the pause flag for a queue together with who
// flipped it. The flag is durable so a pause survives process restarts;
// dispatchers check it before claiming.
func (d Datasource) SetQueuePaused(ctx context.Context, queue string, paused bool, reason, actor string) error {
	ctx, span := otel.Tracer("QueueControl").Start(ctx, "Updating queue pause flag")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledgersync.queue_controls (queue, paused, paused_reason, updated_by, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NOW())
		ON CONFLICT (queue) DO UPDATE
		SET paused = EXCLUDED.paused, paused_reason = EXCLUDED.paused_reason,
			updated_by = EXCLUDED.updated_by, updated_at = NOW()
	`, queue, paused, reason, actor)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update queue pause flag", err)
	}
	return nil
}

// IsQueuePaused reports the durable pause flag and its reason. An unknown
// queue is not paused.
func (d Datasource) IsQueuePaused(ctx context.Context, queue string) (bool, string, error) {
	ctx, span := otel.Tracer("QueueControl").Start(ctx, "Checking queue pause flag")
	defer span.End()

	var paused bool
	var reason sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT paused, paused_reason FROM ledgersync.queue_controls WHERE queue = $1
	`, queue).Scan(&paused, &reason)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", apierror.NewAPIError(apierror.ErrInternalServer, "failed to check queue pause flag", err)
	}
	return paused, reason.String, nil
}
