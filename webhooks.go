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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/internal/notification"
	redis_db "github.com/chronoworks/ledgersync/internal/redis-db"
	"github.com/chronoworks/ledgersync/internal/request"
)

// Pipeline event names delivered to the configured webhook endpoint.
const (
	EventJobFailed          = "job.failed"
	EventQuarantineCreated  = "quarantine.created"
	EventMigrationCompleted = "migration.completed"
	EventMigrationFailed    = "migration.failed"
)

// PipelineEventTask is the asynq task type for webhook event delivery.
const PipelineEventTask = "new:pipeline-event"

// PipelineEvent is the envelope posted to the webhook endpoint. Delivery is
// asynchronous and at-least-once; consumers should treat events as
// notifications, not as the source of truth.
type PipelineEvent struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// publishEvent queues a pipeline event for webhook delivery. Event delivery
// must never block or fail the pipeline itself, so errors are logged and
// swallowed.
func (l *Ledgersync) publishEvent(ctx context.Context, event string, payload map[string]interface{}) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}
	if conf.Notification.Webhook.Url == "" {
		return
	}

	data, err := json.Marshal(PipelineEvent{
		Event:     event,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logrus.Error(err)
		return
	}

	opts, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		logrus.Error(err)
		return
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	defer client.Close()

	task := asynq.NewTask(PipelineEventTask, data,
		asynq.Queue(conf.Queue.NotificationQueue), asynq.MaxRetry(5))
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		notification.NotifyError(err)
	}
}

// ProcessPipelineEvent is the asynq handler that delivers one queued event to
// the webhook endpoint. A non-2xx response is an error so asynq retries the
// delivery.
func ProcessPipelineEvent(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	var event PipelineEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return err
	}

	payload, err := request.ToJsonReq(&event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, payload)
	if err != nil {
		return err
	}
	for header, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(header, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("webhook endpoint returned %d for event %s", resp.StatusCode, event.Event)
		notification.NotifyError(err)
		return err
	}

	logrus.Infof("delivered pipeline event %s", event.Event)
	return nil
}
