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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/internal/notification"
)

// Dispatcher runs the worker pool that drains a sync queue. Each worker
// claims one job at a time through the datasource, so any number of
// dispatcher processes can run against the same queue without coordination.
// A background sweep returns jobs abandoned by dead workers to the queue.
type Dispatcher struct {
	ledgersync *Ledgersync
	queue      string

	workers          int
	pollInterval     time.Duration
	livenessTimeout  time.Duration
	recoveryInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher for the configured sync queue.
func NewDispatcher(l *Ledgersync) (*Dispatcher, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		ledgersync:       l,
		queue:            conf.Queue.Name,
		workers:          conf.Queue.MaxWorkers,
		pollInterval:     conf.Queue.PollInterval(),
		livenessTimeout:  conf.Queue.LivenessTimeout(),
		recoveryInterval: conf.Queue.RecoveryInterval(),
	}, nil
}

// Start launches the worker pool and the recovery sweep. It is a no-op when
// the dispatcher is already running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	logrus.Infof("dispatcher starting %d workers on queue %s", d.workers, d.queue)
	for i := 0; i < d.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		d.wg.Add(1)
		go d.runWorker(ctx, workerID)
	}

	d.wg.Add(1)
	go d.runRecovery(ctx)
}

// Stop signals all workers to finish their current job and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	logrus.Infof("dispatcher on queue %s stopped", d.queue)
}

// runWorker polls for claimable jobs. After a drained poll or a paused queue
// the worker sleeps one interval; after processing a job it polls again
// immediately to drain bursts quickly.
func (d *Dispatcher) runWorker(ctx context.Context, workerID string) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		processed, err := d.dispatchOne(ctx, workerID)
		if err != nil {
			logrus.Errorf("%s: dispatch error: %v", workerID, err)
		}
		if !processed {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
		}
	}
}

// dispatchOne claims and processes at most one job. It reports whether a job
// was processed.
func (d *Dispatcher) dispatchOne(ctx context.Context, workerID string) (bool, error) {
	paused, _, err := d.ledgersync.datasource.IsQueuePaused(ctx, d.queue)
	if err != nil {
		return false, err
	}
	if paused {
		return false, nil
	}

	job, err := d.ledgersync.datasource.ClaimNextSyncJob(ctx, d.queue, workerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if err := d.ledgersync.processJob(ctx, job); err != nil {
		// Settling the outcome failed; the liveness sweep will recover the
		// job once it goes stale.
		notification.NotifyError(fmt.Errorf("job %s outcome not settled: %v", job.JobID, err))
		return true, err
	}
	return true, nil
}

// runRecovery periodically requeues active jobs whose worker stopped
// reporting. Combined with ledger idempotency keys this gives at-least-once
// delivery without double-booking.
func (d *Dispatcher) runRecovery(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, err := d.ledgersync.datasource.RequeueStaleActiveJobs(ctx, d.livenessTimeout)
			if err != nil {
				logrus.Errorf("stale job sweep failed: %v", err)
				continue
			}
			if requeued > 0 {
				logrus.Warnf("requeued %d stale active job(s) on queue %s", requeued, d.queue)
			}
		}
	}
}
