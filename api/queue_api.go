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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/chronoworks/ledgersync/api/model"
	"github.com/chronoworks/ledgersync/model"
)

func (a Api) EnqueueSyncJob(c *gin.Context) {
	var newJob model2.EnqueueSyncJob
	if err := c.ShouldBindJSON(&newJob); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newJob.ValidateEnqueueSyncJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	job, coalesced, err := a.ledgersync.EnqueueSync(c.Request.Context(), newJob.ToEnqueueOptions())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if coalesced {
		// The entity already had an open job; nothing new was created.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"job": job, "coalesced": coalesced})
}

func (a Api) EnqueueBatchSyncJobs(c *gin.Context) {
	var batch model2.EnqueueBatchSyncJobs
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := batch.ValidateEnqueueBatchSyncJobs(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	selection, err := batch.ToBatchSelection()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	batchID, results, err := a.ledgersync.EnqueueBatchSync(c.Request.Context(), selection, batch.ToEnqueueOptions())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"batch_id": batchID, "results": results})
}

func (a Api) GetSyncJob(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	job, err := a.ledgersync.GetSyncJob(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (a Api) CancelSyncJob(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	if err := a.ledgersync.CancelSyncJob(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id, "state": model.JobStateCancelled})
}

func (a Api) GetQueueStatus(c *gin.Context) {
	queue := c.DefaultQuery("queue", model.DefaultQueue)

	status, err := a.ledgersync.GetQueueStatus(c.Request.Context(), queue)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (a Api) ControlQueue(c *gin.Context) {
	var control model2.QueueControl
	if err := c.ShouldBindJSON(&control); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := control.ValidateQueueControl(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	queue := c.DefaultQuery("queue", model.DefaultQueue)
	ctx := c.Request.Context()
	actor := actorID(c)

	switch control.Action {
	case "pause":
		if err := a.ledgersync.PauseQueue(ctx, queue, control.Reason, actor); err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": queue, "paused": true})
	case "resume":
		if err := a.ledgersync.ResumeQueue(ctx, queue, actor); err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": queue, "paused": false})
	case "retry-failed":
		retried, err := a.ledgersync.RetryFailedJobs(ctx, queue, actor)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": queue, "retried": retried})
	case "clear-failed":
		cleared, err := a.ledgersync.ClearFailedJobs(ctx, queue, actor)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": queue, "cleared": cleared})
	}
}
