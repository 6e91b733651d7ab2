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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	model2 "github.com/chronoworks/ledgersync/api/model"
	"github.com/chronoworks/ledgersync/model"
)

func (a Api) ListQuarantine(c *gin.Context) {
	filters := model.QuarantineFilters{
		EntityType: c.Query("entity_type"),
		Status:     model.QuarantineStatus(c.Query("status")),
		Priority:   model.QuarantinePriority(c.Query("priority")),
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC3339 date"})
			return
		}
		filters.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an RFC3339 date"})
			return
		}
		filters.To = &to
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	records, err := a.ledgersync.ListQuarantine(c.Request.Context(), filters, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quarantine_records": records, "page": page, "per_page": pageSize})
}

func (a Api) GetQuarantine(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	record, err := a.ledgersync.GetQuarantine(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a Api) ReviewQuarantine(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	reviewer := actorID(c)
	if reviewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Actor-ID header is required for reviews"})
		return
	}

	var review model2.ReviewQuarantine
	if err := c.ShouldBindJSON(&review); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := review.ValidateReviewQuarantine(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	record, err := a.ledgersync.ReviewQuarantine(c.Request.Context(), id,
		model.ReviewDecision(review.Decision), review.CorrectedData, reviewer, review.Notes)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a Api) BulkReviewQuarantine(c *gin.Context) {
	reviewer := actorID(c)
	if reviewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Actor-ID header is required for reviews"})
		return
	}

	var bulk model2.BulkReviewQuarantine
	if err := c.ShouldBindJSON(&bulk); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := bulk.ValidateBulkReviewQuarantine(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	results, err := a.ledgersync.BulkUpdateQuarantine(c.Request.Context(), bulk.QuarantineIDs,
		model.ReviewDecision(bulk.Decision), reviewer, bulk.Notes)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
