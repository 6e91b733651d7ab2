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

	ledgersync "github.com/chronoworks/ledgersync"
	model2 "github.com/chronoworks/ledgersync/api/model"
	"github.com/chronoworks/ledgersync/model"
)

// bindMigrationConfig reads a migration configuration from query parameters
// for the read-only endpoints and from the JSON body for POST /migrations.
func bindMigrationConfig(c *gin.Context, fromBody bool) (model.BatchMigrationConfig, bool) {
	var req model2.StartMigration
	if fromBody {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return model.BatchMigrationConfig{}, false
		}
	} else {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return model.BatchMigrationConfig{}, false
		}
	}

	if err := req.ValidateStartMigration(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return model.BatchMigrationConfig{}, false
	}
	cfg, err := req.ToMigrationConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return model.BatchMigrationConfig{}, false
	}
	return cfg, true
}

func (a Api) StartMigration(c *gin.Context) {
	cfg, ok := bindMigrationConfig(c, true)
	if !ok {
		return
	}

	migration, err := a.ledgersync.StartMigration(c.Request.Context(), cfg, actorID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, migration)
}

func (a Api) AnalyzeMigration(c *gin.Context) {
	cfg, ok := bindMigrationConfig(c, false)
	if !ok {
		return
	}

	analysis, err := a.ledgersync.AnalyzeMigration(c.Request.Context(), cfg)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (a Api) ValidateMigration(c *gin.Context) {
	cfg, ok := bindMigrationConfig(c, false)
	if !ok {
		return
	}

	report, err := a.ledgersync.ValidateHistoricalData(c.Request.Context(), cfg)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (a Api) GetMigrationProgress(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	migration, err := a.ledgersync.GetMigrationProgress(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"migration":           migration,
		"percent_complete":    migration.Progress.PercentComplete(),
		"estimated_remaining": migration.EstimatedRemaining().String(),
	})
}

func (a Api) ControlMigration(c *gin.Context) {
	id, passed := requireParam(c, "id")
	if !passed {
		return
	}

	var control model2.MigrationControl
	if err := c.ShouldBindJSON(&control); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := control.ValidateMigrationControl(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	migration, err := a.ledgersync.ControlMigration(c.Request.Context(), id,
		ledgersync.MigrationControlAction(control.Action), actorID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, migration)
}
