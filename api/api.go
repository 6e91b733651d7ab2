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
	"github.com/chronoworks/ledgersync/api/middleware"
	"github.com/chronoworks/ledgersync/config"
	"github.com/chronoworks/ledgersync/internal/apierror"
)

type Api struct {
	ledgersync *ledgersync.Ledgersync
	router     *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/sync-jobs", a.EnqueueSyncJob)
	router.POST("/sync-jobs/batch", a.EnqueueBatchSyncJobs)
	router.GET("/sync-jobs/:id", a.GetSyncJob)
	router.DELETE("/sync-jobs/:id", a.CancelSyncJob)

	router.GET("/queue/status", a.GetQueueStatus)
	router.POST("/queue/control", a.ControlQueue)

	router.POST("/migrations", a.StartMigration)
	router.GET("/migrations/analyze", a.AnalyzeMigration)
	router.GET("/migrations/validate", a.ValidateMigration)
	router.GET("/migrations/:id/progress", a.GetMigrationProgress)
	router.POST("/migrations/:id/control", a.ControlMigration)

	router.GET("/quarantine", a.ListQuarantine)
	router.GET("/quarantine/:id", a.GetQuarantine)
	router.PATCH("/quarantine/bulk", a.BulkReviewQuarantine)
	router.PATCH("/quarantine/:id/review", a.ReviewQuarantine)

	return a.router
}

func NewAPI(l *ledgersync.Ledgersync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{ledgersync: l, router: r}
}

// handleServiceError writes a service error with its mapped status code.
func handleServiceError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

// actorID identifies the operator behind a request. Review endpoints require
// it; queue and migration control endpoints record it when present.
func actorID(c *gin.Context) string {
	return c.GetHeader("X-Actor-ID")
}

func requireParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass " + name + " in the route /:" + name})
		return "", false
	}
	return value, true
}
