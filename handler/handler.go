package handler

import (
	"github.com/gin-gonic/gin"
	"net/http"
)

// WorkerStats is the part of the claim loop the health endpoint reports.
type WorkerStats interface {
	Active() int64
	MaxConcurrentJobs() int64
}

func AddHealth(r gin.IRoutes, stats WorkerStats) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"active_jobs":         stats.Active(),
			"max_concurrent_jobs": stats.MaxConcurrentJobs(),
		})
	})
}
