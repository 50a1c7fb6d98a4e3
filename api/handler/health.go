package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/recoveryfinder/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatusSource exposes the live run status.
type StatusSource interface {
	Status() models.RunStatus
}

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" once the run has failed.
func Health(src StatusSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := src.Status()

		status := "healthy"
		if st.State == models.StateFailed {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			State:   st.State,
			Version: Version,
		})
	}
}
