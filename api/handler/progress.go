package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/recoveryfinder/models"
)

// Progress returns a handler for GET /api/v1/progress.
func Progress(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := src.Status()
		c.JSON(http.StatusOK, models.ProgressResponse{
			Success: st.State != models.StateFailed,
			Status:  st,
			Percent: st.Percent(),
			Error:   st.Error,
		})
	}
}
