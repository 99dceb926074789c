package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsageStatus reports the caller's current free-tier window without
// creating or rolling it over.
func (s *Server) GetUsageStatus(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.analyticsSvc.Status(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
