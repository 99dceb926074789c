package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
)

func (s *Server) ListAPIKeys(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req apikeydomain.CreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RevokeAPIKey accepts the key id as a path parameter or an id query value.
func (s *Server) RevokeAPIKey(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keyID := strings.TrimSpace(c.Param("id"))
	if keyID == "" {
		keyID = strings.TrimSpace(c.Query("id"))
	}
	if keyID == "" {
		AbortWithError(c, newValidationError("id", "required", "API key ID required"))
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), userID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
