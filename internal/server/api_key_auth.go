package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	obscontext "github.com/smallbiznis/htmlpdf/internal/observability/context"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
)

const (
	HeaderAPIKey       = "X-API-Key"
	contextAPIKeyIDKey = "api_key_id"
)

// apiKeyFromRequest reads X-API-Key, falling back to an Authorization bearer token.
func apiKeyFromRequest(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return key
	}
	return bearerToken(c.GetHeader("Authorization"))
}

// APIKeyRequired authenticates read-only API calls. The render route runs its
// own lookup inside the pipeline.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := apiKeyFromRequest(c)
		if token == "" {
			AbortWithError(c, pdfgendomain.ErrMissingCredential)
			return
		}

		identity, err := s.keyStore.Lookup(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, apikeydomain.ErrNotFound) || errors.Is(err, apikeydomain.ErrInactive) {
				AbortWithError(c, pdfgendomain.ErrInvalidCredential)
				return
			}
			AbortWithError(c, err)
			return
		}

		keyID := identity.KeyID.String()
		ctx := obscontext.WithUserID(c.Request.Context(), identity.UserID)
		ctx = obscontext.WithAPIKeyID(ctx, keyID)
		c.Set(contextUserIDKey, identity.UserID)
		c.Set(contextAPIKeyIDKey, keyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
