package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/htmlpdf/internal/observability/context"
)

const contextUserIDKey = "user_id"

var jwtSigningMethods = []string{jwt.SigningMethodHS256.Alg()}

// OwnerAuthRequired authenticates dashboard calls with an HS256 bearer token
// issued by the identity provider. The subject claim is the user id.
func (s *Server) OwnerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" || len(s.jwtSecret) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.parseOwnerToken(token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func (s *Server) parseOwnerToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods(jwtSigningMethods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func ownerID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(contextUserIDKey))
	return userID, userID != ""
}

func bearerToken(header string) string {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
