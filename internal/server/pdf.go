package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
)

const (
	maxRenderBodyBytes = 10 << 20
	headerRenderID     = "X-Render-Id"
	headerEntitlement  = "X-Entitlement"
)

// GeneratePDF is the metered render endpoint.
func (s *Server) GeneratePDF(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRenderBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("body", "too_large", fmt.Sprintf("request body exceeds %d bytes", maxRenderBodyBytes)))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.pipeline.Generate(c.Request.Context(), pdfgendomain.GenerateInput{
		Token: apiKeyFromRequest(c),
		Body:  body,
	})
	if err != nil {
		var rateLimited *pdfgendomain.RateLimitError
		if errors.As(err, &rateLimited) {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rateLimited)))
		}
		AbortWithError(c, err)
		return
	}

	c.Set("entitlement", string(res.Entitlement))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	c.Header(headerRenderID, res.RenderID)
	c.Header(headerEntitlement, string(res.Entitlement))
	c.Data(http.StatusOK, "application/pdf", res.PDF)
}

func retryAfterSeconds(err *pdfgendomain.RateLimitError) int {
	seconds := int(math.Ceil(err.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
