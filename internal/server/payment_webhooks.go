package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
)

const (
	headerStripeSignature  = "Stripe-Signature"
	maxWebhookPayloadBytes = 1 << 20
)

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	signature := strings.TrimSpace(c.GetHeader(headerStripeSignature))
	if signature == "" {
		AbortWithError(c, paymentdomain.ErrMissingSignature)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.paymentSvc.IngestWebhook(c.Request.Context(), payload, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
