package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
	"github.com/smallbiznis/htmlpdf/internal/analytics/statement"
)

func (s *Server) GetUsageAnalytics(c *gin.Context) {
	report, ok := s.usageReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GetUsageStatement(c *gin.Context) {
	report, ok := s.usageReport(c)
	if !ok {
		return
	}

	userID, _ := ownerID(c)
	now := s.clock.Now()
	doc, err := s.statements.Generate(c.Request.Context(), statement.Data{
		AccountID:   userID,
		GeneratedAt: now.Format("2006-01-02 15:04 MST"),
		Report:      report,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="usage-statement-`+analyticsdomain.DayKey(now)+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) usageReport(c *gin.Context) (*analyticsdomain.UsageReport, bool) {
	userID, ok := ownerID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}

	days, err := parseDays(c.Query("days"))
	if err != nil {
		AbortWithError(c, analyticsdomain.ErrInvalidDays)
		return nil, false
	}

	report, err := s.analyticsSvc.Usage(c.Request.Context(), userID, days)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return report, true
}

// parseDays returns 0 for an absent value so the service applies its default.
func parseDays(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if days == 0 {
		return -1, nil
	}
	return days, nil
}
