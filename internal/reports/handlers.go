package reports

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/transactionhub/ledger-api/pkg/response"
)

// GinHandlers contains HTTP handlers for report endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for report endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DashboardSummaryHandler handles GET requests for the dashboard aggregate
func (h *GinHandlers) DashboardSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.GetDashboardSummary(c.GetString("user_id"))
		response.Handle(c, summary, err)
	}
}

// PendingPaymentsHandler handles GET requests for accounts with open PnL
func (h *GinHandlers) PendingPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.service.GetPendingPayments(c.GetString("user_id"))
		response.Handle(c, report, err)
	}
}

// SummaryHandler handles GET requests for the period summary.
// Accepts ?period=DAILY|WEEKLY|MONTHLY, defaulting to DAILY.
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.service.GetSummary(c.GetString("user_id"), c.DefaultQuery("period", "DAILY"))
		response.Handle(c, report, err)
	}
}

// CustomReportHandler handles GET requests for date-ranged reports.
// Requires from_date and to_date (2006-01-02); client_id and exchange_id
// narrow the scope.
func (h *GinHandlers) CustomReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := time.Parse("2006-01-02", c.Query("from_date"))
		if err != nil {
			response.ValidationFailed(c, "from_date must be in YYYY-MM-DD format")
			return
		}
		to, err := time.Parse("2006-01-02", c.Query("to_date"))
		if err != nil {
			response.ValidationFailed(c, "to_date must be in YYYY-MM-DD format")
			return
		}
		// Make the range inclusive of the final day.
		to = to.Add(24*time.Hour - time.Nanosecond)

		if to.Before(from) {
			response.ValidationFailed(c, "to_date must not be before from_date")
			return
		}

		report, err := h.service.GetCustomReport(
			c.GetString("user_id"),
			from, to,
			c.Query("client_id"),
			c.Query("exchange_id"),
		)
		response.Handle(c, report, err)
	}
}
