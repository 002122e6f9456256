package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
)

// @Summary      List Levels
// @Description  List the configured membership levels
// @Tags         levels
// @Produce      json
// @Success      200  {object}  []leveldomain.MembershipLevel
// @Router       /levels [get]
func (s *Server) ListLevels(c *gin.Context) {
	levels, err := s.levels.List(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": levels})
}

// @Summary      Earnings Report
// @Description  Aggregate completed earnings and refunds
// @Tags         reports
// @Produce      json
// @Param        from     query  string  false  "From (RFC 3339)"
// @Param        to       query  string  false  "To (RFC 3339)"
// @Param        gateway  query  string  false  "Gateway"
// @Param        level_id query  string  false  "Level"
// @Success      200  {object}  map[string]string
// @Router       /reports/earnings [get]
func (s *Server) EarningsReport(c *gin.Context) {
	var query struct {
		From    string `form:"from"`
		To      string `form:"to"`
		Gateway string `form:"gateway"`
		LevelID string `form:"level_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := paymentdomain.AggregateFilter{Gateway: query.Gateway}
	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
			return
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
			return
		}
		filter.To = &to
	}
	if query.LevelID != "" {
		levelID, err := snowflake.ParseString(query.LevelID)
		if err != nil {
			AbortWithError(c, newValidationError("level_id", "invalid_level_id", "invalid level_id"))
			return
		}
		filter.LevelID = levelID
	}

	ctx := c.Request.Context()
	earnings, err := s.payments.Earnings(ctx, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	refunds, err := s.payments.Refunds(ctx, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"currency": s.cfg.Billing.Currency,
		"earnings": earnings.String(),
		"refunds":  refunds.String(),
	}})
}
