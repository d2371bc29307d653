package query

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/totalizer-lab/totalizer/internal/httperr"
)

// RegisterRoutes registers all query API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/totals", s.HandleTotals)
	r.GET("/v1/trend", s.HandleTrend)
}

// HandleTotals handles GET /v1/totals
// Query parameters: spec, window
func (s *Service) HandleTotals(c *gin.Context) {
	var req TotalsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.InvalidParamError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.Totals(c.Request.Context(), req)
	if err != nil {
		writeQueryError(c, err, "Failed to reconstruct totals")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleTrend handles GET /v1/trend
// Query parameters: spec, window
func (s *Service) HandleTrend(c *gin.Context) {
	var req TrendRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.InvalidParamError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.Trend(c.Request.Context(), req)
	if err != nil {
		writeQueryError(c, err, "Failed to compute trend")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func writeQueryError(c *gin.Context, err error, message string) {
	if errors.Is(err, ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.InvalidQueryError,
			Message:   "Invalid totals query",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.InternalError,
		Message:   message,
		Details:   err.Error(),
	})
}
