package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	"go.uber.org/zap"
)

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("http.health.db_unreachable", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListWatermarks(c *gin.Context) {
	items, err := s.watermarks.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watermarks": items})
}

func (s *Server) GetWatermark(c *gin.Context) {
	wm, err := s.watermarks.Get(c.Request.Context(), reportTypeParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if wm == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, wm)
}

// GetWindow returns the window the next run would fetch for a report type.
func (s *Server) GetWindow(c *gin.Context) {
	var (
		window watermarkdomain.Window
		err    error
	)
	reportType := reportTypeParam(c)
	if reportType == watermarkdomain.ReportRevenue {
		window, err = s.watermarks.RevenueWindow(c.Request.Context())
	} else {
		window, err = s.watermarks.NextWindow(c.Request.Context(), reportType)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

func (s *Server) ListRuns(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.pipeline.RecentRuns(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListRevenue(c *gin.Context) {
	month, err := parseOptionalMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	totals, err := s.store.Repo.ListRevenueTotals(c.Request.Context(), s.store.DB(), month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

func reportTypeParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("reportType")))
}
