package botscan

import (
	"time"

	"tickethub/pkg/errutil"
	"tickethub/pkg/httpapi"
	"tickethub/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type scanRequest struct {
	WindowMinutes int  `json:"window_minutes"`
	Threshold     int  `json:"threshold"`
	AutoRevoke    bool `json:"auto_revoke"`
}

func (s *Service) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpapi.Error(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	report, err := s.Scan(c.Request.Context(), ScanParams{
		Window:     time.Duration(req.WindowMinutes) * time.Minute,
		Threshold:  req.Threshold,
		AutoRevoke: req.AutoRevoke,
		Actor:      c.GetString(middleware.ContextUserID),
	})
	if err != nil {
		httpapi.Error(c, err)
		return
	}
	httpapi.OK(c, "bot scan finished", report)
}
