package reconcile

import (
	"fmt"

	"tickethub/pkg/errutil"
	"tickethub/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type syncRequest struct {
	Limit int  `json:"limit"`
	Force bool `json:"force"`
}

type verifyRequest struct {
	Limit           int    `json:"limit"`
	Filter          string `json:"filter"`
	IncludeContract bool   `json:"include_contract"`
	Detailed        bool   `json:"detailed"`
}

func (r *Reconciler) handleSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpapi.Error(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	result, err := r.Run(c.Request.Context(), req.Limit, req.Force)
	if err != nil {
		httpapi.Error(c, errutil.Internal("reconciliation failed", err))
		return
	}

	if result.Failures > 0 {
		warnings := make([]string, 0, result.Failures)
		for _, item := range result.Items {
			if item.Error != "" {
				warnings = append(warnings, item.TicketID+": "+item.Error)
			}
		}
		httpapi.Partial(c, "sync finished with failures", result, warnings)
		return
	}
	httpapi.OK(c, "sync finished", result)
}

func (v *Verifier) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpapi.Error(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	report, err := v.Run(c.Request.Context(), VerifyOptions{
		Limit:           req.Limit,
		Filter:          req.Filter,
		IncludeContract: req.IncludeContract,
		Detailed:        req.Detailed,
	})
	if err != nil {
		httpapi.Error(c, errutil.Internal("verification failed", err))
		return
	}

	if report.FailureCount > 0 {
		warnings := make([]string, 0, report.FailureCount)
		for _, f := range report.Failures {
			warnings = append(warnings, f.TicketID+": "+f.Error)
		}
		if len(warnings) == 0 {
			warnings = append(warnings, fmt.Sprintf("%d tickets could not be verified", report.FailureCount))
		}
		httpapi.Partial(c, "verification finished with failures", report, warnings)
		return
	}
	httpapi.OK(c, "verification finished", report)
}
