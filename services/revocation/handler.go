package revocation

import (
	"strconv"

	"tickethub/pkg/errutil"
	"tickethub/pkg/httpapi"
	"tickethub/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type revokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type batchRevokeRequest struct {
	PurchaseIDs []string `json:"purchase_ids" binding:"required"`
	Reason      string   `json:"reason" binding:"required"`
}

func (s *Service) handleRevoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Error(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	actor := c.GetString(middleware.ContextUserID)
	summary, err := s.RevokeTicket(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	if len(summary.Warnings) > 0 {
		httpapi.Partial(c, "ticket revoked with warnings", summary, summary.Warnings)
		return
	}
	httpapi.OK(c, "ticket revoked", summary)
}

func (s *Service) handleBatchRevoke(c *gin.Context) {
	var req batchRevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Error(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	actor := c.GetString(middleware.ContextUserID)
	summary, err := s.RevokeByPurchases(c.Request.Context(), req.PurchaseIDs, actor, req.Reason)
	if err != nil {
		httpapi.Error(c, err)
		return
	}

	if len(summary.Warnings) > 0 {
		httpapi.Partial(c, "batch revocation finished with warnings", summary, summary.Warnings)
		return
	}
	httpapi.OK(c, "batch revocation finished", summary)
}

func (s *Service) handleListQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	items, err := s.ListQueue(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		httpapi.Error(c, errutil.Internal("failed to list queue", err))
		return
	}
	httpapi.OK(c, "queue listed", items)
}
