package ticket

import (
	"strconv"

	"tickethub/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

func (s *Service) handleList(c *gin.Context) {
	params := ListParams{
		EventID:    c.Query("event_id"),
		OwnerID:    c.Query("owner_id"),
		PurchaseID: c.Query("purchase_id"),
		Status:     c.Query("status"),
		SortBy:     c.Query("sort_by"),
		OrderBy:    c.Query("order_by"),
	}
	if v := c.Query("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}
	if v := c.Query("flagged"); v != "" {
		flagged := v == "true"
		params.Flagged = &flagged
	}

	result, err := s.List(c.Request.Context(), params)
	if err != nil {
		httpapi.Error(c, err)
		return
	}
	httpapi.OK(c, "tickets listed", result)
}

func (s *Service) handleGet(c *gin.Context) {
	t, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Error(c, err)
		return
	}
	httpapi.OK(c, "ticket found", t)
}
