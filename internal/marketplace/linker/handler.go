package linker

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
)

type LinkRequest struct {
	ContractItemID string `json:"contract_item_id"`
}

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.PUT("/items/:id/link", h.Link)
	r.DELETE("/items/:id/link", h.Unlink)
}

func (h *Handler) Link(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Link(c.Request.Context(), sess, c.Param("id"), req.ContractItemID)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Unlink(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := h.svc.Unlink(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
