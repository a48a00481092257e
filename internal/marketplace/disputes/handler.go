package disputes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// 起票は lending 側の POST /borrow-requests/:id/conflicts が受け持つ
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/borrow-requests/:id/conflicts", h.ListByRequest)
	r.GET("/conflicts/:id", h.GetConflict)
	r.POST("/conflicts/:id/resolve", h.Resolve)
}

func (h *Handler) ListByRequest(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := h.svc.ListByRequest(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetConflict(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Resolve(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Resolve(c.Request.Context(), sess, c.Param("id"), req.Resolution, mirror.Outcome(req.Outcome))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
