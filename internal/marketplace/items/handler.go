package items

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/items", h.CreateItem)
	r.GET("/items", h.ListItems)
	r.GET("/items/:id", h.GetItem)
	r.PATCH("/items/:id", h.UpdateItem)
	r.PUT("/items/:id/availability", h.SetAvailability)
	r.DELETE("/items/:id/sync-flag", h.ClearSyncFlag)
}

// ---------- handlers ----------

func (h *Handler) CreateItem(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), sess, req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.Header("Location", "/items/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetItem(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListItems(c *gin.Context) {
	f := mirror.ItemFilter{}
	if v := c.Query("owner_id"); v != "" {
		f.OwnerID = &v
	}
	if v := c.Query("available"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Available = &b
		}
	}
	if v := c.Query("sync_flag"); v != "" {
		flag := mirror.SyncFlag(v)
		f.SyncFlag = &flag
	}
	if v := c.Query("linked"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Linked = &b
		}
	}
	p := mirror.Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	res, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateItem(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), sess, c.Param("id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "available required"))
		return
	}
	res, err := h.svc.SetAvailability(c.Request.Context(), sess, c.Param("id"), *req.Available)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ClearSyncFlag(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := h.svc.ClearSyncFlag(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
