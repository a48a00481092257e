package lending

import (
	"context"
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

	r.POST("/borrow-requests", h.CreateRequest)
	r.GET("/borrow-requests", h.ListRequests)
	r.GET("/borrow-requests/:id", h.GetRequest)

	// 状態遷移
	r.POST("/borrow-requests/:id/approve", h.Approve)
	r.POST("/borrow-requests/:id/reject", h.Reject)
	r.POST("/borrow-requests/:id/return", h.MarkReturned)
	r.POST("/borrow-requests/:id/conflicts", h.RaiseConflict)
}

// ---------- handlers ----------

func (h *Handler) CreateRequest(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req CreateBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	start, err := ParseWindowTime("start_date", req.StartDate)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	end, err := ParseWindowTime("end_date", req.EndDate)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	res, err := h.svc.CreateRequest(c.Request.Context(), sess, req.ItemID, start, end)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.Header("Location", "/borrow-requests/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetRequest(c *gin.Context) {
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

func (h *Handler) ListRequests(c *gin.Context) {
	f := mirror.RequestFilter{}
	if v := c.Query("item_id"); v != "" {
		f.ItemID = &v
	}
	if v := c.Query("borrower_id"); v != "" {
		f.BorrowerID = &v
	}
	if v := c.Query("status"); v != "" {
		st := mirror.RequestStatus(v)
		f.Status = &st
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

func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

func (h *Handler) Reject(c *gin.Context) {
	h.transition(c, h.svc.Reject)
}

func (h *Handler) MarkReturned(c *gin.Context) {
	h.transition(c, h.svc.MarkReturned)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, sess auth.Session, id string) (BorrowRequestResponse, error)) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := op(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RaiseConflict(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req RaiseConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.RaiseConflict(c.Request.Context(), sess, c.Param("id"), req.Description)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.Header("Location", "/conflicts/"+res.ID)
	c.JSON(http.StatusCreated, res)
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
