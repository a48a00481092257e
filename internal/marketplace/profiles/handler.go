package profiles

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/me", h.Me)
	r.PUT("/me/wallet", h.UpdateWallet)
	r.GET("/profiles/:id", h.GetProfile)
}

// EnsureProfile は認証済みの呼び出し元のプロフィールを遅延作成する。RequireAuth の後に置く。
func EnsureProfile(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.MustSession(c)
		if !ok {
			return
		}
		if _, err := svc.Ensure(c.Request.Context(), sess); err != nil {
			c.AbortWithStatusJSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
			return
		}
		c.Next()
	}
}

func (h *Handler) Me(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), sess.Subject)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetProfile(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateWallet(c *gin.Context) {
	sess, ok := auth.MustSession(c)
	if !ok {
		return
	}
	var req UpdateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.UpdateWallet(c.Request.Context(), sess, req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
