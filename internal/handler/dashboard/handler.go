package dashboard

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/frontdesk/internal/service/dashboard"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

type Handler struct {
	svc *dashboard.Service
}

func NewHandler(svc *dashboard.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard/stats", h.Stats)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.Upstream("failed to load dashboard", err))
		return
	}
	httputil.RespondWithSuccess(c, stats)
}
