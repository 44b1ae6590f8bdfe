package visit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/frontdesk/internal/handler"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/service/desk"
	"github.com/jwalitptl/frontdesk/internal/service/visit"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

// PrintTemplate is the name of the printable visit page.
const PrintTemplate = "visit_print.tmpl"

type Handler struct {
	*handler.BaseHandler
}

func NewHandler(desks *desk.Registry) *Handler {
	return &Handler{BaseHandler: &handler.BaseHandler{Desks: desks}}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	form := r.Group("/op-history/form")
	{
		form.GET("", h.State)
		form.PATCH("", h.SetFields)
		form.PUT("/op-number", h.SetOPNumber)
		form.POST("/refresh", h.Refresh)
		form.POST("/new", h.New)
		form.POST("/edit", h.Edit)
		form.POST("/save", h.Save)
		form.POST("/update", h.Update)
		form.POST("/delete", h.RequestDelete)
		form.POST("/delete/confirm", h.ConfirmDelete)
		form.POST("/delete/cancel", h.CancelDelete)
		form.GET("/history", h.History)
		form.POST("/select", h.Select)
		form.POST("/cancel", h.Cancel)
		form.POST("/quit", h.Quit)
		form.GET("/print", h.Print)
	}
}

type OPNumberRequest struct {
	OPNo string `json:"opNo"`
}

type SelectRequest struct {
	Index *int `json:"index" binding:"required"`
}

// DeletePrompt is the entry awaiting confirmation.
type DeletePrompt struct {
	visit.State
	Target model.HistoryRow `json:"target"`
}

func (h *Handler) form(c *gin.Context) (*visit.Form, bool) {
	d, ok := h.Desk(c)
	if !ok {
		return nil, false
	}
	return d.Visits, true
}

func (h *Handler) run(c *gin.Context, op func(f *visit.Form) error) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	if err := op(f); err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, f.State())
}

func (h *Handler) State(c *gin.Context) {
	h.run(c, func(*visit.Form) error { return nil })
}

// SetOPNumber answers 202: the lookup runs once typing pauses.
func (h *Handler) SetOPNumber(c *gin.Context) {
	var req OPNumberRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	f, ok := h.form(c)
	if !ok {
		return
	}
	if err := f.SetOPNumber(req.OPNo); err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusAccepted, f.State())
}

func (h *Handler) Refresh(c *gin.Context) {
	h.run(c, func(f *visit.Form) error { return f.Refresh(c.Request.Context()) })
}

func (h *Handler) New(c *gin.Context) {
	h.run(c, (*visit.Form).New)
}

func (h *Handler) Edit(c *gin.Context) {
	h.run(c, (*visit.Form).Edit)
}

func (h *Handler) SetFields(c *gin.Context) {
	var in model.VisitInput
	if !handler.BindJSON(c, &in) {
		return
	}
	h.run(c, func(f *visit.Form) error { return f.SetFields(in) })
}

func (h *Handler) Save(c *gin.Context) {
	h.run(c, func(f *visit.Form) error { return f.Save(c.Request.Context()) })
}

func (h *Handler) Update(c *gin.Context) {
	h.run(c, func(f *visit.Form) error { return f.Update(c.Request.Context()) })
}

func (h *Handler) RequestDelete(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	row, err := f.RequestDelete()
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, DeletePrompt{State: f.State(), Target: row})
}

func (h *Handler) ConfirmDelete(c *gin.Context) {
	h.run(c, func(f *visit.Form) error { return f.ConfirmDelete(c.Request.Context()) })
}

func (h *Handler) CancelDelete(c *gin.Context) {
	h.run(c, (*visit.Form).CancelDelete)
}

func (h *Handler) History(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, f.HistoryRows())
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	h.run(c, func(f *visit.Form) error { return f.Select(*req.Index) })
}

func (h *Handler) Cancel(c *gin.Context) {
	h.run(c, (*visit.Form).Cancel)
}

func (h *Handler) Quit(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	route, err := f.Quit()
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"redirect": route})
}

func (h *Handler) Print(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, PrintTemplate, f.Print())
}
