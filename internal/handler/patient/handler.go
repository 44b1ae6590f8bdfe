package patient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/handler"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/service/desk"
	"github.com/jwalitptl/frontdesk/internal/service/patient"
	"github.com/jwalitptl/frontdesk/internal/upload"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

type Handler struct {
	*handler.BaseHandler
}

func NewHandler(desks *desk.Registry) *Handler {
	return &Handler{BaseHandler: &handler.BaseHandler{Desks: desks}}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	form := r.Group("/patients/form")
	{
		form.GET("", h.State)
		form.PATCH("", h.SetFields)
		form.POST("/load", h.Load)
		form.POST("/new", h.New)
		form.POST("/files", h.AddFiles)
		form.DELETE("/files/:index", h.RemoveFile)
		form.POST("/save", h.Save)
		form.POST("/update", h.Update)
		form.POST("/cancel", h.Cancel)
		form.POST("/quit", h.Quit)
		form.POST("/navigate/:direction", h.Navigate)
		form.GET("/list", h.List)
		form.POST("/select", h.Select)
		form.POST("/delete/confirm", h.ConfirmDelete)
		form.POST("/delete/cancel", h.CancelDelete)
	}
}

// SaveResult is the state after a write plus the files that were skipped.
type SaveResult struct {
	patient.State
	Failures []upload.Failure `json:"failures"`
}

type SelectRequest struct {
	ID     string `json:"id" binding:"required"`
	Action string `json:"action" binding:"required,oneof=edit remove"`
}

func (h *Handler) form(c *gin.Context) (*patient.Form, bool) {
	d, ok := h.Desk(c)
	if !ok {
		return nil, false
	}
	return d.Patients, true
}

// run applies op to the caller's form and answers with the new state.
func (h *Handler) run(c *gin.Context, op func(f *patient.Form) error) {
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
	h.run(c, func(*patient.Form) error { return nil })
}

func (h *Handler) Load(c *gin.Context) {
	h.run(c, func(f *patient.Form) error { return f.Load(c.Request.Context()) })
}

func (h *Handler) New(c *gin.Context) {
	h.run(c, (*patient.Form).New)
}

func (h *Handler) SetFields(c *gin.Context) {
	var in model.PatientInput
	if !handler.BindJSON(c, &in) {
		return
	}
	h.run(c, func(f *patient.Form) error { return f.SetFields(in) })
}

func (h *Handler) AddFiles(c *gin.Context) {
	mf, err := c.MultipartForm()
	if err != nil {
		_ = c.Error(apperrors.Validation("expected a multipart form with files"))
		return
	}
	headers := mf.File["files"]
	if len(headers) == 0 {
		_ = c.Error(apperrors.Validation("no files attached"))
		return
	}

	files := make([]model.PendingFile, 0, len(headers))
	for _, fh := range headers {
		pf, err := readFile(fh)
		if err != nil {
			_ = c.Error(apperrors.Validation(err.Error()))
			return
		}
		files = append(files, pf)
	}
	h.run(c, func(f *patient.Form) error { return f.AddFiles(files...) })
}

func readFile(fh *multipart.FileHeader) (model.PendingFile, error) {
	src, err := fh.Open()
	if err != nil {
		return model.PendingFile{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return model.PendingFile{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return model.PendingFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) RemoveFile(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		_ = c.Error(apperrors.Validation("file index must be a number"))
		return
	}
	h.run(c, func(f *patient.Form) error { return f.RemoveFile(index) })
}

func (h *Handler) Save(c *gin.Context) {
	h.write(c, (*patient.Form).Save)
}

func (h *Handler) Update(c *gin.Context) {
	h.write(c, (*patient.Form).Update)
}

func (h *Handler) write(c *gin.Context, op func(*patient.Form, context.Context) ([]upload.Failure, error)) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	failures, err := op(f, c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if failures == nil {
		failures = []upload.Failure{}
	}
	httputil.RespondWithSuccess(c, SaveResult{State: f.State(), Failures: failures})
}

func (h *Handler) Cancel(c *gin.Context) {
	h.run(c, (*patient.Form).Cancel)
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

func (h *Handler) Navigate(c *gin.Context) {
	var move func(*patient.Form) error
	switch c.Param("direction") {
	case "first":
		move = (*patient.Form).First
	case "prev":
		move = (*patient.Form).Prev
	case "next":
		move = (*patient.Form).Next
	case "last":
		move = (*patient.Form).Last
	default:
		_ = c.Error(apperrors.Validationf("unknown direction %q", c.Param("direction")))
		return
	}
	h.run(c, move)
}

func (h *Handler) List(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, f.ListRows())
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		_ = c.Error(apperrors.Validation("invalid patient id"))
		return
	}
	h.run(c, func(f *patient.Form) error {
		if req.Action == "remove" {
			return f.SelectForRemove(id)
		}
		return f.SelectForEdit(id)
	})
}

func (h *Handler) ConfirmDelete(c *gin.Context) {
	h.run(c, func(f *patient.Form) error { return f.ConfirmDelete(c.Request.Context()) })
}

func (h *Handler) CancelDelete(c *gin.Context) {
	h.run(c, (*patient.Form).CancelDelete)
}
