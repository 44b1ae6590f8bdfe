package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/frontdesk/internal/middleware"
	"github.com/jwalitptl/frontdesk/internal/service/desk"
	"github.com/jwalitptl/frontdesk/internal/service/session"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
)

// BaseHandler gives form handlers the desk of the calling session.
type BaseHandler struct {
	Desks *desk.Registry
}

// Desk returns the caller's desk. Routes using it sit behind the session
// middleware, so a missing session is reported as unauthenticated.
func (h *BaseHandler) Desk(c *gin.Context) (*desk.Desk, bool) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		_ = c.Error(session.ErrUnauthenticated)
		return nil, false
	}
	return h.Desks.Get(sess.ID), true
}

// BindJSON decodes the request body into obj, attaching a validation error
// when it does not parse.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		_ = c.Error(apperrors.Validation(err.Error()))
		return false
	}
	return true
}
