package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/frontdesk/internal/middleware"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/service/session"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	gate     *session.Gate
	sessions *middleware.SessionMiddleware
	cookie   CookieConfig
}

func NewHandler(gate *session.Gate, sessions *middleware.SessionMiddleware, cookie CookieConfig) *Handler {
	return &Handler{gate: gate, sessions: sessions, cookie: cookie}
}

// RegisterRoutes mounts login on public and the rest on authed.
func (h *Handler) RegisterRoutes(public, authed gin.IRoutes) {
	public.POST("/auth/login", h.Login)
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/session", h.Session)
}

// Login accepts JSON or a form post. A form post is answered with a
// redirect, as the login screen submits one.
func (h *Handler) Login(c *gin.Context) {
	form := isFormPost(c)

	var req model.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		if form {
			c.Redirect(http.StatusSeeOther, session.RouteLogin+"?error=1")
			return
		}
		_ = c.Error(apperrors.Validation("adminId and password are required"))
		return
	}

	sess, token, err := h.gate.Login(c.Request.Context(), req.AdminID, req.Password)
	if err != nil {
		if form && apperrors.Is(err, apperrors.ErrUnauthorized) {
			c.Redirect(http.StatusSeeOther, session.RouteLogin+"?error=1")
			return
		}
		_ = c.Error(err)
		return
	}

	h.setCookie(c, token, int(h.gate.TTL().Seconds()))
	if form {
		c.Redirect(http.StatusSeeOther, session.RouteDashboard)
		return
	}
	httputil.RespondWithSuccess(c, sess)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.LogoutRequest(c); err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"redirect": session.RouteLogin})
}

// LogoutRequest clears the caller's session and cookie.
func (h *Handler) LogoutRequest(c *gin.Context) error {
	err := h.gate.Logout(c.Request.Context(), h.sessions.Token(c))
	h.setCookie(c, "", -1)
	return err
}

func (h *Handler) Session(c *gin.Context) {
	httputil.RespondWithSuccess(c, middleware.CurrentSession(c))
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

func isFormPost(c *gin.Context) bool {
	ct := c.ContentType()
	return ct == gin.MIMEPOSTForm || strings.HasPrefix(ct, gin.MIMEMultipartPOSTForm)
}
