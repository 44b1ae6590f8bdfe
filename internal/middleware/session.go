package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/service/session"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

const (
	ContextSession   = "session"
	ContextSessionID = "session_id"
)

// SessionMiddleware resolves the session cookie (or bearer token) into a
// model.Session placed in the gin context.
type SessionMiddleware struct {
	gate       *session.Gate
	cookieName string
}

func NewSessionMiddleware(gate *session.Gate, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{gate: gate, cookieName: cookieName}
}

// Token returns the session token sent with the request, if any.
func (m *SessionMiddleware) Token(c *gin.Context) string {
	if token, err := c.Cookie(m.cookieName); err == nil && token != "" {
		return token
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Resolve attaches the session when the request carries a valid one and
// never aborts.
func (m *SessionMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.gate.Authenticate(c.Request.Context(), m.Token(c))
		if err == nil {
			c.Set(ContextSession, sess)
			c.Set(ContextSessionID, sess.ID)
		}
		c.Next()
	}
}

// RequireAPI answers 401 for API calls without a session.
func (m *SessionMiddleware) RequireAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) == nil {
			httputil.RespondWithError(c, session.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

// Screen applies the routing decision for a page request: it redirects,
// logs out, or lets the screen render.
func (m *SessionMiddleware) Screen(onLogout func(*gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := session.Resolve(c.Request.URL.Path, CurrentSession(c) != nil)
		if d.Logout && onLogout != nil {
			onLogout(c)
		}
		if d.Redirect {
			c.Redirect(http.StatusFound, d.Path)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentSession returns the authenticated session, or nil.
func CurrentSession(c *gin.Context) *model.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*model.Session)
	return sess
}
