// Package session decides who may see which screen. A client is either
// authenticated or not; the flag lives in the session store keyed by the
// session id carried in a signed token.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/pkg/auth"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/logger"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
	"github.com/jwalitptl/frontdesk/pkg/security"
)

const (
	RouteLogin          = "/"
	RouteDashboard      = "/dashboard"
	RouteOPHistory      = "/op-history"
	RoutePatientDetails = "/patient-details"
	RouteLogout         = "/logout"

	component = "session"
)

var ErrUnauthenticated = apperrors.Unauthorized("not logged in")

// Decision is where a navigation ends up.
type Decision struct {
	// Path is the screen to render, or the redirect target.
	Path     string
	Redirect bool
	// Logout asks the caller to clear the session before redirecting.
	Logout bool
}

// Resolve maps a requested path and the current auth state to a screen or
// a redirect.
func Resolve(path string, authenticated bool) Decision {
	switch path {
	case RouteLogin:
		return Decision{Path: RouteLogin}
	case RouteDashboard, RouteOPHistory, RoutePatientDetails:
		if !authenticated {
			return Decision{Path: RouteLogin, Redirect: true}
		}
		return Decision{Path: path}
	case RouteLogout:
		return Decision{Path: RouteLogin, Redirect: true, Logout: true}
	}
	if authenticated {
		return Decision{Path: RouteDashboard, Redirect: true}
	}
	return Decision{Path: RouteLogin, Redirect: true}
}

type Deps struct {
	Credentials *security.Credentials
	Tokens      auth.TokenService
	Store       repository.SessionRepository
	Clock       clock.Clock
	Observer    logger.Observer
	Metrics     *metrics.Metrics
	TTL         time.Duration
	// OnLogout runs after a session is cleared, e.g. to drop its desk.
	OnLogout func(sessionID string)
}

type Gate struct {
	creds    *security.Credentials
	tokens   auth.TokenService
	store    repository.SessionRepository
	clock    clock.Clock
	obs      logger.Observer
	metrics  *metrics.Metrics
	ttl      time.Duration
	onLogout func(string)
}

func NewGate(d Deps) *Gate {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Observer == nil {
		d.Observer = logger.Nop()
	}
	return &Gate{
		creds:    d.Credentials,
		tokens:   d.Tokens,
		store:    d.Store,
		clock:    d.Clock,
		obs:      d.Observer,
		metrics:  d.Metrics,
		ttl:      d.TTL,
		onLogout: d.OnLogout,
	}
}

// TTL is how long a login stays valid.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Login checks the admin credentials, persists the flag for a fresh session
// id and returns the session with its signed token.
func (g *Gate) Login(ctx context.Context, adminID, password string) (*model.Session, string, error) {
	if err := g.creds.Verify(adminID, password); err != nil {
		g.metrics.ObserveLogin("rejected")
		return nil, "", apperrors.Unauthorized("Invalid Admin ID or Password")
	}

	now := g.clock.Now()
	sess := &model.Session{
		ID:            uuid.NewString(),
		Authenticated: true,
		IssuedAt:      now,
		ExpiresAt:     now.Add(g.ttl),
	}
	token, err := g.tokens.Issue(sess.ID, now, g.ttl)
	if err != nil {
		g.metrics.ObserveLogin("error")
		return nil, "", apperrors.Internal(err)
	}
	if err := g.store.SetAuthenticated(ctx, sess.ID, g.ttl); err != nil {
		g.metrics.ObserveLogin("error")
		return nil, "", apperrors.Upstream("failed to persist session", err)
	}

	g.metrics.ObserveLogin("accepted")
	g.obs.Transition(component, "unauthenticated", "authenticated", map[string]interface{}{"session_id": sess.ID})
	return sess, token, nil
}

// Authenticate resolves a token to its session. A missing, invalid or
// revoked token yields ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	id, err := g.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	ok, err := g.store.IsAuthenticated(ctx, id)
	if err != nil {
		return nil, apperrors.Upstream("failed to read session", err)
	}
	if !ok {
		return nil, ErrUnauthenticated
	}
	return &model.Session{ID: id, Authenticated: true}, nil
}

// Logout clears the flag for the token's session. Logging out without a
// valid token is not an error.
func (g *Gate) Logout(ctx context.Context, token string) error {
	id, err := g.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return nil
		}
		return err
	}
	if err := g.store.Clear(ctx, id); err != nil {
		return apperrors.Upstream(fmt.Sprintf("failed to clear session %s", id), err)
	}
	if g.onLogout != nil {
		g.onLogout(id)
	}
	g.obs.Transition(component, "authenticated", "unauthenticated", map[string]interface{}{"session_id": id})
	return nil
}

// Ping checks the session store.
func (g *Gate) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}
