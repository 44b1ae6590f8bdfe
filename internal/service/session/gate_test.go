package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/repository/memory"
	"github.com/jwalitptl/frontdesk/pkg/auth"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/security"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		path   string
		authed bool
		want   Decision
	}{
		{"/", false, Decision{Path: "/"}},
		{"/", true, Decision{Path: "/"}},
		{"/dashboard", true, Decision{Path: "/dashboard"}},
		{"/dashboard", false, Decision{Path: "/", Redirect: true}},
		{"/op-history", true, Decision{Path: "/op-history"}},
		{"/op-history", false, Decision{Path: "/", Redirect: true}},
		{"/patient-details", true, Decision{Path: "/patient-details"}},
		{"/patient-details", false, Decision{Path: "/", Redirect: true}},
		{"/logout", true, Decision{Path: "/", Redirect: true, Logout: true}},
		{"/logout", false, Decision{Path: "/", Redirect: true, Logout: true}},
		{"/nope", true, Decision{Path: "/dashboard", Redirect: true}},
		{"/nope", false, Decision{Path: "/", Redirect: true}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.path, tt.authed), "path=%s authed=%v", tt.path, tt.authed)
	}
}

type gateFixture struct {
	gate    *Gate
	clock   *clock.Manual
	dropped []string
}

func newGate(t *testing.T) *gateFixture {
	t.Helper()
	clk := clock.NewManual(time.Now())
	creds, err := security.NewCredentials(security.NewBcryptHasher(bcrypt.MinCost), "admin", "", "admin123")
	require.NoError(t, err)

	fx := &gateFixture{clock: clk}
	fx.gate = NewGate(Deps{
		Credentials: creds,
		Tokens:      auth.NewJWTService("test-secret", "frontdesk"),
		Store:       memory.NewSessionRepository(clk),
		Clock:       clk,
		TTL:         time.Hour,
		OnLogout:    func(id string) { fx.dropped = append(fx.dropped, id) },
	})
	return fx
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	fx := newGate(t)

	for _, c := range [][2]string{{"admin", "wrong"}, {"root", "admin123"}, {"", ""}} {
		_, _, err := fx.gate.Login(context.Background(), c[0], c[1])
		assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized), "%v", c)
	}
}

func TestLoginThenLogout(t *testing.T) {
	fx := newGate(t)
	ctx := context.Background()

	sess, token, err := fx.gate.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, time.Hour, sess.ExpiresAt.Sub(sess.IssuedAt))

	got, err := fx.gate.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	require.NoError(t, fx.gate.Logout(ctx, token))
	assert.Equal(t, []string{sess.ID}, fx.dropped)

	_, err = fx.gate.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	fx := newGate(t)
	ctx := context.Background()

	_, err := fx.gate.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = fx.gate.Authenticate(ctx, "not.a.token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := auth.NewJWTService("other-secret", "frontdesk").Issue("some-session", time.Now(), time.Hour)
	require.NoError(t, err)
	_, err = fx.gate.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionFlagExpires(t *testing.T) {
	fx := newGate(t)
	ctx := context.Background()

	_, token, err := fx.gate.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	fx.clock.Advance(time.Hour + time.Second)
	_, err = fx.gate.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	fx := newGate(t)
	assert.NoError(t, fx.gate.Logout(context.Background(), ""))
	assert.Empty(t, fx.dropped)
}
