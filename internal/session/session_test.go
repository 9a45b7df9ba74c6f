package session

import (
	"context"
	"testing"
	"time"

	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	assert.Equal(t, Session{}, Init(""))
	assert.Equal(t, Session{}, Init("   "))
	assert.Equal(t, Session{Unlocked: true, AdminToken: "tok"}, Init(" tok "))
	assert.True(t, Session{}.Unlock("t").Unlocked)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.False(t, FromContext(ctx).Unlocked)
	assert.Error(t, RequireUnlocked(ctx))

	ctx = NewContext(ctx, Init("token"))
	assert.Equal(t, "token", FromContext(ctx).AdminToken)
	assert.NoError(t, RequireUnlocked(ctx))
}

func TestRequireUnlockedIsAuthenticationError(t *testing.T) {
	err := RequireUnlocked(context.Background())
	assert.Equal(t, apperrors.ErrorTypeAuthentication, apperrors.TypeOf(err))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func newTestUnlocker(t *testing.T) (*Unlocker, *TokenService) {
	t.Helper()
	tokens, err := NewTokenService("unlock-secret-32-characters-long-abcdef", "keepsake-test", time.Hour)
	require.NoError(t, err)
	return NewUnlocker(testGate(t, "020747", "231147", "150266"), tokens, logger.Nop()), tokens
}

func TestUnlocker_FullSequence(t *testing.T) {
	ctx := context.Background()
	u, tokens := newTestUnlocker(t)
	assert.Equal(t, 3, u.Total())

	res, err := u.Submit(ctx, "", "020747")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Step)
	assert.NotEmpty(t, res.Ticket)
	assert.Empty(t, res.Token)

	res, err = u.Submit(ctx, res.Ticket, "231147")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Step)

	res, err = u.Submit(ctx, res.Ticket, "150266")
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
	assert.Empty(t, res.Ticket)

	_, err = tokens.ValidateAdmin(ctx, res.Token)
	assert.NoError(t, err)
}

func TestUnlocker_WrongCode(t *testing.T) {
	ctx := context.Background()
	u, _ := newTestUnlocker(t)

	res, err := u.Submit(ctx, "", "020747")
	require.NoError(t, err)

	_, err = u.Submit(ctx, res.Ticket, "000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongCode)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))

	// The same ticket still works afterwards.
	next, err := u.Submit(ctx, res.Ticket, "231147")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Step)
}

func TestUnlocker_CannotSkipSteps(t *testing.T) {
	u, _ := newTestUnlocker(t)
	_, err := u.Submit(context.Background(), "", "150266")
	assert.ErrorIs(t, err, ErrWrongCode)
}

func TestUnlocker_RejectsAdminTokenAsTicket(t *testing.T) {
	ctx := context.Background()
	u, tokens := newTestUnlocker(t)
	admin, err := tokens.IssueAdmin(ctx)
	require.NoError(t, err)

	_, err = u.Submit(ctx, admin, "231147")
	assert.ErrorIs(t, err, ErrWrongScope)
}
