package auth

import (
	"context"
	"testing"
	"time"

	"git.handmade.network/hmn/boardmod/src/dbtest"
	"git.handmade.network/hmn/boardmod/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSessionId(t *testing.T) {
	a, b := makeSessionId(), makeSessionId()
	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
}

func TestSessions(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, pool, "Tanya", models.RoleModerator, []string{"tech"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech"}, user.Boards)

	_, err = CreateUser(ctx, pool, "tanya", models.RoleAdmin, nil)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	found, err := FetchUserByUsername(ctx, pool, "TANYA")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = FetchUserByUsername(ctx, pool, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	sess, err := CreateSession(ctx, pool, user.ID, time.Hour)
	require.NoError(t, err)

	sessUser, err := FetchUserForSession(ctx, pool, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tanya", sessUser.Username)
	assert.Equal(t, models.RoleModerator, sessUser.Role)

	expired, err := CreateSession(ctx, pool, user.ID, -time.Minute)
	require.NoError(t, err)
	_, err = FetchUserForSession(ctx, pool, expired.ID)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = GetSession(ctx, pool, expired.ID)
	assert.ErrorIs(t, err, ErrNoSession)

	n, err := DeleteExpiredSessions(ctx, pool)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, DeleteSession(ctx, pool, sess.ID))
	_, err = GetSession(ctx, pool, sess.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}
