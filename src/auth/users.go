package auth

import (
	"context"
	"errors"
	"strings"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
)

var ErrUserNotFound = errors.New("admin user not found")
var ErrUsernameTaken = errors.New("username is already taken")

func CreateUser(ctx context.Context, conn db.ConnOrTx, username string, role models.Role, boards []string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := oops.RequireFields("username", username); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, oops.NotAllowed("Invalid role", string(models.RoleAdmin), string(models.RoleModerator), string(models.RoleJanitor))
	}
	if boards == nil {
		boards = []string{}
	}

	user, err := db.QueryOne[models.User](ctx, conn,
		`
		---- Create admin user
		INSERT INTO admin_user (username, role, boards)
		VALUES ($1, $2, $3)
		RETURNING $columns
		`,
		username,
		role,
		boards,
	)
	if db.IsUniqueViolation(err) {
		return nil, ErrUsernameTaken
	} else if err != nil {
		return nil, oops.New(err, "failed to create admin user")
	}
	return user, nil
}

func FetchUserByUsername(ctx context.Context, conn db.ConnOrTx, username string) (*models.User, error) {
	user, err := db.QueryOne[models.User](ctx, conn,
		`
		---- Fetch admin user by username
		SELECT $columns
		FROM admin_user
		WHERE LOWER(username) = LOWER($1)
		`,
		username,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch admin user")
	}
	return user, nil
}

// Resolves a session id to its user. Returns ErrNoSession for unknown or
// expired sessions.
func FetchUserForSession(ctx context.Context, conn db.ConnOrTx, sessionID string) (*models.User, error) {
	type sessionUser struct {
		User models.User `db:"admin_user"`
	}
	result, err := db.QueryOne[sessionUser](ctx, conn,
		`
		---- Fetch user for session
		SELECT $columns
		FROM
			admin_session
			JOIN admin_user ON admin_user.id = admin_session.user_id
		WHERE
			admin_session.id = $1
			AND admin_session.expires_at > NOW()
		`,
		sessionID,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrNoSession
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch user for session")
	}
	return &result.User, nil
}
