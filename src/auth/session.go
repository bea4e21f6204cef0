package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"git.handmade.network/hmn/boardmod/src/config"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/jobs"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
	"github.com/rs/zerolog"
)

func makeSessionId() string {
	idBytes := make([]byte, 40)
	_, err := io.ReadFull(rand.Reader, idBytes)
	if err != nil {
		panic(err)
	}

	return base64.RawURLEncoding.EncodeToString(idBytes)[:40]
}

var ErrNoSession = errors.New("no session found")

// Returns ErrNoSession if the session doesn't exist or has expired.
func GetSession(ctx context.Context, conn db.ConnOrTx, id string) (*models.Session, error) {
	sess, err := db.QueryOne[models.Session](ctx, conn,
		`
		---- Fetch session
		SELECT $columns
		FROM admin_session
		WHERE id = $1 AND expires_at > NOW()
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrNoSession
	} else if err != nil {
		return nil, oops.New(err, "failed to get session")
	}
	return sess, nil
}

func CreateSession(ctx context.Context, conn db.ConnOrTx, userID int, duration time.Duration) (*models.Session, error) {
	sess, err := db.QueryOne[models.Session](ctx, conn,
		`
		---- Create session
		INSERT INTO admin_session (id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING $columns
		`,
		makeSessionId(),
		userID,
		time.Now().Add(duration),
	)
	if err != nil {
		return nil, oops.New(err, "failed to persist session")
	}
	return sess, nil
}

// Deletes a session by id. If no session with that id exists, no
// error is returned.
func DeleteSession(ctx context.Context, conn db.ConnOrTx, id string) error {
	_, err := conn.Exec(ctx, "DELETE FROM admin_session WHERE id = $1", id)
	if err != nil {
		return oops.New(err, "failed to delete session")
	}

	return nil
}

func NewSessionCookie(session *models.Session) *http.Cookie {
	return &http.Cookie{
		Name:  config.Config.Auth.CookieName,
		Value: session.ID,

		Domain:  config.Config.Auth.CookieDomain,
		Expires: session.ExpiresAt,

		Secure:   config.Config.Auth.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

var DeleteSessionCookie = &http.Cookie{
	Name:   config.Config.Auth.CookieName,
	Domain: config.Config.Auth.CookieDomain,
	MaxAge: -1,
}

func DeleteExpiredSessions(ctx context.Context, conn db.ConnOrTx) (int64, error) {
	tag, err := conn.Exec(ctx, "DELETE FROM admin_session WHERE expires_at <= CURRENT_TIMESTAMP")
	if err != nil {
		return 0, oops.New(err, "failed to delete expired sessions")
	}

	return tag.RowsAffected(), nil
}

func PeriodicallyDeleteExpiredSessions(conn db.ConnOrTx) *jobs.Job {
	return jobs.Periodically("expired session cleanup", time.Minute, false, func(ctx context.Context, logger *zerolog.Logger) error {
		n, err := DeleteExpiredSessions(ctx, conn)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info().Int64("num deleted sessions", n).Msg("Deleted expired sessions")
		}
		return nil
	})
}
