package website

import (
	"errors"
	"net/http"

	"git.handmade.network/hmn/boardmod/src/auth"
)

/*
Describes the current user and session.

A POST also sets the session cookie, so a token issued by `boardmod admin
token` can be traded for a cookie by a browser-based panel.
*/
func (s *Services) AdminSession(c *RequestContext) ResponseData {
	session, err := auth.GetSession(c, s.Conn, c.CurrentSession)
	if errors.Is(err, auth.ErrNoSession) {
		// Expired between loading the user and now.
		return c.JSONError(http.StatusUnauthorized, "Authentication required")
	} else if err != nil {
		return c.ErrorResponse(err)
	}

	var res ResponseData
	if c.Req.Method == http.MethodPost {
		res.SetCookie(auth.NewSessionCookie(session))
	}
	res.WriteJson(map[string]any{
		"user":       c.CurrentUser,
		"expires_at": session.ExpiresAt,
	}, c.Perf)
	return res
}

func (s *Services) AdminLogout(c *RequestContext) ResponseData {
	if err := auth.DeleteSession(c, s.Conn, c.CurrentSession); err != nil {
		return c.ErrorResponse(err)
	}

	var res ResponseData
	res.SetCookie(auth.DeleteSessionCookie)
	res.WriteJson(map[string]any{"message": "Logged out"}, c.Perf)
	return res
}
