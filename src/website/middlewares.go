package website

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/config"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/enforcement"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/perf"
	"github.com/google/uuid"
)

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(error)
				var err error
				if ok {
					err = oops.New(maybeError, "recovered from panic")
				} else {
					err = oops.New(nil, fmt.Sprintf("Recovered from panic with value: %v", recovered))
				}
				res = c.ErrorResponse(err)
			}
		}()

		return h(c)
	}
}

// Tags the request logger with a request id, which is also echoed back to
// the client so reports can be matched to logs.
func requestLoggerMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		c.RequestID = c.Req.Header.Get("X-Request-ID")
		if c.RequestID == "" {
			c.RequestID = uuid.NewString()
		}
		logger := c.Logger.With().
			Str("request_id", c.RequestID).
			Str("route", c.Route).
			Logger()
		c.SetLogger(&logger)

		res := h(c)
		res.Header().Set("X-Request-ID", c.RequestID)
		return res
	}
}

func trackRequestPerf(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
		defer func() {
			c.Perf.EndRequest()
			log := c.Logger.Debug()
			blockStack := make([]time.Time, 0)
			for i, block := range c.Perf.Blocks {
				for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
					blockStack = blockStack[:len(blockStack)-1]
				}
				log.Str(fmt.Sprintf("[%4.d] At %9.2fms", i, c.Perf.MsFromStart(&block)), fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()))
				blockStack = append(blockStack, block.End)
			}
			log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.End.Sub(c.Perf.Start).Nanoseconds())/1000/1000))
		}()

		return h(c)
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.Req.URL.String()).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.Errors...)
		return res
	}
}

// The session id comes from the session cookie, or from a bearer token for
// scripts and other API clients.
func sessionIDFromRequest(req *http.Request) string {
	if cookie, err := req.Cookie(config.Config.Auth.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func loadCurrentUser(conn db.ConnOrTx) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			sessionID := sessionIDFromRequest(c.Req)
			if sessionID != "" {
				user, err := auth.FetchUserForSession(c, conn, sessionID)
				if err == nil {
					c.CurrentUser = user
					c.CurrentSession = sessionID
					logger := c.Logger.With().Str("admin", user.Username).Logger()
					c.SetLogger(&logger)
				} else if !errors.Is(err, auth.ErrNoSession) {
					return c.ErrorResponse(oops.New(err, "failed to get current user"))
				}
			}

			return h(c)
		}
	}
}

func needsAuth(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.CurrentUser == nil {
			return c.JSONError(http.StatusUnauthorized, "Authentication required")
		}

		return h(c)
	}
}

type blockedResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Ban      any    `json:"ban,omitempty"`
	Rangeban any    `json:"rangeban,omitempty"`
}

func blockedBody(d enforcement.Decision) blockedResponse {
	body := blockedResponse{Message: d.Message()}
	if d.Kind == enforcement.IPBan {
		body.Error = "Banned"
		body.Ban = publicBan(d.Ban)
	} else {
		body.Error = "Country Rangebanned"
		if d.Kind != enforcement.CountryRangeban {
			body.Error = "Rangebanned"
		}
		body.Rangeban = publicRangeban(d.Rangeban)
	}
	return body
}

// Stops banned visitors from reaching the wrapped handler. The board comes
// from the "board" path parameter.
func enforceBans(enforcer *enforcement.Enforcer) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			decision := enforcer.Evaluate(c, c.GetIP(), c.PathParams["board"])
			if !decision.Blocked() {
				return h(c)
			}

			c.Logger.Info().
				Str("ip", c.GetIP()).
				Str("board", c.PathParams["board"]).
				Str("kind", string(decision.Kind)).
				Msg("blocked request")

			res := ResponseData{StatusCode: http.StatusForbidden}
			res.WriteJson(blockedBody(decision), c.Perf)
			return res
		}
	}
}
