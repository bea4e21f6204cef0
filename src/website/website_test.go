package website

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"git.handmade.network/hmn/boardmod/src/appeals"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/enforcement"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/rangebans"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "9.9.9.9:1234", "1.1.1.1"},
		{"true client ip", map[string]string{"True-Client-IP": "3.3.3.3", "X-Forwarded-For": "4.4.4.4"}, "", "3.3.3.3"},
		{"real ip before forwarded", map[string]string{"X-Real-IP": "2.2.2.2", "X-Forwarded-For": "4.4.4.4"}, "", "2.2.2.2"},
		{"first forwarded entry", map[string]string{"X-Forwarded-For": " 4.4.4.4 , 10.0.0.1, 10.0.0.2"}, "", "4.4.4.4"},
		{"platform ip mapped", map[string]string{"X-Client-IP": "::ffff:5.5.5.5"}, "", "5.5.5.5"},
		{"socket address", nil, "6.6.6.6:5555", "6.6.6.6"},
		{"socket v6 mapped", nil, "[::ffff:7.7.7.7]:5555", "7.7.7.7"},
		{"socket v6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"nothing at all", nil, "", UnknownIP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.expected, ClientIP(req))
		})
	}
}

func TestLogContextErrors(t *testing.T) {
	err1 := errors.New("test error 1")
	err2 := errors.New("test error 2")

	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Print("sanity check")

	assert.Contains(t, buf.String(), "sanity check")

	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			func(h Handler) Handler {
				return func(c *RequestContext) (res ResponseData) {
					c.Logger = &logger
					return logContextErrorsMiddleware(h)(c)
				}
			},
		},
	}

	routes.GET(regexp.MustCompile("^/test$"), func(c *RequestContext) ResponseData {
		return c.ErrorResponse(errors.Join(err1, err2))
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/test")
	if assert.Nil(t, err) {
		defer res.Body.Close()

		t.Logf("Log contents: %s", buf.String())

		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

		assert.Contains(t, buf.String(), err1.Error())
		assert.Contains(t, buf.String(), err2.Error())
	}
}

func TestCleanBoardID(t *testing.T) {
	assert.Nil(t, cleanBoardID(nil))
	assert.Nil(t, cleanBoardID(utils.P("")))
	assert.Nil(t, cleanBoardID(utils.P("  ")))
	assert.Equal(t, "tech", *cleanBoardID(utils.P(" tech ")))
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{oops.RequireFields("ip_address", "", "reason", "x"), http.StatusBadRequest, "Missing required fields"},
		{oops.New(rangebans.ErrActiveRangebanExists, "create failed"), http.StatusConflict, "Active rangeban already exists for this value"},
		{appeals.ErrBanNotFound, http.StatusNotFound, "Ban not found"},
		{appeals.ErrWrongBoard, http.StatusForbidden, "Ban does not belong to this board"},
		{appeals.ErrBanInactive, http.StatusBadRequest, "Ban is no longer active"},
		{appeals.ErrAppealTextRequired, http.StatusBadRequest, "Appeal text is required"},
		{&appeals.AlreadyAppealedError{Status: models.AppealStatusPending}, http.StatusBadRequest, "Appeal already pending"},
		{&appeals.AlreadyAppealedError{Status: models.AppealStatusDenied}, http.StatusBadRequest, "Appeal already denied"},
		{bans.ErrInvalidAppealTransition, http.StatusBadRequest, "Invalid appeal status change"},
		{NewSafeError(errors.New("strconv"), "Invalid value for %s", "limit"), http.StatusBadRequest, "Invalid value for limit"},
		{errors.New("connection refused to 10.0.0.5"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		status, body := classifyError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.message, body.Error, tc.err.Error())
	}

	_, body := classifyError(oops.RequireFields("ip_address", "", "reason", ""))
	assert.Equal(t, []string{"ip_address", "reason"}, body.Required)
}

type fakeBanChecker struct {
	ban *models.Ban
}

func (f *fakeBanChecker) CheckIPBanned(ctx context.Context, ip string, boardID string) (*models.Ban, error) {
	if f.ban != nil && f.ban.IPAddress == ip && f.ban.AppliesToBoard(boardID) {
		return f.ban, nil
	}
	return nil, nil
}

type fakeRangebanChecker struct {
	country *models.Rangeban
}

func (f *fakeRangebanChecker) CheckCountryBanned(ctx context.Context, code string, boardID string) (*models.Rangeban, error) {
	if f.country != nil && f.country.BanValue == code {
		return f.country, nil
	}
	return nil, nil
}

func (f *fakeRangebanChecker) CheckASNBanned(ctx context.Context, asn uint, boardID string) (*models.Rangeban, error) {
	return nil, nil
}

func (f *fakeRangebanChecker) CheckIPRangeBanned(ctx context.Context, ip string, boardID string) (*models.Rangeban, error) {
	return nil, nil
}

type fakeCountries map[string]string

func (f fakeCountries) CountryCode(ctx context.Context, ip string) (string, error) {
	return f[ip], nil
}

// Appeals workflow store backed by a single ban.
type fakeAppealBans struct {
	ban *models.Ban
}

func (f *fakeAppealBans) GetBanByID(ctx context.Context, id int) (*models.Ban, error) {
	if f.ban == nil || f.ban.ID != id {
		return nil, nil
	}
	copied := *f.ban
	return &copied, nil
}

func (f *fakeAppealBans) SubmitAppeal(ctx context.Context, id int, text string) (*models.Ban, error) {
	if f.ban == nil || f.ban.ID != id || !f.ban.IsActive || f.ban.AppealStatus != models.AppealStatusNone {
		return nil, nil
	}
	f.ban.AppealStatus = models.AppealStatusPending
	f.ban.AppealText = &text
	return f.GetBanByID(ctx, id)
}

func (f *fakeAppealBans) UpdateBan(ctx context.Context, id int, patch bans.BanPatch) (*models.Ban, error) {
	return nil, errors.New("not used")
}

func newTestRoutes(posted *int) http.Handler {
	ipBan := &models.Ban{
		ID:           12,
		IPAddress:    "1.2.3.4",
		BoardID:      utils.P("tech"),
		Reason:       "spam",
		IsActive:     true,
		AppealStatus: models.AppealStatusNone,
		PostContent:  utils.P("offending text"),
		PostImageURL: utils.P("https://img.example/1.png"),
		ThreadID:     utils.P(5),
		PostID:       utils.P(77),
	}
	chinaBan := &models.Rangeban{
		ID:       3,
		BanType:  models.RangebanTypeCountry,
		BanValue: "CN",
		Reason:   "raids",
		IsActive: true,
	}

	return NewWebsiteRoutes(&Services{
		Enforcer: enforcement.New(
			&fakeBanChecker{ban: ipBan},
			&fakeRangebanChecker{country: chinaBan},
			fakeCountries{"1.2.3.4": "US", "8.8.8.8": "US", "36.0.0.1": "CN"},
		),
		Appeals: appeals.New(&fakeAppealBans{ban: ipBan}),
		Posts: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*posted++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":1}`))
		}),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, ip string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("CF-Connecting-IP", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestEnforcement(t *testing.T) {
	posted := 0
	routes := newTestRoutes(&posted)

	t.Run("banned on board", func(t *testing.T) {
		rec, body := doJSON(t, routes, http.MethodPost, "/api/boards/tech/posts", "1.2.3.4", map[string]string{"content": "hi"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Banned", body["error"])
		assert.Equal(t, "You are banned from this board permanently: spam", body["message"])
		ban := body["ban"].(map[string]any)
		assert.EqualValues(t, 12, ban["id"])
		assert.Equal(t, true, ban["can_appeal"])
		assert.NotContains(t, ban, "ip_address")
		assert.NotContains(t, ban, "admin_user_id")
		assert.NotContains(t, ban, "appeal_text")
		assert.Equal(t, "offending text", ban["post_content"])
		assert.Equal(t, "https://img.example/1.png", ban["post_image_url"])
		assert.EqualValues(t, 5, ban["thread_id"])
		assert.EqualValues(t, 77, ban["post_id"])
		assert.NotContains(t, body, "rangeban")
		assert.Equal(t, 0, posted)
	})

	t.Run("other board passes through", func(t *testing.T) {
		rec, body := doJSON(t, routes, http.MethodPost, "/api/boards/gaming/threads", "1.2.3.4", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.EqualValues(t, 1, body["id"])
		assert.Equal(t, 1, posted)
	})

	t.Run("country rangeban", func(t *testing.T) {
		rec, body := doJSON(t, routes, http.MethodPost, "/api/boards/tech/threads/5/posts", "36.0.0.1", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Country Rangebanned", body["error"])
		assert.Equal(t, "Your country is not allowed to post on this site", body["message"])
		assert.Contains(t, body, "rangeban")
		assert.Equal(t, 1, posted)
	})

	t.Run("ban status", func(t *testing.T) {
		rec, body := doJSON(t, routes, http.MethodGet, "/api/boards/tech/ban-status", "1.2.3.4", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["banned"])
		assert.Equal(t, "Banned", body["error"])
		assert.Equal(t, "offending text", body["ban"].(map[string]any)["post_content"])

		_, body = doJSON(t, routes, http.MethodGet, "/api/boards/tech/ban-status", "8.8.8.8", nil)
		assert.Equal(t, map[string]any{"banned": false}, body)
	})

	t.Run("banned visitor can appeal", func(t *testing.T) {
		rec, body := doJSON(t, routes, http.MethodGet, "/api/boards/tech/appeal/12", "1.2.3.4", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "none", body["appeal_status"])

		rec, body = doJSON(t, routes, http.MethodPost, "/api/boards/tech/appeal/12", "1.2.3.4", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Appeal text is required", body["error"])

		rec, body = doJSON(t, routes, http.MethodPost, "/api/boards/tech/appeal/12", "1.2.3.4", map[string]string{"appealText": "please unban"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pending", body["status"])

		rec, body = doJSON(t, routes, http.MethodPost, "/api/boards/tech/appeal/12", "1.2.3.4", map[string]string{"appealText": "again"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Appeal already pending", body["error"])

		rec, _ = doJSON(t, routes, http.MethodGet, "/api/boards/gaming/appeal/12", "1.2.3.4", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec, _ = doJSON(t, routes, http.MethodGet, "/api/boards/tech/appeal/99", "1.2.3.4", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouting(t *testing.T) {
	posted := 0
	routes := newTestRoutes(&posted)

	rec, body := doJSON(t, routes, http.MethodGet, "/api/nowhere", "8.8.8.8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", body["error"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = doJSON(t, routes, http.MethodGet, "/api/admin/bans", "8.8.8.8", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", body["error"])

	rec, _ = doJSON(t, routes, http.MethodGet, "/healthz", "8.8.8.8", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostingUnavailable(t *testing.T) {
	routes := NewWebsiteRoutes(&Services{
		Enforcer: enforcement.New(&fakeBanChecker{}, &fakeRangebanChecker{}, fakeCountries{}),
	})
	rec, body := doJSON(t, routes, http.MethodPost, "/api/boards/tech/posts", "8.8.8.8", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "Posting is not available", body["error"])
}

func TestPanicsBecome500(t *testing.T) {
	router := &Router{}
	routes := RouteBuilder{
		Router:      router,
		Middlewares: []Middleware{panicCatcherMiddleware},
	}
	routes.GET(regexp.MustCompile("^/boom$"), func(c *RequestContext) ResponseData {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
