package website

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"git.handmade.network/hmn/boardmod/src/appeals"
	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/enforcement"
	"git.handmade.network/hmn/boardmod/src/rangebans"
	"git.handmade.network/hmn/boardmod/src/utils"
)

// Everything the routes need, built once by the website command.
type Services struct {
	Conn      db.ConnOrTx
	Bans      *bans.Store
	Rangebans *rangebans.Store
	Audit     *auditlog.Log
	Enforcer  *enforcement.Enforcer
	Appeals   *appeals.Workflow

	// Handles post and thread creation once a visitor has passed ban
	// enforcement. Without one, posting answers 501.
	Posts http.Handler
}

func NewWebsiteRoutes(s *Services) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			requestLoggerMiddleware,
			trackRequestPerf,
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
		},
	}

	routes.GET(regexp.MustCompile(`^/healthz$`), func(c *RequestContext) ResponseData {
		var res ResponseData
		res.WriteJson(map[string]string{"status": "ok"}, c.Perf)
		return res
	})

	boards := routes.Group(regexp.MustCompile(`^/api/boards/(?P<board>[A-Za-z0-9_-]+)`))
	{
		// Appeals stay reachable for banned visitors.
		boards.GET(regexp.MustCompile(`^/ban-status$`), s.BanStatus)
		boards.GET(regexp.MustCompile(`^/appeal/(?P<banId>\d+)$`), s.AppealStatus)
		boards.POST(regexp.MustCompile(`^/appeal/(?P<banId>\d+)$`), s.SubmitAppeal)
		boards.GET(regexp.MustCompile(`^/posts/(?P<postId>\d+)/bans$`), s.PostBans)

		enforced := boards.WithMiddleware(enforceBans(s.Enforcer))
		enforced.POST(regexp.MustCompile(`^/posts$`), s.ForwardPost)
		enforced.POST(regexp.MustCompile(`^/threads$`), s.ForwardPost)
		enforced.POST(regexp.MustCompile(`^/threads/(?P<threadId>\d+)/posts$`), s.ForwardPost)
	}

	admin := routes.Group(regexp.MustCompile(`^/api/admin`), loadCurrentUser(s.Conn), needsAuth)
	{
		admin.GET(regexp.MustCompile(`^/session$`), s.AdminSession)
		admin.POST(regexp.MustCompile(`^/session$`), s.AdminSession)
		admin.DELETE(regexp.MustCompile(`^/session$`), s.AdminLogout)

		admin.GET(regexp.MustCompile(`^/bans$`), s.AdminListBans)
		admin.POST(regexp.MustCompile(`^/bans$`), s.AdminCreateBan)
		admin.GET(regexp.MustCompile(`^/bans/active$`), s.AdminActiveBans)
		admin.GET(regexp.MustCompile(`^/bans/(?P<id>\d+)$`), s.AdminGetBan)
		admin.PATCH(regexp.MustCompile(`^/bans/(?P<id>\d+)$`), s.AdminUpdateBan)
		admin.POST(regexp.MustCompile(`^/bans/(?P<id>\d+)/appeal$`), s.AdminResolveAppeal)

		admin.GET(regexp.MustCompile(`^/rangebans$`), s.AdminListRangebans)
		admin.POST(regexp.MustCompile(`^/rangebans$`), s.AdminCreateRangeban)
		admin.GET(regexp.MustCompile(`^/rangebans/stats$`), s.AdminRangebanStats)
		admin.GET(regexp.MustCompile(`^/rangebans/active$`), s.AdminActiveRangebans)
		admin.GET(regexp.MustCompile(`^/rangebans/(?P<id>\d+)$`), s.AdminGetRangeban)
		admin.PATCH(regexp.MustCompile(`^/rangebans/(?P<id>\d+)$`), s.AdminUpdateRangeban)

		admin.GET(regexp.MustCompile(`^/ip-history/problematic$`), s.AdminProblematicIPs)
		admin.GET(regexp.MustCompile(`^/ip-history/stats$`), s.AdminIPHistoryStats)
		admin.DELETE(regexp.MustCompile(`^/ip-history/cleanup$`), s.AdminCleanupIPHistory)
		admin.POST(regexp.MustCompile(`^/ip-history$`), s.AdminRecordIPAction)
		admin.GET(regexp.MustCompile(`^/ip-history/(?P<ip>[^/]+)/summary$`), s.AdminIPSummary)
		admin.GET(regexp.MustCompile(`^/ip-history/(?P<ip>[^/]+)$`), s.AdminIPHistory)
	}

	routes.AnyMethod(regexp.MustCompile(`^`), FourOhFour)

	return router
}

func (c *RequestContext) PathInt(name string) int {
	// Route regexes only let digits through, so this only fails on overflow.
	v, _ := strconv.Atoi(c.PathParams[name])
	return v
}

// Optional RFC 3339 timestamp query parameter.
func (c *RequestContext) QueryTime(name string) (*time.Time, error) {
	raw := c.QueryString(name)
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, NewSafeError(err, "Invalid value for %s: expected an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// Reports whether the current user may perform action on boardID (nil for
// site-wide). Handlers return Forbidden when it doesn't.
func (c *RequestContext) Allowed(boardID *string, action auth.Action) bool {
	return auth.Allow(c.CurrentUser, boardID, action)
}

func Forbidden(c *RequestContext) ResponseData {
	return c.JSONError(http.StatusForbidden, "Insufficient permissions")
}

// Treats a blank board id the same as none at all.
func cleanBoardID(boardID *string) *string {
	if boardID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*boardID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func (c *RequestContext) Pagination() (limit, offset int, err error) {
	limit, err = c.QueryInt("limit", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err = c.QueryInt("offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	return utils.Clamp(1, limit, maxPageSize), utils.Max(offset, 0), nil
}
