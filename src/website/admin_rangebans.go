package website

import (
	"net/http"
	"time"

	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/geo"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/rangebans"
	"git.handmade.network/hmn/boardmod/src/utils"
)

func rangebanTypeNames() []string {
	names := make([]string, 0, len(models.RangebanTypes))
	for _, t := range models.RangebanTypes {
		names = append(names, string(t))
	}
	return names
}

func (s *Services) AdminListRangebans(c *RequestContext) ResponseData {
	limit, offset, err := c.Pagination()
	if err != nil {
		return c.ErrorResponse(err)
	}
	filter := rangebans.RangebanFilter{
		BoardID:         cleanBoardID(c.QueryString("board_id")),
		IncludeGlobal:   c.QueryBool("include_global"),
		BanType:         models.RangebanType(utils.Deref(c.QueryString("type"))),
		IncludeInactive: c.QueryBool("include_inactive"),
		Limit:           limit,
		Offset:          offset,
	}
	if filter.BanType != "" && !filter.BanType.Valid() {
		return c.ErrorResponse(oops.NotAllowed("Invalid type", rangebanTypeNames()...))
	}
	if !c.Allowed(filter.BoardID, auth.ActionViewRangebans) {
		return Forbidden(c)
	}

	result, err := s.Rangebans.ListRangebans(c, filter)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if result == nil {
		result = []*models.Rangeban{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{"rangebans": result}, c.Perf)
	return res
}

// Rangebans in force right now. With board_id, global rangebans are folded in.
func (s *Services) AdminActiveRangebans(c *RequestContext) ResponseData {
	boardID := cleanBoardID(c.QueryString("board_id"))
	if !c.Allowed(boardID, auth.ActionViewRangebans) {
		return Forbidden(c)
	}

	active, err := s.Rangebans.GetActiveRangebans(c, boardID)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if active == nil {
		active = []*models.Rangeban{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{"rangebans": active}, c.Perf)
	return res
}

func (s *Services) AdminCreateRangeban(c *RequestContext) ResponseData {
	var in rangebans.CreateRangebanInput
	if err := c.ParseJSON(&in); err != nil {
		return c.ErrorResponse(err)
	}
	in.BoardID = cleanBoardID(in.BoardID)
	if !c.Allowed(in.BoardID, auth.ActionManageRangebans) {
		return Forbidden(c)
	}
	in.AdminUserID = &c.CurrentUser.ID

	rangeban, err := s.Rangebans.CreateRangeban(c, in)
	if err != nil {
		return c.ErrorResponse(err)
	}

	res := ResponseData{StatusCode: http.StatusCreated}
	res.WriteJson(map[string]any{
		"message":  "Rangeban created successfully",
		"rangeban": rangeban,
	}, c.Perf)
	return res
}

func (s *Services) rangebanFromPath(c *RequestContext, action auth.Action) (*models.Rangeban, *ResponseData) {
	rangeban, err := s.Rangebans.GetRangebanByID(c, c.PathInt("id"))
	if err != nil {
		res := c.ErrorResponse(err)
		return nil, &res
	}
	if rangeban == nil {
		res := c.JSONError(http.StatusNotFound, "Rangeban not found")
		return nil, &res
	}
	if !c.Allowed(rangeban.BoardID, action) {
		res := Forbidden(c)
		return nil, &res
	}
	return rangeban, nil
}

func (s *Services) AdminGetRangeban(c *RequestContext) ResponseData {
	rangeban, errRes := s.rangebanFromPath(c, auth.ActionViewRangebans)
	if errRes != nil {
		return *errRes
	}

	actions, err := modlog.Fetch(c, s.Conn, modlog.Query{RangebanID: &rangeban.ID})
	if err != nil {
		return c.ErrorResponse(err)
	}
	if actions == nil {
		actions = []*models.ModerationAction{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"rangeban": rangeban,
		"actions":  actions,
	}, c.Perf)
	return res
}

func (s *Services) AdminUpdateRangeban(c *RequestContext) ResponseData {
	var body struct {
		Reason    *string                    `json:"reason"`
		ExpiresAt utils.Optional[*time.Time] `json:"expires_at"`
		IsActive  *bool                      `json:"is_active"`
	}
	if err := c.ParseJSON(&body); err != nil {
		return c.ErrorResponse(err)
	}
	patch := rangebans.RangebanPatch{
		Reason:      body.Reason,
		ExpiresAt:   body.ExpiresAt,
		IsActive:    body.IsActive,
		AdminUserID: &c.CurrentUser.ID,
	}
	if patch.IsEmpty() {
		return c.ErrorResponse(oops.NotAllowed("No fields to update", "reason", "expires_at", "is_active"))
	}

	rangeban, errRes := s.rangebanFromPath(c, auth.ActionManageRangebans)
	if errRes != nil {
		return *errRes
	}

	updated, err := s.Rangebans.UpdateRangeban(c, rangeban.ID, patch)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if updated == nil {
		return c.JSONError(http.StatusNotFound, "Rangeban not found")
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"message":  "Rangeban updated successfully",
		"rangeban": updated,
	}, c.Perf)
	return res
}

type countryStat struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Count       int    `json:"count"`
}

func (s *Services) AdminRangebanStats(c *RequestContext) ResponseData {
	if !c.Allowed(nil, auth.ActionViewRangebans) {
		return Forbidden(c)
	}

	stats, err := s.Rangebans.GetRangebanStats(c)
	if err != nil {
		return c.ErrorResponse(err)
	}

	countries := make([]countryStat, 0, len(stats.TopCountries))
	for _, country := range stats.TopCountries {
		countries = append(countries, countryStat{
			CountryCode: country.CountryCode,
			CountryName: geo.CountryName(country.CountryCode),
			Count:       country.Count,
		})
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"by_type":       stats.ByType,
		"top_countries": countries,
	}, c.Perf)
	return res
}
