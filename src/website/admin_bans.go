package website

import (
	"net/http"
	"time"

	"git.handmade.network/hmn/boardmod/src/appeals"
	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
)

var appealStatuses = []string{
	string(models.AppealStatusNone),
	string(models.AppealStatusPending),
	string(models.AppealStatusApproved),
	string(models.AppealStatusDenied),
}

func (s *Services) AdminListBans(c *RequestContext) ResponseData {
	limit, offset, err := c.Pagination()
	if err != nil {
		return c.ErrorResponse(err)
	}
	filter := bans.BanFilter{
		BoardID:         cleanBoardID(c.QueryString("board_id")),
		GlobalOnly:      c.QueryBool("global"),
		IPAddress:       utils.Deref(c.QueryString("ip")),
		AppealStatus:    models.AppealStatus(utils.Deref(c.QueryString("appeal_status"))),
		IncludeInactive: c.QueryBool("include_inactive"),
		Limit:           limit,
		Offset:          offset,
	}
	if filter.AppealStatus != "" && !filter.AppealStatus.Valid() {
		return c.ErrorResponse(oops.NotAllowed("Invalid appeal_status", appealStatuses...))
	}
	if !c.Allowed(filter.BoardID, auth.ActionViewBans) {
		return Forbidden(c)
	}

	result, err := s.Bans.ListBans(c, filter)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if result == nil {
		result = []*models.Ban{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{"bans": result}, c.Perf)
	return res
}

// Bans in force right now. With board_id, global bans are folded in, since
// they block that board too.
func (s *Services) AdminActiveBans(c *RequestContext) ResponseData {
	boardID := cleanBoardID(c.QueryString("board_id"))
	if !c.Allowed(boardID, auth.ActionViewBans) {
		return Forbidden(c)
	}

	active, err := s.Bans.GetActiveBans(c, boardID)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if active == nil {
		active = []*models.Ban{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{"bans": active}, c.Perf)
	return res
}

func (s *Services) AdminCreateBan(c *RequestContext) ResponseData {
	var in bans.CreateBanInput
	if err := c.ParseJSON(&in); err != nil {
		return c.ErrorResponse(err)
	}
	in.BoardID = cleanBoardID(in.BoardID)
	if !c.Allowed(in.BoardID, auth.ActionManageBans) {
		return Forbidden(c)
	}
	in.AdminUserID = &c.CurrentUser.ID

	ban, err := s.Bans.CreateBan(c, in)
	if err != nil {
		return c.ErrorResponse(err)
	}

	res := ResponseData{StatusCode: http.StatusCreated}
	res.WriteJson(map[string]any{
		"message": "Ban created successfully",
		"ban":     ban,
	}, c.Perf)
	return res
}

// Loads the ban named in the path, or produces the response to send instead.
func (s *Services) banFromPath(c *RequestContext, action auth.Action) (*models.Ban, *ResponseData) {
	ban, err := s.Bans.GetBanByID(c, c.PathInt("id"))
	if err != nil {
		res := c.ErrorResponse(err)
		return nil, &res
	}
	if ban == nil {
		res := c.JSONError(http.StatusNotFound, "Ban not found")
		return nil, &res
	}
	if !c.Allowed(ban.BoardID, action) {
		res := Forbidden(c)
		return nil, &res
	}
	return ban, nil
}

func (s *Services) AdminGetBan(c *RequestContext) ResponseData {
	ban, errRes := s.banFromPath(c, auth.ActionViewBans)
	if errRes != nil {
		return *errRes
	}

	actions, err := modlog.Fetch(c, s.Conn, modlog.Query{BanID: &ban.ID})
	if err != nil {
		return c.ErrorResponse(err)
	}
	if actions == nil {
		actions = []*models.ModerationAction{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"ban":     ban,
		"actions": actions,
	}, c.Perf)
	return res
}

type banPatchRequest struct {
	Reason       *string                    `json:"reason"`
	ExpiresAt    utils.Optional[*time.Time] `json:"expires_at"`
	IsActive     *bool                      `json:"is_active"`
	AppealStatus *models.AppealStatus       `json:"appeal_status"`
	Note         *string                    `json:"note"`
}

func (s *Services) AdminUpdateBan(c *RequestContext) ResponseData {
	var body banPatchRequest
	if err := c.ParseJSON(&body); err != nil {
		return c.ErrorResponse(err)
	}
	patch := bans.BanPatch{
		Reason:       body.Reason,
		ExpiresAt:    body.ExpiresAt,
		IsActive:     body.IsActive,
		AppealStatus: body.AppealStatus,
		AdminUserID:  &c.CurrentUser.ID,
		Note:         body.Note,
	}
	if patch.IsEmpty() {
		return c.ErrorResponse(oops.NotAllowed("No fields to update", "reason", "expires_at", "is_active", "appeal_status"))
	}

	ban, errRes := s.banFromPath(c, auth.ActionManageBans)
	if errRes != nil {
		return *errRes
	}
	if patch.AppealStatus != nil && !c.Allowed(ban.BoardID, auth.ActionResolveAppeals) {
		return Forbidden(c)
	}

	updated, err := s.Bans.UpdateBan(c, ban.ID, patch)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if updated == nil {
		return c.JSONError(http.StatusNotFound, "Ban not found")
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"message": "Ban updated successfully",
		"ban":     updated,
	}, c.Perf)
	return res
}

func (s *Services) AdminResolveAppeal(c *RequestContext) ResponseData {
	var body struct {
		Approve *bool  `json:"approve"`
		LiftBan bool   `json:"lift_ban"`
		Note    string `json:"note"`
	}
	if err := c.ParseJSON(&body); err != nil {
		return c.ErrorResponse(err)
	}
	if body.Approve == nil {
		return c.ErrorResponse(&oops.ValidationError{
			Message:  "Missing required fields",
			Required: []string{"approve"},
		})
	}

	ban, errRes := s.banFromPath(c, auth.ActionResolveAppeals)
	if errRes != nil {
		return *errRes
	}

	updated, err := s.Appeals.Resolve(c, ban.ID, c.CurrentUser.ID, appeals.Resolution{
		Approve: *body.Approve,
		LiftBan: body.LiftBan,
		Note:    body.Note,
	})
	if err != nil {
		return c.ErrorResponse(err)
	}

	message := "Appeal denied"
	if *body.Approve {
		message = "Appeal approved"
	}
	var res ResponseData
	res.WriteJson(map[string]any{
		"message": message,
		"ban":     updated,
	}, c.Perf)
	return res
}
