package website

import (
	"fmt"
	"net/http"

	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
)

func (s *Services) AdminIPHistory(c *RequestContext) ResponseData {
	ip := c.PathParams["ip"]
	limit, offset, err := c.Pagination()
	if err != nil {
		return c.ErrorResponse(err)
	}
	since, err := c.QueryTime("since")
	if err != nil {
		return c.ErrorResponse(err)
	}
	until, err := c.QueryTime("until")
	if err != nil {
		return c.ErrorResponse(err)
	}
	q := auditlog.ActionsQuery{
		BoardID:    cleanBoardID(c.QueryString("board_id")),
		ActionType: utils.Deref(c.QueryString("action_type")),
		Since:      since,
		Until:      until,
		Limit:      limit,
		Offset:     offset,
	}
	if !c.Allowed(q.BoardID, auth.ActionViewIPHistory) {
		return Forbidden(c)
	}

	actions, err := s.Audit.GetActionsByIP(c, ip, q)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if actions == nil {
		actions = []*models.IPActionHistoryEntry{}
	}

	// Looking someone up is itself ledgered. It shouldn't cost the moderator
	// the answer if that fails.
	_, err = modlog.Write(c, s.Conn, modlog.Entry{
		AdminUserID: &c.CurrentUser.ID,
		ActionType:  models.ModActionViewIP,
		BoardID:     q.BoardID,
		IPAddress:   &ip,
	})
	if err != nil {
		c.Logger.Error().Err(err).Str("ip", ip).Msg("failed to ledger IP history view")
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"ip_address": ip,
		"actions":    actions,
	}, c.Perf)
	return res
}

func (s *Services) AdminIPSummary(c *RequestContext) ResponseData {
	if !c.Allowed(nil, auth.ActionViewIPHistory) {
		return Forbidden(c)
	}

	ip := c.PathParams["ip"]
	summary, err := s.Audit.GetIPSummary(c, ip)
	if err != nil {
		return c.ErrorResponse(err)
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"ip_address": ip,
		"summary":    summary,
	}, c.Perf)
	return res
}

func (s *Services) AdminProblematicIPs(c *RequestContext) ResponseData {
	if !c.Allowed(nil, auth.ActionViewIPHistory) {
		return Forbidden(c)
	}

	var q auditlog.ProblematicQuery
	var err error
	if q.Days, err = c.QueryInt("days", 0); err != nil {
		return c.ErrorResponse(err)
	}
	if q.MinActions, err = c.QueryInt("min_actions", 0); err != nil {
		return c.ErrorResponse(err)
	}
	if q.Limit, err = c.QueryInt("limit", 0); err != nil {
		return c.ErrorResponse(err)
	}

	ips, err := s.Audit.GetProblematicIPs(c, q)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if ips == nil {
		ips = []*auditlog.ProblematicIP{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{"ips": ips}, c.Perf)
	return res
}

func (s *Services) AdminIPHistoryStats(c *RequestContext) ResponseData {
	if !c.Allowed(nil, auth.ActionViewIPHistory) {
		return Forbidden(c)
	}

	days, err := c.QueryInt("days", auditlog.DefaultStatsDays)
	if err != nil {
		return c.ErrorResponse(err)
	}
	stats, err := s.Audit.GetActionStatistics(c, auditlog.StatsQuery{Days: days})
	if err != nil {
		return c.ErrorResponse(err)
	}
	if stats == nil {
		stats = []*auditlog.ActionStat{}
	}

	var res ResponseData
	res.WriteJson(map[string]any{
		"days":  days,
		"stats": stats,
	}, c.Perf)
	return res
}

// For collaborators that moderate content, e.g. recording a deleted post
// against the poster's IP.
func (s *Services) AdminRecordIPAction(c *RequestContext) ResponseData {
	var body struct {
		IPAddress  string         `json:"ip_address"`
		ActionType string         `json:"action_type"`
		BoardID    *string        `json:"board_id"`
		ThreadID   *int           `json:"thread_id"`
		PostID     *int           `json:"post_id"`
		BanID      *int           `json:"ban_id"`
		Reason     *string        `json:"reason"`
		Details    map[string]any `json:"details"`
	}
	if err := c.ParseJSON(&body); err != nil {
		return c.ErrorResponse(err)
	}
	body.BoardID = cleanBoardID(body.BoardID)
	if !c.Allowed(body.BoardID, auth.ActionRecordIPHistory) {
		return Forbidden(c)
	}

	entry, err := s.Audit.RecordAction(c, auditlog.RecordInput{
		IPAddress:     body.IPAddress,
		ActionType:    body.ActionType,
		AdminUserID:   &c.CurrentUser.ID,
		AdminUsername: &c.CurrentUser.Username,
		BoardID:       body.BoardID,
		ThreadID:      body.ThreadID,
		PostID:        body.PostID,
		BanID:         body.BanID,
		Reason:        body.Reason,
		Details:       body.Details,
	})
	if err != nil {
		return c.ErrorResponse(err)
	}

	res := ResponseData{StatusCode: http.StatusCreated}
	res.WriteJson(map[string]any{
		"message": "Action recorded",
		"action":  entry,
	}, c.Perf)
	return res
}

func (s *Services) AdminCleanupIPHistory(c *RequestContext) ResponseData {
	if !c.Allowed(nil, auth.ActionCleanupIPHistory) {
		return Forbidden(c)
	}

	days, err := c.QueryInt("days", 0)
	if err != nil {
		return c.ErrorResponse(err)
	}
	if days < 1 {
		return c.ErrorResponse(&oops.ValidationError{
			Message:  "days must be a positive number",
			Required: []string{"days"},
		})
	}

	deleted, err := s.Audit.CleanupOldActions(c, days)
	if err != nil {
		return c.ErrorResponse(err)
	}

	c.Logger.Info().Int("days", days).Int64("deleted", deleted).Msg("pruned IP history")

	var res ResponseData
	res.WriteJson(map[string]any{
		"message": fmt.Sprintf("Deleted %d actions older than %d days", deleted, days),
		"deleted": deleted,
	}, c.Perf)
	return res
}
