package website

import (
	"net/http"
	"time"

	"git.handmade.network/hmn/boardmod/src/models"
)

// What a banned visitor gets to see about their ban. No IPs, evidence, or
// moderator ids.
type publicBanData struct {
	ID           int                 `json:"id"`
	BoardID      *string             `json:"board_id"`
	Reason       string              `json:"reason"`
	ExpiresAt    *time.Time          `json:"expires_at"`
	CreatedAt    time.Time           `json:"created_at"`
	AppealStatus models.AppealStatus `json:"appeal_status"`
	CanAppeal    bool                `json:"can_appeal"`

	// The post the ban was issued for, shown back to the banned visitor.
	PostContent  *string `json:"post_content"`
	PostImageURL *string `json:"post_image_url"`
	ThreadID     *int    `json:"thread_id"`
	PostID       *int    `json:"post_id"`
}

func publicBan(ban *models.Ban) *publicBanData {
	if ban == nil {
		return nil
	}
	return &publicBanData{
		ID:           ban.ID,
		BoardID:      ban.BoardID,
		Reason:       ban.Reason,
		ExpiresAt:    ban.ExpiresAt,
		CreatedAt:    ban.CreatedAt,
		AppealStatus: ban.AppealStatus,
		CanAppeal:    ban.IsActive && ban.AppealStatus == models.AppealStatusNone,
		PostContent:  ban.PostContent,
		PostImageURL: ban.PostImageURL,
		ThreadID:     ban.ThreadID,
		PostID:       ban.PostID,
	}
}

type publicRangebanData struct {
	ID        int                 `json:"id"`
	BanType   models.RangebanType `json:"ban_type"`
	BoardID   *string             `json:"board_id"`
	Reason    string              `json:"reason"`
	ExpiresAt *time.Time          `json:"expires_at"`
}

func publicRangeban(rb *models.Rangeban) *publicRangebanData {
	if rb == nil {
		return nil
	}
	return &publicRangebanData{
		ID:        rb.ID,
		BanType:   rb.BanType,
		BoardID:   rb.BoardID,
		Reason:    rb.Reason,
		ExpiresAt: rb.ExpiresAt,
	}
}

func (s *Services) ForwardPost(c *RequestContext) ResponseData {
	if s.Posts == nil {
		return c.JSONError(http.StatusNotImplemented, "Posting is not available")
	}
	s.Posts.ServeHTTP(c.Res, c.Req.WithContext(c))
	return ResponseData{hijacked: true}
}

// Lets the board UI tell a visitor they are banned before they write a post.
func (s *Services) BanStatus(c *RequestContext) ResponseData {
	decision := s.Enforcer.Evaluate(c, c.GetIP(), c.PathParams["board"])

	body := map[string]any{"banned": decision.Blocked()}
	if decision.Blocked() {
		blocked := blockedBody(decision)
		body["error"] = blocked.Error
		body["message"] = blocked.Message
		if blocked.Ban != nil {
			body["ban"] = blocked.Ban
		}
		if blocked.Rangeban != nil {
			body["rangeban"] = blocked.Rangeban
		}
	}

	var res ResponseData
	res.WriteJson(body, c.Perf)
	return res
}

func (s *Services) SubmitAppeal(c *RequestContext) ResponseData {
	var body struct {
		AppealText    string `json:"appealText"`
		AppealTextAlt string `json:"appeal_text"`
	}
	if err := c.ParseJSON(&body); err != nil {
		return c.ErrorResponse(err)
	}
	text := body.AppealText
	if text == "" {
		text = body.AppealTextAlt
	}

	ban, err := s.Appeals.Submit(c, c.PathInt("banId"), c.PathParams["board"], text)
	if err != nil {
		return c.ErrorResponse(err)
	}

	c.Logger.Info().Int("ban_id", ban.ID).Msg("appeal submitted")

	var res ResponseData
	res.WriteJson(map[string]any{
		"message": "Appeal submitted successfully",
		"status":  ban.AppealStatus,
	}, c.Perf)
	return res
}

func (s *Services) AppealStatus(c *RequestContext) ResponseData {
	status, err := s.Appeals.Status(c, c.PathInt("banId"), c.PathParams["board"])
	if err != nil {
		return c.ErrorResponse(err)
	}

	var res ResponseData
	res.WriteJson(status, c.Perf)
	return res
}

// The bans issued for a post, so boards can mark it "user was banned for this
// post". Lifted bans are included; IPs are not.
func (s *Services) PostBans(c *RequestContext) ResponseData {
	postBans, err := s.Bans.GetBansByPostID(c, c.PathInt("postId"), c.PathParams["board"])
	if err != nil {
		return c.ErrorResponse(err)
	}

	result := make([]*publicBanData, 0, len(postBans))
	for _, ban := range postBans {
		result = append(result, publicBan(ban))
	}

	var res ResponseData
	res.WriteJson(map[string]any{"bans": result}, c.Perf)
	return res
}
