/*
Package appeals lets a banned visitor appeal a ban once, and a moderator
approve or deny that appeal.

	none ──Submit──▶ pending ──Resolve──▶ approved | denied

Approved and denied are final. A new ban starts over at none.
*/
package appeals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/utils"
)

const MaxAppealLength = 2000

var (
	ErrBanNotFound        = errors.New("ban not found")
	ErrWrongBoard         = errors.New("ban does not belong to this board")
	ErrBanInactive        = errors.New("ban is no longer active")
	ErrAppealTextRequired = errors.New("appeal text is required")
	ErrAppealTooLong      = fmt.Errorf("appeal text must be at most %d characters", MaxAppealLength)
	ErrNotPending         = errors.New("appeal is not pending")
)

// Returned when a ban has already been appealed. Status is where the appeal
// currently stands.
type AlreadyAppealedError struct {
	Status models.AppealStatus
}

func (e *AlreadyAppealedError) Error() string {
	return fmt.Sprintf("Appeal already %s", e.Status)
}

type BanStore interface {
	GetBanByID(ctx context.Context, id int) (*models.Ban, error)
	SubmitAppeal(ctx context.Context, id int, text string) (*models.Ban, error)
	UpdateBan(ctx context.Context, id int, patch bans.BanPatch) (*models.Ban, error)
}

type Workflow struct {
	bans BanStore
}

func New(bans BanStore) *Workflow {
	return &Workflow{bans: bans}
}

// Loads a ban as seen from boardID. Global bans can be appealed from any
// board; board bans only from their own board.
func (w *Workflow) loadBan(ctx context.Context, banID int, boardID string) (*models.Ban, error) {
	ban, err := w.bans.GetBanByID(ctx, banID)
	if err != nil {
		return nil, err
	}
	if ban == nil {
		return nil, ErrBanNotFound
	}
	if !ban.AppliesToBoard(boardID) {
		return nil, ErrWrongBoard
	}
	return ban, nil
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrAppealTextRequired
	}
	if utf8.RuneCountInString(text) > MaxAppealLength {
		return "", ErrAppealTooLong
	}
	return text, nil
}

func (w *Workflow) Submit(ctx context.Context, banID int, boardID string, text string) (*models.Ban, error) {
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}

	ban, err := w.loadBan(ctx, banID, boardID)
	if err != nil {
		return nil, err
	}
	if !ban.IsActive {
		return nil, ErrBanInactive
	}
	if ban.AppealStatus != models.AppealStatusNone {
		return nil, &AlreadyAppealedError{Status: ban.AppealStatus}
	}

	appealed, err := w.bans.SubmitAppeal(ctx, banID, text)
	if err != nil {
		return nil, err
	}
	if appealed == nil {
		// Lost a race with another submission or an unban. Report whatever
		// state the ban is in now.
		current, err := w.bans.GetBanByID(ctx, banID)
		if err != nil {
			return nil, err
		}
		switch {
		case current == nil:
			return nil, ErrBanNotFound
		case !current.IsActive:
			return nil, ErrBanInactive
		default:
			return nil, &AlreadyAppealedError{Status: current.AppealStatus}
		}
	}
	return appealed, nil
}

type Status struct {
	AppealStatus models.AppealStatus `json:"appeal_status"`
	AppealText   *string             `json:"appeal_text"`
	IsActive     bool                `json:"is_active"`
}

func (w *Workflow) Status(ctx context.Context, banID int, boardID string) (*Status, error) {
	ban, err := w.loadBan(ctx, banID, boardID)
	if err != nil {
		return nil, err
	}
	return &Status{
		AppealStatus: ban.AppealStatus,
		AppealText:   ban.AppealText,
		IsActive:     ban.IsActive,
	}, nil
}

type Resolution struct {
	Approve bool
	LiftBan bool   // only meaningful when approving
	Note    string // optional, recorded in the ledger
}

/*
Approves or denies a pending appeal. Approving with LiftBan also deactivates
the ban in the same update. Returns ErrBanNotFound or ErrNotPending when
there is nothing to resolve.
*/
func (w *Workflow) Resolve(ctx context.Context, banID int, actorID int, res Resolution) (*models.Ban, error) {
	ban, err := w.bans.GetBanByID(ctx, banID)
	if err != nil {
		return nil, err
	}
	if ban == nil {
		return nil, ErrBanNotFound
	}
	if ban.AppealStatus != models.AppealStatusPending {
		return nil, ErrNotPending
	}

	status := models.AppealStatusDenied
	if res.Approve {
		status = models.AppealStatusApproved
	}
	patch := bans.BanPatch{
		AppealStatus: &status,
		AdminUserID:  &actorID,
	}
	if res.Approve && res.LiftBan {
		patch.IsActive = utils.P(false)
	}
	if strings.TrimSpace(res.Note) != "" {
		patch.Note = &res.Note
	}

	updated, err := w.bans.UpdateBan(ctx, banID, patch)
	if errors.Is(err, bans.ErrInvalidAppealTransition) {
		return nil, ErrNotPending
	} else if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrBanNotFound
	}
	return updated, nil
}
