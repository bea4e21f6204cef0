package bans

import (
	"errors"
	"strings"
	"testing"
	"time"

	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanPatchSetClauses(t *testing.T) {
	t.Run("only provided fields", func(t *testing.T) {
		patch := BanPatch{
			Reason:      utils.P("mistake"),
			IsActive:    utils.P(false),
			AdminUserID: utils.P(7),
		}
		assert.False(t, patch.IsEmpty())

		var qb db.QueryBuilder
		qb.Add(`UPDATE bans SET`)
		qb.AddJoined(", ", patch.setClauses())
		qb.Add(`WHERE id = $?`, 3)

		assert.Equal(t, "UPDATE bans SET\nreason = $1\n, is_active = $2\nWHERE id = $3\n", qb.String())
		assert.Equal(t, []any{"mistake", false, 3}, qb.Args())
	})

	t.Run("expiry can be cleared", func(t *testing.T) {
		patch := BanPatch{ExpiresAt: utils.Some[*time.Time](nil)}
		clauses := patch.setClauses()
		require.Len(t, clauses, 1)
		assert.Equal(t, "expires_at = $?", clauses[0].SQL)
		assert.Equal(t, []any{(*time.Time)(nil)}, clauses[0].Args)
	})

	t.Run("actor alone is empty", func(t *testing.T) {
		patch := BanPatch{AdminUserID: utils.P(7)}
		assert.True(t, patch.IsEmpty())
		assert.Empty(t, patch.setClauses())
	})
}

func TestBanPatchValidate(t *testing.T) {
	var verr *oops.ValidationError

	err := BanPatch{Reason: utils.P("  ")}.validate()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"reason"}, verr.Required)

	bogus := models.AppealStatus("reopened")
	err = BanPatch{AppealStatus: &bogus}.validate()
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Allowed, "approved")

	assert.NoError(t, BanPatch{AppealStatus: utils.P(models.AppealStatusDenied)}.validate())
}

func TestCheckAppealTransition(t *testing.T) {
	allowed := [][2]models.AppealStatus{
		{models.AppealStatusPending, models.AppealStatusApproved},
		{models.AppealStatusPending, models.AppealStatusDenied},
		{models.AppealStatusApproved, models.AppealStatusApproved},
		{models.AppealStatusNone, models.AppealStatusNone},
	}
	for _, tr := range allowed {
		assert.NoError(t, checkAppealTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	forbidden := [][2]models.AppealStatus{
		{models.AppealStatusNone, models.AppealStatusPending}, // only SubmitAppeal may do this
		{models.AppealStatusNone, models.AppealStatusApproved},
		{models.AppealStatusApproved, models.AppealStatusPending},
		{models.AppealStatusDenied, models.AppealStatusPending},
		{models.AppealStatusDenied, models.AppealStatusApproved},
		{models.AppealStatusPending, models.AppealStatusNone},
	}
	for _, tr := range forbidden {
		assert.ErrorIs(t, checkAppealTransition(tr[0], tr[1]), ErrInvalidAppealTransition, "%s -> %s", tr[0], tr[1])
	}
}

func TestLedgerActions(t *testing.T) {
	active := &models.Ban{IsActive: true, AppealStatus: models.AppealStatusPending}

	lifted := &models.Ban{IsActive: false, AppealStatus: models.AppealStatusPending}
	assert.Equal(t, []models.ModerationActionType{models.ModActionUnban}, ledgerActions(&banUpdate{Before: active, After: lifted}))
	assert.Equal(t, []string{models.IPActionUnbanned}, historyActions(&banUpdate{Before: active, After: lifted}))

	approvedAndLifted := &models.Ban{IsActive: false, AppealStatus: models.AppealStatusApproved}
	assert.Equal(t,
		[]models.ModerationActionType{models.ModActionUnban, models.ModActionAppealResponse},
		ledgerActions(&banUpdate{Before: active, After: approvedAndLifted}),
	)
	assert.Equal(t,
		[]string{models.IPActionUnbanned, models.IPActionAppealApproved},
		historyActions(&banUpdate{Before: active, After: approvedAndLifted}),
	)

	denied := &models.Ban{IsActive: true, AppealStatus: models.AppealStatusDenied}
	assert.Equal(t, []models.ModerationActionType{models.ModActionAppealResponse}, ledgerActions(&banUpdate{Before: active, After: denied}))
	assert.Equal(t, []string{models.IPActionAppealDenied}, historyActions(&banUpdate{Before: active, After: denied}))

	reworded := &models.Ban{IsActive: true, AppealStatus: models.AppealStatusPending, Reason: "new"}
	assert.Equal(t, []models.ModerationActionType{models.ModActionBanUpdate}, ledgerActions(&banUpdate{Before: active, After: reworded}))
	assert.Equal(t, []string{models.IPActionBanUpdated}, historyActions(&banUpdate{Before: active, After: reworded}))
}

func TestBanDetails(t *testing.T) {
	expires := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	content := strings.Repeat("é", 150)
	ban := &models.Ban{
		ExpiresAt:    &expires,
		PostContent:  &content,
		PostImageURL: utils.P("https://img.example/1.png"),
	}

	details := banDetails(ban)
	assert.Equal(t, "2026-11-01T00:00:00Z", details["expires_at"])
	assert.Equal(t, true, details["is_global"])
	assert.Equal(t, true, details["had_image"])
	assert.Equal(t, strings.Repeat("é", 100), details["post_content_preview"])

	permanent := banDetails(&models.Ban{BoardID: utils.P("tech")})
	assert.Nil(t, permanent["expires_at"])
	assert.Nil(t, permanent["post_content_preview"])
	assert.Equal(t, false, permanent["is_global"])
	assert.Equal(t, false, permanent["had_image"])
}

func TestLedgerReason(t *testing.T) {
	assert.Nil(t, BanPatch{}.ledgerReason())
	assert.Equal(t, "mistake", *BanPatch{Reason: utils.P("mistake")}.ledgerReason())
	assert.Equal(t, "appeal ok", *BanPatch{Reason: utils.P("mistake"), Note: utils.P("appeal ok")}.ledgerReason())
}
