package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBanBlocksAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Ban{IsActive: true}).BlocksAt(now), "permanent active bans block")
	assert.True(t, (&Ban{IsActive: true, ExpiresAt: &future}).BlocksAt(now))
	assert.False(t, (&Ban{IsActive: true, ExpiresAt: &past}).BlocksAt(now), "expired bans never block")
	assert.False(t, (&Ban{IsActive: true, ExpiresAt: &now}).BlocksAt(now), "expiry is exclusive")
	assert.False(t, (&Ban{IsActive: false}).BlocksAt(now), "inactive bans never block")
}

func TestBanScope(t *testing.T) {
	tech := "tech"
	global := &Ban{}
	scoped := &Ban{BoardID: &tech}

	assert.True(t, global.IsGlobal())
	assert.True(t, global.AppliesToBoard("tech"))
	assert.True(t, global.AppliesToBoard("gaming"))

	assert.False(t, scoped.IsGlobal())
	assert.True(t, scoped.AppliesToBoard("tech"))
	assert.False(t, scoped.AppliesToBoard("gaming"))
}

func TestAppealStatus(t *testing.T) {
	assert.True(t, AppealStatusPending.Valid())
	assert.False(t, AppealStatus("reopened").Valid())

	assert.False(t, AppealStatusNone.IsTerminal())
	assert.False(t, AppealStatusPending.IsTerminal())
	assert.True(t, AppealStatusApproved.IsTerminal())
	assert.True(t, AppealStatusDenied.IsTerminal())
}

func TestRangebanType(t *testing.T) {
	assert.True(t, RangebanTypeCountry.Valid())
	assert.True(t, RangebanTypeASN.Valid())
	assert.True(t, RangebanTypeIPRange.Valid())
	assert.False(t, RangebanType("city").Valid())
}
