package rangebans

import (
	"context"
	"sync"
	"testing"
	"time"

	"git.handmade.network/hmn/boardmod/src/dbtest"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/modlog"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey(t *testing.T) {
	assert.Equal(t, "rangeban|country|CN|*", lockKey(models.RangebanTypeCountry, "CN", nil))
	assert.Equal(t, "rangeban|asn|4134|tech", lockKey(models.RangebanTypeASN, "4134", utils.P("tech")))
}

func TestRangebanPatchSetClauses(t *testing.T) {
	patch := RangebanPatch{IsActive: utils.P(false), AdminUserID: utils.P(3)}
	clauses := patch.setClauses()
	require.Len(t, clauses, 1)
	assert.Equal(t, "is_active = $?", clauses[0].SQL)
	assert.True(t, RangebanPatch{AdminUserID: utils.P(3)}.IsEmpty())
}

func TestIPRangeConditionOnlyCastsIPRanges(t *testing.T) {
	assert.Contains(t, ipRangeCondition, "CASE WHEN ban_type = 'ip_range' THEN")
	assert.Contains(t, ipRangeCondition, "ELSE FALSE END")
}

func TestGlobalCountryRangeban(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	rb, err := s.CreateRangeban(ctx, CreateRangebanInput{
		BanType:  models.RangebanTypeCountry,
		BanValue: "cn",
		Reason:   "spam wave",
	})
	require.NoError(t, err)
	assert.Equal(t, "CN", rb.BanValue)
	assert.True(t, rb.IsGlobal())

	for _, board := range []string{"tech", "gaming"} {
		found, err := s.CheckCountryBanned(ctx, "CN", board)
		require.NoError(t, err)
		require.NotNil(t, found, board)
		assert.Equal(t, rb.ID, found.ID)
	}

	found, err := s.CheckCountryBanned(ctx, "US", "tech")
	require.NoError(t, err)
	assert.Nil(t, found)

	actions, err := modlog.Fetch(ctx, pool, modlog.Query{RangebanID: &rb.ID})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ModActionRangeban, actions[0].ActionType)
}

func TestBoardScopedRangeban(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	_, err := s.CreateRangeban(ctx, CreateRangebanInput{
		BanType:  models.RangebanTypeCountry,
		BanValue: "RU",
		BoardID:  utils.P("tech"),
		Reason:   "off topic",
	})
	require.NoError(t, err)

	found, err := s.CheckCountryBanned(ctx, "RU", "tech")
	require.NoError(t, err)
	assert.NotNil(t, found)

	found, err = s.CheckCountryBanned(ctx, "RU", "gaming")
	require.NoError(t, err)
	assert.Nil(t, found)

	// Same value on another scope is a different rangeban.
	_, err = s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeCountry, BanValue: "RU", Reason: "site-wide"})
	assert.NoError(t, err)
}

func TestDuplicateActiveRangeban(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	in := CreateRangebanInput{BanType: models.RangebanTypeCountry, BanValue: "CN", Reason: "spam"}
	first, err := s.CreateRangeban(ctx, in)
	require.NoError(t, err)

	_, err = s.CreateRangeban(ctx, in)
	assert.ErrorIs(t, err, ErrActiveRangebanExists)

	active, err := s.ListRangebans(ctx, RangebanFilter{BanType: models.RangebanTypeCountry})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Once lifted, the value can be banned again, and the old one can't come back.
	_, err = s.UpdateRangeban(ctx, first.ID, RangebanPatch{IsActive: utils.P(false)})
	require.NoError(t, err)
	_, err = s.CreateRangeban(ctx, in)
	require.NoError(t, err)
	_, err = s.UpdateRangeban(ctx, first.ID, RangebanPatch{IsActive: utils.P(true)})
	assert.ErrorIs(t, err, ErrActiveRangebanExists)
}

func TestConcurrentDuplicateRangebans(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateRangeban(ctx, CreateRangebanInput{
				BanType:  models.RangebanTypeASN,
				BanValue: "AS4134",
				Reason:   "botnet",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrActiveRangebanExists)
		}
	}
	assert.Equal(t, 1, succeeded)

	active, err := s.ListRangebans(ctx, RangebanFilter{BanType: models.RangebanTypeASN})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestASNAndIPRangeChecks(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	_, err := s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeASN, BanValue: "AS4134", Reason: "botnet"})
	require.NoError(t, err)
	_, err = s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeIPRange, BanValue: "203.0.113.0/24", BoardID: utils.P("tech"), Reason: "proxy farm"})
	require.NoError(t, err)
	// Rows whose values are not CIDRs must not break range checks.
	_, err = s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeCountry, BanValue: "KP", Reason: "closed"})
	require.NoError(t, err)

	found, err := s.CheckASNBanned(ctx, 4134, "tech")
	require.NoError(t, err)
	assert.NotNil(t, found)

	found, err = s.CheckASNBanned(ctx, 15169, "tech")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = s.CheckIPRangeBanned(ctx, "203.0.113.77", "tech")
	require.NoError(t, err)
	assert.NotNil(t, found)

	found, err = s.CheckIPRangeBanned(ctx, "::ffff:203.0.113.77", "tech")
	require.NoError(t, err)
	assert.NotNil(t, found)

	found, err = s.CheckIPRangeBanned(ctx, "203.0.113.77", "gaming")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = s.CheckIPRangeBanned(ctx, "198.51.100.1", "tech")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = s.CheckIPRangeBanned(ctx, "unknown", "tech")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestExpiredRangebanDoesNotBlock(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	past := time.Now().Add(-time.Hour)
	_, err := s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeCountry, BanValue: "FR", Reason: "old", ExpiresAt: &past})
	require.NoError(t, err)

	found, err := s.CheckCountryBanned(ctx, "FR", "tech")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateRangeban(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)
	adminID := dbtest.CreateAdmin(t, pool, "root", "admin")

	rb, err := s.CreateRangeban(ctx, CreateRangebanInput{BanType: models.RangebanTypeCountry, BanValue: "CN", Reason: "spam"})
	require.NoError(t, err)

	reworded, err := s.UpdateRangeban(ctx, rb.ID, RangebanPatch{Reason: utils.P("spam wave"), AdminUserID: &adminID})
	require.NoError(t, err)
	assert.Equal(t, "spam wave", reworded.Reason)
	assert.True(t, reworded.IsActive)

	lifted, err := s.UpdateRangeban(ctx, rb.ID, RangebanPatch{IsActive: utils.P(false), AdminUserID: &adminID})
	require.NoError(t, err)
	assert.False(t, lifted.IsActive)

	found, err := s.CheckCountryBanned(ctx, "CN", "tech")
	require.NoError(t, err)
	assert.Nil(t, found)

	updates, err := modlog.Fetch(ctx, pool, modlog.Query{RangebanID: &rb.ID, ActionType: models.ModActionRangebanUpdate})
	require.NoError(t, err)
	assert.Len(t, updates, 1)
	unbans, err := modlog.Fetch(ctx, pool, modlog.Query{RangebanID: &rb.ID, ActionType: models.ModActionUnrangeban})
	require.NoError(t, err)
	assert.Len(t, unbans, 1)

	missing, err := s.UpdateRangeban(ctx, rb.ID+1000, RangebanPatch{IsActive: utils.P(false)})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRangebanStats(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	s := NewStore(pool, nil)

	empty, err := s.GetRangebanStats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty.ByType)
	assert.NotNil(t, empty.TopCountries)

	for _, in := range []CreateRangebanInput{
		{BanType: models.RangebanTypeCountry, BanValue: "CN", Reason: "x"},
		{BanType: models.RangebanTypeCountry, BanValue: "CN", BoardID: utils.P("tech"), Reason: "x"},
		{BanType: models.RangebanTypeCountry, BanValue: "RU", Reason: "x"},
		{BanType: models.RangebanTypeASN, BanValue: "4134", Reason: "x"},
	} {
		_, err := s.CreateRangeban(ctx, in)
		require.NoError(t, err)
	}

	stats, err := s.GetRangebanStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.ByType, 2)
	assert.Equal(t, models.RangebanTypeCountry, stats.ByType[0].BanType)
	assert.Equal(t, 3, stats.ByType[0].Count)
	require.Len(t, stats.TopCountries, 2)
	assert.Equal(t, "CN", stats.TopCountries[0].CountryCode)
	assert.Equal(t, 2, stats.TopCountries[0].Count)
}
