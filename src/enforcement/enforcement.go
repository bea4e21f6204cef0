/*
Package enforcement decides whether a request from an IP may act on a board.

Checks run in a fixed order and stop at the first hit: the IP's own ban, then
country, ASN, and CIDR rangebans. Local network addresses skip rangebans
entirely. Any lookup failure lets the request through and is logged; a broken
ban table must not take the board down with it.
*/
package enforcement

import (
	"context"
	"fmt"
	"time"

	"git.handmade.network/hmn/boardmod/src/geo"
	"git.handmade.network/hmn/boardmod/src/logging"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/perf"
)

type BanChecker interface {
	CheckIPBanned(ctx context.Context, ip string, boardID string) (*models.Ban, error)
}

type RangebanChecker interface {
	CheckCountryBanned(ctx context.Context, countryCode string, boardID string) (*models.Rangeban, error)
	CheckASNBanned(ctx context.Context, asn uint, boardID string) (*models.Rangeban, error)
	CheckIPRangeBanned(ctx context.Context, ip string, boardID string) (*models.Rangeban, error)
}

type CountryResolver interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}

// Optionally implemented by a CountryResolver to enable ASN rangebans.
type ASNResolver interface {
	ASN(ctx context.Context, ip string) (asn uint, ok bool, err error)
}

type Kind string

const (
	Allowed         Kind = "allowed"
	IPBan           Kind = "ip_ban"
	CountryRangeban Kind = "country_rangeban"
	ASNRangeban     Kind = "asn_rangeban"
	IPRangeRangeban Kind = "ip_range_rangeban"
)

type Decision struct {
	Kind     Kind
	Ban      *models.Ban      // set for IPBan
	Rangeban *models.Rangeban // set for the rangeban kinds
}

func (d Decision) Blocked() bool {
	return d.Kind != Allowed && d.Kind != ""
}

/*
The explanation shown to a blocked visitor. Empty when allowed.

	You are banned from this board until 2026-11-01 00:00 UTC: spam
	You are banned from this site permanently: raid
	Your country is not allowed to post on this board
*/
func (d Decision) Message() string {
	switch {
	case d.Kind == IPBan && d.Ban != nil:
		scope := "this board"
		if d.Ban.IsGlobal() {
			scope = "this site"
		}
		duration := "permanently"
		if d.Ban.ExpiresAt != nil {
			duration = "until " + FormatExpiry(*d.Ban.ExpiresAt)
		}
		return fmt.Sprintf("You are banned from %s %s: %s", scope, duration, d.Ban.Reason)
	case d.Rangeban != nil:
		scope := "on this board"
		if d.Rangeban.IsGlobal() {
			scope = "on this site"
		}
		subject := "Your country is"
		switch d.Kind {
		case ASNRangeban:
			subject = "Your network is"
		case IPRangeRangeban:
			subject = "Your IP range is"
		}
		return fmt.Sprintf("%s not allowed to post %s", subject, scope)
	}
	return ""
}

func FormatExpiry(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

type Enforcer struct {
	bans      BanChecker
	rangebans RangebanChecker
	geo       CountryResolver
}

func New(bans BanChecker, rangebans RangebanChecker, geo CountryResolver) *Enforcer {
	return &Enforcer{
		bans:      bans,
		rangebans: rangebans,
		geo:       geo,
	}
}

var allowed = Decision{Kind: Allowed}

func (e *Enforcer) Evaluate(ctx context.Context, ip string, boardID string) Decision {
	defer perf.ExtractPerf(ctx).StartBlock("BANS", "Evaluate enforcement").End()
	logger := logging.ExtractLogger(ctx).With().Str("ip", ip).Str("board", boardID).Logger()

	ban, err := e.bans.CheckIPBanned(ctx, ip, boardID)
	if err != nil {
		logger.Error().Err(err).Msg("IP ban check failed; allowing request")
		return allowed
	}
	if ban != nil {
		return Decision{Kind: IPBan, Ban: ban}
	}

	countryCode, err := e.geo.CountryCode(ctx, ip)
	if err != nil {
		logger.Error().Err(err).Msg("country lookup failed; allowing request")
		return allowed
	}
	if countryCode == geo.LocalNetwork {
		return allowed
	}

	if countryCode != "" {
		rangeban, err := e.rangebans.CheckCountryBanned(ctx, countryCode, boardID)
		if err != nil {
			logger.Error().Err(err).Str("country", countryCode).Msg("country rangeban check failed; allowing request")
			return allowed
		}
		if rangeban != nil {
			return Decision{Kind: CountryRangeban, Rangeban: rangeban}
		}
	}

	if asnResolver, ok := e.geo.(ASNResolver); ok {
		asn, found, err := asnResolver.ASN(ctx, ip)
		if err != nil {
			logger.Error().Err(err).Msg("ASN lookup failed; allowing request")
			return allowed
		}
		if found {
			rangeban, err := e.rangebans.CheckASNBanned(ctx, asn, boardID)
			if err != nil {
				logger.Error().Err(err).Uint("asn", asn).Msg("ASN rangeban check failed; allowing request")
				return allowed
			}
			if rangeban != nil {
				return Decision{Kind: ASNRangeban, Rangeban: rangeban}
			}
		}
	}

	rangeban, err := e.rangebans.CheckIPRangeBanned(ctx, ip, boardID)
	if err != nil {
		logger.Error().Err(err).Msg("IP range rangeban check failed; allowing request")
		return allowed
	}
	if rangeban != nil {
		return Decision{Kind: IPRangeRangeban, Rangeban: rangeban}
	}

	return allowed
}
