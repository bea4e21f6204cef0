/*
Package geo resolves client IPs to a country code and an autonomous system
using MaxMind GeoLite2 databases.

Addresses on a local network (loopback, private, link-local) resolve to the
LocalNetwork code without a database lookup. Rangebans are never applied to
them.
*/
package geo

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"git.handmade.network/hmn/boardmod/src/oops"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const LocalNetwork = "LO"

type Resolver struct {
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
}

/*
Opens the GeoLite2 Country and ASN databases. Either path may be empty, in
which case that lookup is disabled: CountryCode returns "" for public
addresses, and ASN reports no result.
*/
func Open(countryDBPath, asnDBPath string) (*Resolver, error) {
	r := &Resolver{}
	if countryDBPath != "" {
		db, err := geoip2.Open(countryDBPath)
		if err != nil {
			return nil, oops.New(err, "failed to open country database at %s", countryDBPath)
		}
		r.countryDB = db
	}
	if asnDBPath != "" {
		db, err := geoip2.Open(asnDBPath)
		if err != nil {
			r.Close()
			return nil, oops.New(err, "failed to open ASN database at %s", asnDBPath)
		}
		r.asnDB = db
	}
	return r, nil
}

func (r *Resolver) Close() error {
	var err error
	if r.countryDB != nil {
		err = r.countryDB.Close()
	}
	if r.asnDB != nil {
		if asnErr := r.asnDB.Close(); err == nil {
			err = asnErr
		}
	}
	return err
}

func parse(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func IsLocal(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

/*
Returns the ISO country code for ip, LocalNetwork for local addresses, or ""
if the country is unknown. An unparseable ip (such as "unknown") is unknown,
not an error.
*/
func (r *Resolver) CountryCode(ctx context.Context, ip string) (string, error) {
	addr, ok := parse(ip)
	if !ok {
		return "", nil
	}
	if IsLocal(addr) {
		return LocalNetwork, nil
	}
	if r.countryDB == nil {
		return "", nil
	}

	record, err := r.countryDB.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return "", oops.New(err, "failed to look up country")
	}
	return record.Country.IsoCode, nil
}

// Returns the autonomous system number ip belongs to. ok is false when the
// ASN is unknown or lookups are disabled.
func (r *Resolver) ASN(ctx context.Context, ip string) (asn uint, ok bool, err error) {
	addr, parsed := parse(ip)
	if !parsed || IsLocal(addr) || r.asnDB == nil {
		return 0, false, nil
	}

	record, err := r.asnDB.ASN(net.IP(addr.AsSlice()))
	if err != nil {
		return 0, false, oops.New(err, "failed to look up ASN")
	}
	if record.AutonomousSystemNumber == 0 {
		return 0, false, nil
	}
	return record.AutonomousSystemNumber, true, nil
}

// English name for a country code, e.g. "China" for "CN". Unknown codes are
// returned as-is.
func CountryName(code string) string {
	if code == LocalNetwork {
		return "Local Network"
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	name := display.English.Regions().Name(region)
	if name == "" {
		return code
	}
	return name
}
