package rangebans

import (
	"net/netip"
	"strconv"
	"strings"

	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/oops"
)

func allowedTypes() []string {
	allowed := make([]string, 0, len(models.RangebanTypes))
	for _, t := range models.RangebanTypes {
		allowed = append(allowed, string(t))
	}
	return allowed
}

/*
Checks a ban value against its type and returns it in the form it is stored
in:

  - country: two-letter ISO code, upper case ("cn" becomes "CN")
  - asn: the bare number ("AS4134" becomes "4134")
  - ip_range: a masked CIDR prefix ("10.1.2.3/8" becomes "10.0.0.0/8"); a bare
    address becomes a single-address prefix
*/
func NormalizeValue(banType models.RangebanType, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", oops.RequireFields("ban_value", value)
	}

	switch banType {
	case models.RangebanTypeCountry:
		code := strings.ToUpper(value)
		if len(code) != 2 || !isASCIIUpper(code[0]) || !isASCIIUpper(code[1]) {
			return "", &oops.ValidationError{Message: "Country rangebans need a two-letter country code"}
		}
		return code, nil
	case models.RangebanTypeASN:
		digits := value
		if len(digits) > 2 && strings.EqualFold(digits[:2], "AS") {
			digits = digits[2:]
		}
		asn, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			return "", &oops.ValidationError{Message: "ASN rangebans need an AS number like AS4134"}
		}
		return strconv.FormatUint(asn, 10), nil
	case models.RangebanTypeIPRange:
		if prefix, err := netip.ParsePrefix(value); err == nil {
			return prefix.Masked().String(), nil
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
		}
		return "", &oops.ValidationError{Message: "IP range rangebans need a CIDR range like 203.0.113.0/24"}
	default:
		return "", oops.NotAllowed("Invalid ban_type", allowedTypes()...)
	}
}

func isASCIIUpper(b byte) bool {
	return 'A' <= b && b <= 'Z'
}

func formatASN(asn uint) string {
	return strconv.FormatUint(uint64(asn), 10)
}
