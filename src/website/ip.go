package website

import (
	"net"
	"net/http"
	"strings"
)

const UnknownIP = "unknown"

// Headers set by proxies in front of us, most trusted first. X-Client-IP is
// set by the hosting platform and is the last header we believe.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Client-IP",
}

/*
Works out the address of the visitor behind any proxies. The first non-empty
header in clientIPHeaders wins; for X-Forwarded-For that is the first entry
in the list. Falls back to the socket address, and to "unknown" when even
that is missing.
*/
func ClientIP(req *http.Request) string {
	for _, header := range clientIPHeaders {
		value := req.Header.Get(header)
		if header == "X-Forwarded-For" {
			value, _, _ = strings.Cut(value, ",")
		}
		if ip := normalizeIP(value); ip != "" {
			return ip
		}
	}

	if req.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		if ip := normalizeIP(host); ip != "" {
			return ip
		}
	}

	return UnknownIP
}

// IPv4 addresses arrive IPv4-mapped from dual-stack listeners.
func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	return strings.TrimPrefix(ip, "::ffff:")
}
