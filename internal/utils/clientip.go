package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/guardpost/guardpost/internal/constants"
)

// IPSource selects how the true client IP is recovered from a proxied
// request. The guard sits behind a reverse proxy, so trusting the wrong
// header turns every rule into an attacker-controlled input; the policy
// is fixed by configuration and applied once per request, before any
// rule matching.
type IPSource string

// Supported client IP source policies.
const (
	// IPSourceRemoteAddr uses the TCP peer address of the callback
	// connection. Safe default when the proxy connects directly.
	IPSourceRemoteAddr IPSource = "remote-addr"
	// IPSourceLeftmostXFF uses the leftmost entry of X-Forwarded-For.
	IPSourceLeftmostXFF IPSource = "leftmost-x-forwarded-for"
	// IPSourceRightmostXFF uses the rightmost entry of X-Forwarded-For.
	IPSourceRightmostXFF IPSource = "rightmost-x-forwarded-for"
	// IPSourceXRealIP uses the X-Real-Ip header (nginx convention).
	IPSourceXRealIP IPSource = "x-real-ip"
	// IPSourceTrueClientIP uses the True-Client-Ip header (Akamai/Cloudflare).
	IPSourceTrueClientIP IPSource = "true-client-ip"
	// IPSourceCFConnectingIP uses the CF-Connecting-IP header (Cloudflare).
	IPSourceCFConnectingIP IPSource = "cf-connecting-ip"
)

// Valid reports whether the policy is one of the supported values.
func (s IPSource) Valid() bool {
	switch s {
	case IPSourceRemoteAddr, IPSourceLeftmostXFF, IPSourceRightmostXFF,
		IPSourceXRealIP, IPSourceTrueClientIP, IPSourceCFConnectingIP:
		return true
	}
	return false
}

// ResolveClientIP extracts the client IP from the request according to
// the configured policy. A missing or malformed address yields
// ErrInvalidRequest: the caller must treat the request as not evaluable
// rather than as allowed or denied.
func ResolveClientIP(policy IPSource, r *http.Request) (netip.Addr, error) {
	switch policy {
	case IPSourceLeftmostXFF, IPSourceRightmostXFF:
		return addrFromForwardedFor(policy, r.Header.Get(constants.HeaderXForwardedFor))
	case IPSourceXRealIP:
		return parseHeaderAddr(constants.HeaderXRealIP, r.Header.Get(constants.HeaderXRealIP))
	case IPSourceTrueClientIP:
		return parseHeaderAddr(constants.HeaderTrueClientIP, r.Header.Get(constants.HeaderTrueClientIP))
	case IPSourceCFConnectingIP:
		return parseHeaderAddr(constants.HeaderCFConnectingIP, r.Header.Get(constants.HeaderCFConnectingIP))
	default:
		return addrFromRemoteAddr(r.RemoteAddr)
	}
}

// addrFromRemoteAddr parses the host part of a host:port TCP peer address.
func addrFromRemoteAddr(remoteAddr string) (netip.Addr, error) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: remote address %q: %v", ErrInvalidRequest, remoteAddr, err)
	}
	return addr.Unmap(), nil
}

// addrFromForwardedFor picks an entry from a comma-separated
// X-Forwarded-For chain.
func addrFromForwardedFor(policy IPSource, header string) (netip.Addr, error) {
	if header == "" {
		return netip.Addr{}, fmt.Errorf("%w: %s header missing", ErrInvalidRequest, constants.HeaderXForwardedFor)
	}

	parts := strings.Split(header, ",")
	pick := parts[0]
	if policy == IPSourceRightmostXFF {
		pick = parts[len(parts)-1]
	}

	return parseHeaderAddr(constants.HeaderXForwardedFor, strings.TrimSpace(pick))
}

// parseHeaderAddr parses a single IP address taken from a header value.
func parseHeaderAddr(header, value string) (netip.Addr, error) {
	if value == "" {
		return netip.Addr{}, fmt.Errorf("%w: %s header missing", ErrInvalidRequest, header)
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s %q: %v", ErrInvalidRequest, header, value, err)
	}
	return addr.Unmap(), nil
}
