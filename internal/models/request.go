package models

import (
	"net/netip"
	"strings"

	"github.com/guardpost/guardpost/internal/constants"
)

// RequestDescriptor is the immutable input to the decision pipeline,
// built once per forward-auth callback. SourceIP is the true client IP,
// already resolved from the configured forwarding-header policy.
type RequestDescriptor struct {
	// SourceIP is the client address. Must be a valid IPv4 or IPv6
	// address; an invalid address makes the request not evaluable.
	SourceIP netip.Addr

	// Group names the rule group the request is evaluated against,
	// taken from the forward-auth path. Empty means the default group.
	Group string

	// Host is the host of the original request (X-Forwarded-Host).
	Host string

	// Path is the path of the original request, query string stripped.
	Path string

	// Method is the method of the original request.
	Method string

	// Proto is the scheme of the original request, used to resolve
	// relative redirect targets.
	Proto string

	// UserAgent and Referer are carried through to the access log.
	UserAgent string
	Referer   string
}

// NormalizePath strips the query string and fragment from a forwarded
// URI, leaving the path the rule patterns match against.
func NormalizePath(uri string) string {
	if uri == "" {
		return "/"
	}
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if uri == "" {
		return "/"
	}
	return uri
}

// GeoInfo is the geographic origin derived from a client IP. It is
// recomputed per request and never persisted.
type GeoInfo struct {
	// CountryCode is the ISO 3166-1 alpha-2 code, uppercase, or the
	// "ZZ" sentinel when unknown.
	CountryCode string `json:"country_code"`

	// CityName is the English city name, may be empty.
	CityName string `json:"city_name,omitempty"`
}

// UnknownGeo returns the sentinel GeoInfo for unresolvable origins.
func UnknownGeo() GeoInfo {
	return GeoInfo{CountryCode: constants.UnknownCountryCode}
}

// Known reports whether the country was resolved.
func (g GeoInfo) Known() bool {
	return g.CountryCode != "" && g.CountryCode != constants.UnknownCountryCode
}
