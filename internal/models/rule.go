// Package models provides data structures representing entities in the
// guard service: rules, request descriptors, geo information, and
// decisions.
package models

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardpost/guardpost/internal/constants"
)

// MatchKind discriminates what a rule's match key refers to. A rule has
// exactly one kind; the decision engine evaluates kinds in a fixed
// precedence order (exact IP, then CIDR, then URL pattern, then country).
type MatchKind string

// Supported match key kinds.
const (
	// MatchIP matches a single IP address exactly.
	MatchIP MatchKind = "ip"
	// MatchCIDR matches any address inside a network prefix.
	MatchCIDR MatchKind = "cidr"
	// MatchURL matches the request path: either exactly, or by prefix
	// when the pattern ends with a trailing "/*" wildcard segment.
	MatchURL MatchKind = "url"
	// MatchCountry matches the ISO 3166-1 alpha-2 country code resolved
	// from the client IP.
	MatchCountry MatchKind = "country"
)

// RuleType discriminates the effect of a matched rule.
type RuleType string

// Supported rule types.
const (
	// RuleDeny rejects the request with a status code and reason.
	RuleDeny RuleType = "deny"
	// RuleRedirect redirects the request to a target URL. Redirect rules
	// are evaluated before deny rules for the same request.
	RuleRedirect RuleType = "redirect"
)

// Rule represents a single deny or redirect rule.
//
// A rule is permanent when ExpiresAt is nil and temporary otherwise.
// Temporary rules whose expiry has passed are logically absent from
// every lookup regardless of whether they have been physically purged.
type Rule struct {
	// ID is the unique identifier for the rule.
	ID string `json:"id" db:"rule_id"`

	// Group names the rule group the rule belongs to. Each group is an
	// independent rule set, selected per request by the forward-auth
	// path. Empty means the default group.
	Group string `json:"group" db:"rule_group"`

	// Type is the rule effect, deny or redirect.
	Type RuleType `json:"type" db:"rule_type"`

	// Kind discriminates what MatchKey refers to.
	Kind MatchKind `json:"kind" db:"match_kind"`

	// MatchKey is the IP, CIDR, URL pattern, or country code, canonical
	// per Normalize.
	MatchKey string `json:"match_key" db:"match_key"`

	// Reason is the human-readable denial reason, surfaced in logs and
	// responses. Deny rules only.
	Reason string `json:"reason,omitempty" db:"reason"`

	// Target is the redirect target URL, absolute or proxy-relative.
	// Redirect rules only.
	Target string `json:"target,omitempty" db:"target"`

	// StatusCode is the HTTP status attached to the decision. Defaults
	// to 403 for deny rules; must be a redirect-class code for redirect
	// rules.
	StatusCode int `json:"status_code" db:"status_code"`

	// ExpiresAt defines when the rule expires (nil for permanent rules).
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	// CreatedAt is when the rule was created. Among rules of equal
	// specificity the most recently created wins.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// CreatedBy records the administrative caller that created the rule.
	CreatedBy string `json:"created_by,omitempty" db:"created_by"`
}

// NewDenyRule creates a deny rule with a fresh ID.
func NewDenyRule(kind MatchKind, matchKey, reason string, statusCode int, expiresAt *time.Time, createdBy string) *Rule {
	if statusCode == 0 {
		statusCode = constants.DefaultDenyStatus
	}
	return &Rule{
		ID:         uuid.NewString(),
		Type:       RuleDeny,
		Kind:       kind,
		MatchKey:   matchKey,
		Reason:     reason,
		StatusCode: statusCode,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  createdBy,
	}
}

// NewRedirectRule creates a redirect rule with a fresh ID.
func NewRedirectRule(kind MatchKind, matchKey, target string, statusCode int, expiresAt *time.Time, createdBy string) *Rule {
	if statusCode == 0 {
		statusCode = constants.DefaultRedirectStatus
	}
	return &Rule{
		ID:         uuid.NewString(),
		Type:       RuleRedirect,
		Kind:       kind,
		MatchKey:   matchKey,
		Target:     target,
		StatusCode: statusCode,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  createdBy,
	}
}

// Temporary reports whether the rule carries an expiry instant.
func (r *Rule) Temporary() bool {
	return r.ExpiresAt != nil
}

// IsExpired reports whether a temporary rule's expiry has passed at the
// given instant. Permanent rules never expire.
func (r *Rule) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Normalize validates the rule and rewrites its mutable fields into
// canonical form: the match key per CanonicalMatchKey, the group name
// per CanonicalGroup, and all timestamps in UTC. Timestamps persist as
// text, so their comparisons stay chronological only when every stored
// instant carries the same zone. It returns an error for any rule that
// could never match or would match ambiguously.
func (r *Rule) Normalize() error {
	switch r.Type {
	case RuleDeny:
		if r.StatusCode < 400 || r.StatusCode > 599 {
			return fmt.Errorf("deny rule status code %d outside 4xx/5xx", r.StatusCode)
		}
	case RuleRedirect:
		if r.Target == "" {
			return fmt.Errorf("redirect rule requires a target URL")
		}
		switch r.StatusCode {
		case 301, 302, 307, 308:
		default:
			return fmt.Errorf("redirect rule status code %d is not a redirect code", r.StatusCode)
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}

	group, err := CanonicalGroup(r.Group)
	if err != nil {
		return err
	}
	r.Group = group

	key, err := CanonicalMatchKey(r.Kind, r.MatchKey)
	if err != nil {
		return err
	}
	r.MatchKey = key

	r.CreatedAt = r.CreatedAt.UTC()
	if r.ExpiresAt != nil {
		expiry := r.ExpiresAt.UTC()
		r.ExpiresAt = &expiry
	}

	return nil
}

// CanonicalMatchKey validates a match key for the given kind and returns
// its canonical form: textual IP form for MatchIP, masked network/bits
// for MatchCIDR, uppercase alpha-2 for MatchCountry. Every lookup and
// mutation keyed by (kind, match key) goes through this, so the same
// key always compares equal regardless of how the caller spelled it.
func CanonicalMatchKey(kind MatchKind, key string) (string, error) {
	switch kind {
	case MatchIP:
		addr, err := netip.ParseAddr(key)
		if err != nil {
			return "", fmt.Errorf("invalid IP match key %q: %w", key, err)
		}
		return addr.Unmap().String(), nil

	case MatchCIDR:
		prefix, err := netip.ParsePrefix(key)
		if err != nil {
			return "", fmt.Errorf("invalid CIDR match key %q: %w", key, err)
		}
		if prefix.Addr() != prefix.Masked().Addr() {
			return "", fmt.Errorf("CIDR match key %q has host bits set, expected %s", key, prefix.Masked())
		}
		return prefix.Masked().String(), nil

	case MatchURL:
		if !strings.HasPrefix(key, "/") {
			return "", fmt.Errorf("URL pattern %q must start with '/'", key)
		}
		// Wildcards are allowed only as a single trailing segment.
		if i := strings.Index(key, "*"); i >= 0 && !strings.HasSuffix(key, "/*") {
			return "", fmt.Errorf("URL pattern %q may only use a trailing '/*' wildcard", key)
		}
		if strings.Count(key, "*") > 1 {
			return "", fmt.Errorf("URL pattern %q may only use a single wildcard", key)
		}
		return key, nil

	case MatchCountry:
		code := strings.ToUpper(strings.TrimSpace(key))
		if len(code) != 2 || !isAlpha(code) {
			return "", fmt.Errorf("invalid country match key %q, expected ISO 3166-1 alpha-2", key)
		}
		return code, nil
	}

	return "", fmt.Errorf("unknown match kind %q", kind)
}

// CanonicalGroup validates a rule group name and returns its canonical
// lowercase form. Empty maps to the default group.
func CanonicalGroup(group string) (string, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return constants.DefaultRuleGroup, nil
	}
	if len(group) > 64 {
		return "", fmt.Errorf("rule group %q exceeds 64 characters", group)
	}
	for _, c := range group {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return "", fmt.Errorf("invalid rule group %q, expected lowercase letters, digits, '-' or '_'", group)
		}
	}
	return group, nil
}

// Addr returns the parsed address of a MatchIP rule.
func (r *Rule) Addr() (netip.Addr, error) {
	return netip.ParseAddr(r.MatchKey)
}

// Prefix returns the parsed network of a MatchCIDR rule.
func (r *Rule) Prefix() (netip.Prefix, error) {
	return netip.ParsePrefix(r.MatchKey)
}

// MatchesPath reports whether a MatchURL rule's pattern matches the
// request path. Exact patterns also match the path with one trailing
// slash added; "/*" patterns match by literal prefix.
func (r *Rule) MatchesPath(path string) bool {
	if prefix, ok := strings.CutSuffix(r.MatchKey, "/*"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == r.MatchKey || path == r.MatchKey+"/"
}

// LiteralPrefixLen returns the length of the pattern's literal prefix,
// used to rank URL rules so the longest literal prefix wins.
func (r *Rule) LiteralPrefixLen() int {
	return len(strings.TrimSuffix(r.MatchKey, "/*"))
}

func isAlpha(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
