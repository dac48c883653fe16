// Package service implements the decision engine and the per-request
// orchestration of the guard pipeline.
package service

import (
	"net/netip"

	"github.com/guardpost/guardpost/internal/models"
	"github.com/guardpost/guardpost/internal/utils"
)

// RuleLookup is the read-only contract the decision engine needs from
// the rule store. Narrowing it to an interface keeps Decide a pure
// function of (request, geo, snapshot), independently testable against
// a fixed store.
type RuleLookup interface {
	LookupDeny(group string, ip netip.Addr, path, country string) *models.Rule
	LookupRedirect(group string, ip netip.Addr, path, country string) *models.Rule
}

// Decide evaluates a request against the rule store and produces a
// Decision. The request's rule group selects which rule set is
// consulted; groups never see each other's rules. Redirect rules are
// checked before deny rules: a redirect is an intentional routing
// choice and wins over a broader defensive deny. When neither matches,
// the implicit default is allow.
//
// The resolved GeoInfo is attached to every outcome, so the proxy or its
// error page can still record the origin of a denied request. Country
// rules match against the resolved code including the "ZZ" sentinel,
// which lets an administrator target unresolvable origins explicitly.
//
// A request without a valid source IP is not evaluable and yields
// ErrInvalidRequest, never a policy outcome.
func Decide(req models.RequestDescriptor, geo models.GeoInfo, store RuleLookup) (models.Decision, error) {
	if !req.SourceIP.IsValid() {
		return models.Decision{}, utils.NewInvalidRequestError("")
	}

	group, err := models.CanonicalGroup(req.Group)
	if err != nil {
		return models.Decision{}, utils.NewInvalidRequestError(err.Error())
	}
	path := models.NormalizePath(req.Path)

	if rule := store.LookupRedirect(group, req.SourceIP, path, geo.CountryCode); rule != nil {
		return models.RedirectDecision(rule, geo), nil
	}

	if rule := store.LookupDeny(group, req.SourceIP, path, geo.CountryCode); rule != nil {
		return models.DenyDecision(rule, geo), nil
	}

	return models.AllowDecision(geo), nil
}
