package models

import "net/http"

// DecisionKind discriminates the outcome of evaluating a request.
type DecisionKind string

// Decision outcomes.
const (
	// DecisionAllow lets the proxy forward the request upstream.
	DecisionAllow DecisionKind = "allow"
	// DecisionDeny rejects the request.
	DecisionDeny DecisionKind = "deny"
	// DecisionRedirect redirects the request to another URL.
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the outcome of the decision engine for one request. Geo is
// attached on every variant so the proxy (or its error page) can still
// record the origin of denied requests.
type Decision struct {
	// Kind is the outcome variant.
	Kind DecisionKind `json:"kind"`

	// StatusCode is the HTTP status the proxy callback responds with.
	StatusCode int `json:"status_code"`

	// Reason is the denial reason from the matched deny rule.
	Reason string `json:"reason,omitempty"`

	// Target is the redirect target from the matched redirect rule.
	Target string `json:"target,omitempty"`

	// RuleID identifies the matched rule, empty for the implicit allow.
	RuleID string `json:"rule_id,omitempty"`

	// Geo is the resolved origin of the client IP.
	Geo GeoInfo `json:"geo"`
}

// AllowDecision builds the implicit-allow decision.
func AllowDecision(geo GeoInfo) Decision {
	return Decision{
		Kind:       DecisionAllow,
		StatusCode: http.StatusOK,
		Geo:        geo,
	}
}

// DenyDecision builds a decision from a matched deny rule.
func DenyDecision(rule *Rule, geo GeoInfo) Decision {
	return Decision{
		Kind:       DecisionDeny,
		StatusCode: rule.StatusCode,
		Reason:     rule.Reason,
		RuleID:     rule.ID,
		Geo:        geo,
	}
}

// RedirectDecision builds a decision from a matched redirect rule.
func RedirectDecision(rule *Rule, geo GeoInfo) Decision {
	return Decision{
		Kind:       DecisionRedirect,
		StatusCode: rule.StatusCode,
		Target:     rule.Target,
		RuleID:     rule.ID,
		Geo:        geo,
	}
}
