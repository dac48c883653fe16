package service

import (
	"net/netip"
	"time"

	"github.com/guardpost/guardpost/internal/accesslog"
	"github.com/guardpost/guardpost/internal/models"
)

// GeoResolver is the lookup contract consumed from the geo layer.
type GeoResolver interface {
	Resolve(ip netip.Addr) models.GeoInfo
}

// AccessRecorder is the append contract consumed from the access logger.
type AccessRecorder interface {
	Record(entry accesslog.Entry)
}

// GuardService orchestrates the per-request pipeline:
// Received -> GeoResolved -> Decided -> Logged -> Responded.
// Geo resolution and logging never fail a request; only an invalid
// source IP short-circuits, surfaced as ErrInvalidRequest.
type GuardService struct {
	store    RuleLookup
	resolver GeoResolver
	recorder AccessRecorder

	// now is the clock stamped onto access log entries, replaceable in
	// tests.
	now func() time.Time
}

// NewGuardService wires the pipeline components together.
func NewGuardService(store RuleLookup, resolver GeoResolver, recorder AccessRecorder) *GuardService {
	return &GuardService{
		store:    store,
		resolver: resolver,
		recorder: recorder,
		now:      time.Now,
	}
}

// Evaluate runs the full pipeline for one forward-auth callback and
// returns the decision. The access log entry is written before
// returning; an in-flight evaluation runs to completion even if the
// proxy has already given up on the response.
func (s *GuardService) Evaluate(req models.RequestDescriptor) (models.Decision, error) {
	decision, err := s.Check(req)
	if err != nil {
		return models.Decision{}, err
	}

	s.recorder.Record(s.buildEntry(req, decision))
	return decision, nil
}

// Check runs geo resolution and the decision engine without touching
// the access log. Backs the administrative dry-run endpoint.
func (s *GuardService) Check(req models.RequestDescriptor) (models.Decision, error) {
	geo := s.resolver.Resolve(req.SourceIP)
	return Decide(req, geo, s.store)
}

// buildEntry derives the access log record from the request and its
// decision.
func (s *GuardService) buildEntry(req models.RequestDescriptor, decision models.Decision) accesslog.Entry {
	country := ""
	city := ""
	if decision.Geo.Known() {
		country = decision.Geo.CountryCode
		city = decision.Geo.CityName
	}

	return accesslog.Entry{
		Time:      s.now(),
		RemoteIP:  req.SourceIP.String(),
		Method:    req.Method,
		URI:       models.NormalizePath(req.Path),
		Status:    decision.StatusCode,
		Size:      len(decision.Reason),
		Referer:   req.Referer,
		UserAgent: req.UserAgent,
		Country:   country,
		City:      city,
	}
}
