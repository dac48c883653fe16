// Package handlers provides the HTTP handlers for the guard service:
// the forward-auth callback and the administrative rule API.
package handlers

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/models"
	"github.com/guardpost/guardpost/internal/utils"
)

// Guard is the evaluation contract the handlers need from the guard
// service.
type Guard interface {
	Evaluate(req models.RequestDescriptor) (models.Decision, error)
	Check(req models.RequestDescriptor) (models.Decision, error)
}

// GuardHandler serves the forward-auth callback consumed by the reverse
// proxy on every inbound request.
type GuardHandler struct {
	guard    Guard
	ipSource utils.IPSource
}

// NewGuardHandler creates a GuardHandler.
func NewGuardHandler(guard Guard, ipSource utils.IPSource) *GuardHandler {
	return &GuardHandler{guard: guard, ipSource: ipSource}
}

// Authorize handles the forward-auth callback. The proxy forwards the
// original request's method, host, URI, and client-identifying headers;
// the response status and headers tell it to forward, reject, or
// redirect the original request.
func (h *GuardHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	req, appErr := h.describe(r)
	if appErr != nil {
		utils.ErrorFromAppError(w, appErr)
		return
	}

	decision, err := h.guard.Evaluate(req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	writeDecision(w, r, decision)
}

// Check handles the administrative dry run: it evaluates an arbitrary
// IP and URI through the full pipeline without writing an access log
// entry, returning the decision as JSON.
func (h *GuardHandler) Check(w http.ResponseWriter, r *http.Request) {
	ipParam := r.URL.Query().Get("ip")
	addr, err := netip.ParseAddr(ipParam)
	if err != nil {
		utils.ErrorFromAppError(w, utils.NewInvalidRequestError("query parameter 'ip' must be a valid IP address"))
		return
	}

	uri := r.URL.Query().Get("uri")
	req := models.RequestDescriptor{
		SourceIP: addr.Unmap(),
		Group:    r.URL.Query().Get("group"),
		Method:   http.MethodGet,
		Path:     models.NormalizePath(uri),
	}

	decision, err := h.guard.Check(req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, http.StatusOK, decision)
}

// describe builds the immutable request descriptor from the callback,
// resolving the true client IP once according to the configured policy.
func (h *GuardHandler) describe(r *http.Request) (models.RequestDescriptor, *utils.AppError) {
	ip, err := utils.ResolveClientIP(h.ipSource, r)
	if err != nil {
		return models.RequestDescriptor{}, utils.ParseError(err)
	}

	return models.RequestDescriptor{
		SourceIP:  ip,
		Group:     chi.URLParam(r, "group"),
		Host:      r.Header.Get(constants.HeaderXForwardedHost),
		Path:      models.NormalizePath(r.Header.Get(constants.HeaderXForwardedURI)),
		Method:    headerOr(r, constants.HeaderXForwardedMethod, r.Method),
		Proto:     headerOr(r, constants.HeaderXForwardedProto, "http"),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}, nil
}

// writeDecision maps a Decision onto the forward-auth response. Geo
// headers are attached on every evaluable outcome so the proxy can log
// or display the origin even for rejected requests.
func writeDecision(w http.ResponseWriter, r *http.Request, decision models.Decision) {
	if decision.Geo.Known() {
		w.Header().Set(constants.HeaderXCountryCode, decision.Geo.CountryCode)
		if decision.Geo.CityName != "" {
			w.Header().Set(constants.HeaderXCityEnName, decision.Geo.CityName)
		}
	}

	switch decision.Kind {
	case models.DecisionRedirect:
		w.Header().Set(constants.HeaderLocation, resolveLocation(decision.Target, r))
		w.WriteHeader(decision.StatusCode)

	case models.DecisionDeny:
		w.WriteHeader(decision.StatusCode)
		if decision.Reason != "" {
			_, _ = w.Write([]byte(decision.Reason))
		}

	default:
		w.WriteHeader(http.StatusOK)
	}
}

// resolveLocation turns a redirect target into a Location header value.
// Absolute URLs pass through; relative targets are resolved against the
// original request's scheme and host from the forwarded headers.
func resolveLocation(target string, r *http.Request) string {
	if strings.Contains(target, "://") {
		return target
	}

	host := r.Header.Get(constants.HeaderXForwardedHost)
	if host == "" {
		return target
	}
	proto := headerOr(r, constants.HeaderXForwardedProto, "http")

	return proto + "://" + host + "/" + strings.TrimPrefix(target, "/")
}

func headerOr(r *http.Request, name, fallback string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return fallback
}
