package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/models"
	"github.com/guardpost/guardpost/internal/utils"
)

// RuleStore is the mutation contract the administrative API needs from
// the rule store.
type RuleStore interface {
	Insert(ctx context.Context, rule *models.Rule) error
	RemoveByID(ctx context.Context, id string) error
	RemoveByMatch(ctx context.Context, group string, ruleType models.RuleType, kind models.MatchKind, matchKey string) error
	List(group string, ruleType models.RuleType) []*models.Rule
}

// RuleHandler serves the administrative rule CRUD endpoints. Every route
// it handles sits behind the shared-secret middleware.
type RuleHandler struct {
	store    RuleStore
	validate *validator.Validate
}

// NewRuleHandler creates a RuleHandler.
func NewRuleHandler(store RuleStore) *RuleHandler {
	return &RuleHandler{
		store:    store,
		validate: validator.New(),
	}
}

// RulePayload is the request body for creating a rule.
type RulePayload struct {
	// Group is the rule group, default group when absent.
	Group string `json:"group,omitempty" validate:"omitempty,max=64"`

	// Type is the rule effect.
	Type string `json:"type" validate:"required,oneof=deny redirect"`

	// Kind discriminates the match key.
	Kind string `json:"kind" validate:"required,oneof=ip cidr url country"`

	// MatchKey is the IP, CIDR, URL pattern, or country code.
	MatchKey string `json:"match_key" validate:"required,max=256"`

	// Reason is the denial reason for deny rules.
	Reason string `json:"reason,omitempty" validate:"max=512"`

	// Target is the redirect target for redirect rules.
	Target string `json:"target,omitempty" validate:"omitempty,max=2048"`

	// StatusCode overrides the default status (403 deny, 302 redirect).
	StatusCode int `json:"status_code,omitempty" validate:"omitempty,gte=300,lte=599"`

	// ExpiresAt makes the rule temporary, absent means permanent.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// TTLSeconds is a convenience alternative to ExpiresAt.
	TTLSeconds int64 `json:"ttl_seconds,omitempty" validate:"gte=0"`

	// CreatedBy optionally records the administrative caller.
	CreatedBy string `json:"created_by,omitempty" validate:"max=128"`
}

// List handles GET /admin/rules, optionally filtered by ?group= and
// ?type=.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	ruleType := models.RuleType(r.URL.Query().Get("type"))
	switch ruleType {
	case "", models.RuleDeny, models.RuleRedirect:
	default:
		utils.Error(w, http.StatusBadRequest, constants.CodeValidationError,
			"query parameter 'type' must be 'deny' or 'redirect'", nil)
		return
	}

	utils.JSON(w, http.StatusOK, h.store.List(r.URL.Query().Get("group"), ruleType))
}

// Create handles POST /admin/rules. The mutation is written through to
// durable storage before the response is sent; a storage failure rejects
// it entirely.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload RulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.Error(w, http.StatusBadRequest, constants.CodeValidationError, "Invalid JSON body", nil)
		return
	}

	if err := h.validate.Struct(&payload); err != nil {
		utils.Error(w, http.StatusBadRequest, constants.CodeValidationError, err.Error(), nil)
		return
	}

	expiresAt := payload.ExpiresAt
	if expiresAt == nil && payload.TTLSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(payload.TTLSeconds) * time.Second)
		expiresAt = &t
	}

	var rule *models.Rule
	switch models.RuleType(payload.Type) {
	case models.RuleDeny:
		rule = models.NewDenyRule(models.MatchKind(payload.Kind), payload.MatchKey,
			payload.Reason, payload.StatusCode, expiresAt, payload.CreatedBy)
	case models.RuleRedirect:
		rule = models.NewRedirectRule(models.MatchKind(payload.Kind), payload.MatchKey,
			payload.Target, payload.StatusCode, expiresAt, payload.CreatedBy)
	}
	rule.Group = payload.Group

	if err := h.store.Insert(r.Context(), rule); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, http.StatusCreated, rule)
}

// DeleteByID handles DELETE /admin/rules/{id}.
func (h *RuleHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.RemoveByID(r.Context(), id); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.NoContent(w)
}

// DeleteByMatch handles DELETE /admin/rules?type=&kind=&match_key=
// with an optional &group=, removing both the permanent and the
// temporary rule for that key.
func (h *RuleHandler) DeleteByMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ruleType := models.RuleType(q.Get("type"))
	kind := models.MatchKind(q.Get("kind"))
	matchKey := q.Get("match_key")

	if (ruleType != models.RuleDeny && ruleType != models.RuleRedirect) || kind == "" || matchKey == "" {
		utils.Error(w, http.StatusBadRequest, constants.CodeValidationError,
			"query parameters 'type', 'kind', and 'match_key' are required", nil)
		return
	}

	if err := h.store.RemoveByMatch(r.Context(), q.Get("group"), ruleType, kind, matchKey); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.NoContent(w)
}
