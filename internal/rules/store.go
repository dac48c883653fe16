// Package rules implements the in-memory rule store: the single source
// of truth for request-path lookups, backed by write-through persistence
// for crash recovery.
//
// Concurrency follows a single-writer/multi-reader discipline. Readers
// load an immutable snapshot through an atomic pointer and never block;
// mutations serialize on a mutex, write through to durable storage, and
// only then swap in a rebuilt snapshot. A reader therefore observes
// either the pre- or post-state of any mutation, never a torn mix.
package rules

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/models"
	"github.com/guardpost/guardpost/internal/repository"
	"github.com/guardpost/guardpost/internal/utils"
)

// Store holds the live rule set.
type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
	repo repository.RuleRepository

	// now is the clock used for expiry checks, replaceable in tests.
	now func() time.Time
}

// NewStore creates a rule store backed by the given repository. Call
// Load before serving lookups.
func NewStore(repo repository.RuleRepository) *Store {
	s := &Store{
		repo: repo,
		now:  time.Now,
	}
	s.snap.Store(buildSnapshot(nil))
	return s
}

// Load replays durable storage into the in-memory structure. It must
// complete before the service accepts requests; a failure here is a
// startup failure.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.EnsureSchema(ctx); err != nil {
		return utils.NewStorageError(err)
	}

	rules, err := s.repo.GetAll(ctx)
	if err != nil {
		return utils.NewStorageError(err)
	}

	s.snap.Store(buildSnapshot(rules))
	log.Info().Int("rules", len(rules)).Msg("Rule store loaded")

	return nil
}

// Insert validates, persists, and publishes a rule. Inserting a rule
// with the same (group, type, kind, match key, permanence) identity as
// an existing one replaces it, which also refreshes a temporary rule's
// expiry. The durable write happens before the snapshot swap; on a
// storage error the mutation is rejected with no in-memory change.
func (s *Store) Insert(ctx context.Context, rule *models.Rule) error {
	if err := rule.Normalize(); err != nil {
		return utils.NewValidationError(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, rule); err != nil {
		return utils.NewStorageError(err)
	}

	current := s.snap.Load().rules
	next := make([]*models.Rule, 0, len(current)+1)
	for _, existing := range current {
		if existing.Group == rule.Group &&
			existing.Type == rule.Type &&
			existing.Kind == rule.Kind &&
			existing.MatchKey == rule.MatchKey &&
			existing.Temporary() == rule.Temporary() {
			continue
		}
		next = append(next, existing)
	}
	next = append(next, rule)

	s.snap.Store(buildSnapshot(next))

	log.Info().
		Str("rule_id", rule.ID).
		Str("group", rule.Group).
		Str("type", string(rule.Type)).
		Str("kind", string(rule.Kind)).
		Str("match_key", rule.MatchKey).
		Bool("temporary", rule.Temporary()).
		Msg("Rule inserted")

	return nil
}

// RemoveByID deletes a rule by its ID.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return utils.NewStorageError(err)
	}
	if removed == 0 {
		return utils.NewNotFoundError("Rule", id)
	}

	s.swapWithout(func(r *models.Rule) bool { return r.ID == id })

	log.Info().Str("rule_id", id).Msg("Rule removed")
	return nil
}

// RemoveByMatch deletes rules by (group, type, kind, match key). The
// key and group are canonicalized the same way Insert does, so a caller
// may spell them however Insert accepted them. Both the permanent and
// the temporary rule for that key are removed.
func (s *Store) RemoveByMatch(ctx context.Context, group string, ruleType models.RuleType, kind models.MatchKind, matchKey string) error {
	group, err := models.CanonicalGroup(group)
	if err != nil {
		return utils.NewValidationError(err.Error())
	}
	matchKey, err = models.CanonicalMatchKey(kind, matchKey)
	if err != nil {
		return utils.NewValidationError(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.repo.DeleteByMatch(ctx, group, ruleType, kind, matchKey)
	if err != nil {
		return utils.NewStorageError(err)
	}
	if removed == 0 {
		return utils.NewNotFoundError("Rule", matchKey)
	}

	s.swapWithout(func(r *models.Rule) bool {
		return r.Group == group && r.Type == ruleType && r.Kind == kind && r.MatchKey == matchKey
	})

	log.Info().
		Str("group", group).
		Str("type", string(ruleType)).
		Str("kind", string(kind)).
		Str("match_key", matchKey).
		Int64("removed", removed).
		Msg("Rules removed by match")
	return nil
}

// swapWithout rebuilds the snapshot excluding rules the predicate
// selects. Caller must hold mu.
func (s *Store) swapWithout(drop func(*models.Rule) bool) {
	current := s.snap.Load().rules
	next := make([]*models.Rule, 0, len(current))
	for _, rule := range current {
		if !drop(rule) {
			next = append(next, rule)
		}
	}
	s.snap.Store(buildSnapshot(next))
}

// List returns the rules matching the given group and type filters;
// either filter may be empty to mean "all". Expired temporaries still
// present physically are included; they are a storage artifact the
// sweep will collect.
func (s *Store) List(group string, ruleType models.RuleType) []*models.Rule {
	snap := s.snap.Load()

	out := make([]*models.Rule, 0, len(snap.rules))
	for _, rule := range snap.rules {
		if group != "" && rule.Group != group {
			continue
		}
		if ruleType == "" || rule.Type == ruleType {
			out = append(out, rule)
		}
	}
	return out
}

// LookupDeny returns the group's highest-precedence live deny rule
// matching the request, or nil.
func (s *Store) LookupDeny(group string, ip netip.Addr, path, country string) *models.Rule {
	return s.snap.Load().matchDeny(group, ip, path, country, s.now())
}

// LookupRedirect returns the group's highest-precedence live redirect
// rule matching the request, or nil.
func (s *Store) LookupRedirect(group string, ip netip.Addr, path, country string) *models.Rule {
	return s.snap.Load().matchRedirect(group, ip, path, country, s.now())
}

// PurgeExpired physically removes expired temporary rules from storage
// and memory. Lookups already skip expired rules, so this is advisory
// housekeeping: a missed or failed sweep cannot change any decision.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, utils.NewStorageError(err)
	}

	if removed > 0 {
		s.swapWithout(func(r *models.Rule) bool { return r.IsExpired(now) })
	}

	return removed, nil
}

// StartSweeper runs the purge sweep on the given interval until the
// context is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.PurgeExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Purge sweep failed")
					continue
				}
				if removed > 0 {
					log.Info().Int64("removed", removed).Msg("Purged expired rules")
				}
			}
		}
	}()
}
