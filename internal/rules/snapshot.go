package rules

import (
	"net/netip"
	"sort"
	"time"

	"github.com/guardpost/guardpost/internal/models"
)

// snapshot is an immutable view of the rule set, rebuilt on every
// mutation and swapped in atomically. Readers index into it without
// locks; a reader in flight during a mutation keeps seeing its own
// consistent pre-mutation view. Rules are partitioned by group: each
// group is an independent rule set and lookups never cross groups.
type snapshot struct {
	rules  []*models.Rule
	groups map[string]*groupIndex
}

// groupIndex holds one group's deny and redirect indexes.
type groupIndex struct {
	deny     *index
	redirect *index
}

// index holds one rule type's rules arranged for the fixed matching
// precedence: exact IP, then narrowest CIDR, then longest URL pattern,
// then country code. Slices are pre-sorted at build time so a lookup is
// a forward scan that returns the first live match.
type index struct {
	byIP      map[netip.Addr][]*models.Rule
	byCIDR    []cidrEntry
	byURL     []*models.Rule
	byCountry map[string][]*models.Rule
}

type cidrEntry struct {
	prefix netip.Prefix
	rule   *models.Rule
}

// buildSnapshot arranges the given rules into lookup indexes. Expired
// rules are kept in the structure (physical purging is the sweep's job)
// and filtered at match time instead.
func buildSnapshot(rules []*models.Rule) *snapshot {
	snap := &snapshot{
		rules:  rules,
		groups: make(map[string]*groupIndex),
	}

	for _, rule := range rules {
		gi := snap.groups[rule.Group]
		if gi == nil {
			gi = &groupIndex{deny: newIndex(), redirect: newIndex()}
			snap.groups[rule.Group] = gi
		}
		switch rule.Type {
		case models.RuleDeny:
			gi.deny.add(rule)
		case models.RuleRedirect:
			gi.redirect.add(rule)
		}
	}

	for _, gi := range snap.groups {
		gi.deny.finish()
		gi.redirect.finish()
	}

	return snap
}

// matchDeny returns the group's highest-precedence live deny rule, or
// nil when the group has no rules at all.
func (s *snapshot) matchDeny(group string, ip netip.Addr, path, country string, now time.Time) *models.Rule {
	if gi := s.groups[group]; gi != nil {
		return gi.deny.match(ip, path, country, now)
	}
	return nil
}

// matchRedirect returns the group's highest-precedence live redirect
// rule, or nil.
func (s *snapshot) matchRedirect(group string, ip netip.Addr, path, country string, now time.Time) *models.Rule {
	if gi := s.groups[group]; gi != nil {
		return gi.redirect.match(ip, path, country, now)
	}
	return nil
}

func newIndex() *index {
	return &index{
		byIP:      make(map[netip.Addr][]*models.Rule),
		byCountry: make(map[string][]*models.Rule),
	}
}

func (ix *index) add(rule *models.Rule) {
	switch rule.Kind {
	case models.MatchIP:
		addr, err := rule.Addr()
		if err != nil {
			return
		}
		ix.byIP[addr] = append(ix.byIP[addr], rule)

	case models.MatchCIDR:
		prefix, err := rule.Prefix()
		if err != nil {
			return
		}
		ix.byCIDR = append(ix.byCIDR, cidrEntry{prefix: prefix, rule: rule})

	case models.MatchURL:
		ix.byURL = append(ix.byURL, rule)

	case models.MatchCountry:
		ix.byCountry[rule.MatchKey] = append(ix.byCountry[rule.MatchKey], rule)
	}
}

// finish sorts each bucket so lookups return the first entry that is
// alive: newest first for equal specificity, narrowest prefix first for
// CIDRs, longest literal prefix first for URL patterns.
func (ix *index) finish() {
	for _, rules := range ix.byIP {
		sortNewestFirst(rules)
	}
	for _, rules := range ix.byCountry {
		sortNewestFirst(rules)
	}

	sort.SliceStable(ix.byCIDR, func(i, j int) bool {
		if ix.byCIDR[i].prefix.Bits() != ix.byCIDR[j].prefix.Bits() {
			return ix.byCIDR[i].prefix.Bits() > ix.byCIDR[j].prefix.Bits()
		}
		return ix.byCIDR[i].rule.CreatedAt.After(ix.byCIDR[j].rule.CreatedAt)
	})

	sort.SliceStable(ix.byURL, func(i, j int) bool {
		if ix.byURL[i].LiteralPrefixLen() != ix.byURL[j].LiteralPrefixLen() {
			return ix.byURL[i].LiteralPrefixLen() > ix.byURL[j].LiteralPrefixLen()
		}
		return ix.byURL[i].CreatedAt.After(ix.byURL[j].CreatedAt)
	})
}

func sortNewestFirst(rules []*models.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
}

// match evaluates the precedence order and returns the first live rule,
// or nil. Expired temporary rules are skipped as if absent.
func (ix *index) match(ip netip.Addr, path, country string, now time.Time) *models.Rule {
	if rule := firstLive(ix.byIP[ip], now); rule != nil {
		return rule
	}

	for _, entry := range ix.byCIDR {
		if entry.prefix.Contains(ip) && !entry.rule.IsExpired(now) {
			return entry.rule
		}
	}

	for _, rule := range ix.byURL {
		if rule.MatchesPath(path) && !rule.IsExpired(now) {
			return rule
		}
	}

	if country != "" {
		if rule := firstLive(ix.byCountry[country], now); rule != nil {
			return rule
		}
	}

	return nil
}

func firstLive(rules []*models.Rule, now time.Time) *models.Rule {
	for _, rule := range rules {
		if !rule.IsExpired(now) {
			return rule
		}
	}
	return nil
}
