// Package repository provides data access interfaces and implementations
// for rule persistence.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/guardpost/guardpost/internal/database"
	"github.com/guardpost/guardpost/internal/models"
)

// RuleRepository defines the durable storage contract for rules. All
// writes are synchronous: when a call returns nil the mutation has been
// committed and survives a crash.
type RuleRepository interface {
	// EnsureSchema creates the rules table and indexes if missing.
	EnsureSchema(ctx context.Context) error

	// Save upserts a rule. A rule with the same (group, type, kind,
	// match key, permanence) identity replaces the existing row.
	Save(ctx context.Context, rule *models.Rule) error

	// DeleteByID removes a rule by its ID.
	//
	// Returns:
	//   - The number of rows removed (0 when the rule does not exist)
	//   - Error if the operation fails
	DeleteByID(ctx context.Context, id string) (int64, error)

	// DeleteByMatch removes rules by (group, type, kind, match key).
	DeleteByMatch(ctx context.Context, group string, ruleType models.RuleType, kind models.MatchKind, matchKey string) (int64, error)

	// DeleteExpired removes all temporary rules that expired before the
	// given instant. Advisory housekeeping for the purge sweep.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// GetAll retrieves every persisted rule, newest first.
	GetAll(ctx context.Context) ([]*models.Rule, error)
}

// SQLiteRuleRepository is the SQLite implementation of RuleRepository.
type SQLiteRuleRepository struct {
	db *database.Pool
}

// NewRuleRepository creates a RuleRepository backed by SQLite.
func NewRuleRepository(db *database.Pool) RuleRepository {
	return &SQLiteRuleRepository{db: db}
}

// schema holds the rules table definition. The unique index over
// (group, type, kind, key, permanence) makes Save's INSERT OR REPLACE
// implement the duplicate-replaces semantics: a permanent and a
// temporary rule may coexist for the same match key, but inserting a
// second temporary rule for it replaces the first and refreshes its
// expiry. Timestamps are stored in UTC (see Rule.Normalize), so the
// textual expires_at comparison in DeleteExpired is chronological.
const schema = `
CREATE TABLE IF NOT EXISTS rules (
	rule_id     TEXT PRIMARY KEY,
	rule_group  TEXT NOT NULL DEFAULT 'default',
	rule_type   TEXT NOT NULL,
	match_kind  TEXT NOT NULL,
	match_key   TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL,
	expires_at  TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	created_by  TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_identity
	ON rules(rule_group, rule_type, match_kind, match_key, (expires_at IS NULL));
`

// EnsureSchema creates the rules table and indexes if missing.
func (r *SQLiteRuleRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create rules schema: %w", err)
	}
	return nil
}

// Save upserts a rule.
func (r *SQLiteRuleRepository) Save(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT OR REPLACE INTO rules
			(rule_id, rule_group, rule_type, match_kind, match_key, reason, target, status_code, expires_at, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		rule.ID,
		rule.Group,
		rule.Type,
		rule.Kind,
		rule.MatchKey,
		rule.Reason,
		rule.Target,
		rule.StatusCode,
		rule.ExpiresAt,
		rule.CreatedAt,
		rule.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

// DeleteByID removes a rule by its ID.
func (r *SQLiteRuleRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE rule_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DeleteByMatch removes rules by (group, type, kind, match key).
func (r *SQLiteRuleRepository) DeleteByMatch(ctx context.Context, group string, ruleType models.RuleType, kind models.MatchKind, matchKey string) (int64, error) {
	query := `DELETE FROM rules WHERE rule_group = ? AND rule_type = ? AND match_kind = ? AND match_key = ?`

	result, err := r.db.ExecContext(ctx, query, group, ruleType, kind, matchKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rules by match: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DeleteExpired removes all temporary rules that expired before the
// given instant. The instant is normalized to UTC to match the stored
// timestamps; SQLite compares them as text.
func (r *SQLiteRuleRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE expires_at IS NOT NULL AND expires_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rules: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// GetAll retrieves every persisted rule, newest first.
func (r *SQLiteRuleRepository) GetAll(ctx context.Context) ([]*models.Rule, error) {
	query := `
		SELECT rule_id, rule_group, rule_type, match_kind, match_key, reason, target, status_code, expires_at, created_at, created_by
		FROM rules
		ORDER BY created_at DESC
	`

	var rules []*models.Rule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	return rules, nil
}
