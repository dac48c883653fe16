package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/database"
	"github.com/guardpost/guardpost/internal/models"
)

// setupMockDB creates a repository backed by sqlmock.
func setupMockDB(t *testing.T) (RuleRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	pool := &database.Pool{DB: sqlx.NewDb(mockDB, "sqlmock")}
	return NewRuleRepository(pool), mock
}

func TestEnsureSchema(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		repo, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS rules").
			WillReturnResult(sqlmock.NewResult(0, 0))

		// Act
		err := repo.EnsureSchema(context.Background())

		// Assert
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS rules").
			WillReturnError(errors.New("disk I/O error"))

		err := repo.EnsureSchema(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create rules schema")
	})
}

func TestSave(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		repo, mock := setupMockDB(t)
		rule := models.NewDenyRule(models.MatchIP, "192.0.2.1", "abuse", 403, nil, "admin")

		mock.ExpectExec("INSERT OR REPLACE INTO rules").
			WithArgs(
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
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// Act
		err := repo.Save(context.Background(), rule)

		// Assert
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		rule := models.NewDenyRule(models.MatchIP, "192.0.2.1", "", 0, nil, "")

		mock.ExpectExec("INSERT OR REPLACE INTO rules").
			WillReturnError(errors.New("database is locked"))

		err := repo.Save(context.Background(), rule)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save rule")
	})
}

func TestDeleteByID(t *testing.T) {
	t.Run("Existing rule", func(t *testing.T) {
		// Arrange
		repo, mock := setupMockDB(t)
		mock.ExpectExec("DELETE FROM rules WHERE rule_id").
			WithArgs("rule-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		// Act
		removed, err := repo.DeleteByID(context.Background(), "rule-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("Missing rule reports zero rows", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectExec("DELETE FROM rules WHERE rule_id").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		removed, err := repo.DeleteByID(context.Background(), "missing")

		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})
}

func TestDeleteByMatch(t *testing.T) {
	// Arrange
	repo, mock := setupMockDB(t)
	mock.ExpectExec("DELETE FROM rules WHERE rule_group").
		WithArgs("default", models.RuleDeny, models.MatchIP, "192.0.2.1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	// Act
	removed, err := repo.DeleteByMatch(context.Background(), "default", models.RuleDeny, models.MatchIP, "192.0.2.1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "Permanent and temporary rule share the key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpired(t *testing.T) {
	// The cutoff must reach SQLite in UTC: timestamps are stored as UTC
	// text and compared textually, so a zoned instant would order
	// lexically, not chronologically.
	t.Run("Cutoff is normalized to UTC", func(t *testing.T) {
		// Arrange
		repo, mock := setupMockDB(t)
		now := time.Now().In(time.FixedZone("UTC-5", -5*3600))
		mock.ExpectExec("DELETE FROM rules WHERE expires_at IS NOT NULL").
			WithArgs(now.UTC()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		// Act
		removed, err := repo.DeleteExpired(context.Background(), now)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAll(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		repo, mock := setupMockDB(t)
		now := time.Now()
		expiry := now.Add(1 * time.Hour)

		rows := sqlmock.NewRows([]string{
			"rule_id", "rule_group", "rule_type", "match_kind", "match_key", "reason",
			"target", "status_code", "expires_at", "created_at", "created_by",
		}).
			AddRow("rule-1", "default", "deny", "cidr", "10.0.0.0/8", "internal", "", 403, nil, now, "admin").
			AddRow("rule-2", "internal", "redirect", "country", "RU", "", "https://moved.example/", 302, expiry, now, "")

		mock.ExpectQuery("SELECT (.+) FROM rules").WillReturnRows(rows)

		// Act
		rules, err := repo.GetAll(context.Background())

		// Assert
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, models.RuleDeny, rules[0].Type)
		assert.Nil(t, rules[0].ExpiresAt)
		assert.Equal(t, models.RuleRedirect, rules[1].Type)
		assert.Equal(t, "internal", rules[1].Group)
		require.NotNil(t, rules[1].ExpiresAt)
		assert.WithinDuration(t, expiry, *rules[1].ExpiresAt, time.Second)
	})

	t.Run("Query error", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM rules").
			WillReturnError(errors.New("no such table"))

		rules, err := repo.GetAll(context.Background())

		require.Error(t, err)
		assert.Nil(t, rules)
		assert.Contains(t, err.Error(), "failed to query rules")
	})
}
