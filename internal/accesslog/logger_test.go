package accesslog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/utils"
)

func TestEntryFormat(t *testing.T) {
	t.Run("Full entry", func(t *testing.T) {
		// Arrange
		entry := Entry{
			Time:      time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			RemoteIP:  "203.0.113.7",
			Method:    "GET",
			URI:       "/api/v1/users",
			Proto:     "HTTP/2.0",
			Status:    403,
			Size:      21,
			Referer:   "https://example.com/",
			UserAgent: "curl/8.5.0",
			Country:   "RU",
			City:      "Moscow",
		}

		// Act
		line := entry.Format()

		// Assert
		assert.Equal(t,
			`203.0.113.7 - - [14/Mar/2026:09:26:53 +0000] "GET /api/v1/users HTTP/2.0" 403 21 "https://example.com/" "curl/8.5.0" "RU" "Moscow"`+"\n",
			line)
	})

	t.Run("Defaults for missing fields", func(t *testing.T) {
		entry := Entry{
			Time:     time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			RemoteIP: "203.0.113.7",
			Method:   "GET",
			URI:      "/",
			Status:   200,
		}

		line := entry.Format()

		assert.Equal(t,
			`203.0.113.7 - - [14/Mar/2026:09:26:53 +0000] "GET / HTTP/1.1" 200 - "-" "-" "-" "-"`+"\n",
			line)
	})

	t.Run("Timestamp is rendered in UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+3", 3*3600)
		entry := Entry{
			Time:     time.Date(2026, 3, 14, 1, 30, 0, 0, loc),
			RemoteIP: "203.0.113.7",
			Method:   "GET",
			URI:      "/",
			Status:   200,
		}

		line := entry.Format()

		assert.Contains(t, line, "[13/Mar/2026:22:30:00 +0000]")
	})
}

func TestLoggerRecord(t *testing.T) {
	t.Run("Appends to the day file", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		logger, err := New(dir)
		require.NoError(t, err)
		defer logger.Close()

		entry := Entry{
			Time:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			RemoteIP: "203.0.113.7",
			Method:   "GET",
			URI:      "/",
			Status:   200,
		}

		// Act
		logger.Record(entry)
		logger.Record(entry)
		require.NoError(t, logger.Close())

		// Assert
		data, err := os.ReadFile(filepath.Join(dir, "access-2026-03-14.log"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		assert.Len(t, lines, 2)
	})

	t.Run("Rotates at the UTC midnight boundary", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		logger, err := New(dir)
		require.NoError(t, err)
		defer logger.Close()

		before := Entry{
			Time:     time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC),
			RemoteIP: "203.0.113.7",
			Method:   "GET",
			URI:      "/before",
			Status:   200,
		}
		after := before
		after.Time = time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
		after.URI = "/after"

		// Act
		logger.Record(before)
		logger.Record(after)
		require.NoError(t, logger.Close())

		// Assert: each entry landed in the file for its own day.
		day1, err := os.ReadFile(filepath.Join(dir, "access-2026-03-14.log"))
		require.NoError(t, err)
		assert.Contains(t, string(day1), "/before")
		assert.NotContains(t, string(day1), "/after")

		day2, err := os.ReadFile(filepath.Join(dir, "access-2026-03-15.log"))
		require.NoError(t, err)
		assert.Contains(t, string(day2), "/after")
		assert.NotContains(t, string(day2), "/before")
	})

	t.Run("Concurrent writers produce whole lines", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		logger, err := New(dir)
		require.NoError(t, err)
		defer logger.Close()

		when := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					logger.Record(Entry{
						Time:     when,
						RemoteIP: "203.0.113.7",
						Method:   "GET",
						URI:      "/load",
						Status:   200,
					})
				}
			}()
		}
		wg.Wait()
		require.NoError(t, logger.Close())

		// Assert
		data, err := os.ReadFile(filepath.Join(dir, "access-2026-03-14.log"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		require.Len(t, lines, 20*50)
		for _, line := range lines {
			assert.True(t, strings.HasPrefix(line, "203.0.113.7 - - ["), "Interleaved write: %q", line)
		}
	})

	t.Run("Write failure reaches the error callback", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		logger, err := New(dir)
		require.NoError(t, err)

		var got error
		logger.onError = func(err error) { got = err }

		// Swap in a read-only handle so the next append fails.
		name := filepath.Join(dir, "access-"+time.Now().UTC().Format(dayFormat)+".log")
		readOnly, err := os.Open(name)
		require.NoError(t, err)
		require.NoError(t, logger.file.Close())
		logger.file = readOnly
		defer logger.Close()

		// Act
		logger.Record(Entry{
			Time:     time.Now().UTC(),
			RemoteIP: "203.0.113.7",
			Method:   "GET",
			URI:      "/",
			Status:   200,
		})

		// Assert: the failure is reported and carries the I/O sentinel.
		require.Error(t, got)
		assert.True(t, errors.Is(got, utils.ErrLogIO))
	})
}

func TestLoggerNew(t *testing.T) {
	t.Run("Creates directory and probes the day file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "logs")

		logger, err := New(dir)

		require.NoError(t, err)
		defer logger.Close()
		expected := filepath.Join(dir, "access-"+time.Now().UTC().Format("2006-01-02")+".log")
		_, statErr := os.Stat(expected)
		assert.NoError(t, statErr)
	})
}
