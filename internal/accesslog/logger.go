// Package accesslog appends one Apache Combined Log Format line per
// request to a file that rotates at the UTC day boundary.
package accesslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/utils"
)

// dayFormat names the per-day files: access-2006-01-02.log.
const dayFormat = "2006-01-02"

// Logger owns the access log files. No other component touches them.
//
// Record serializes writers on one mutex, and the rotation decision is
// made under that same mutex, so a line is never written to the wrong
// day's file even when concurrent writers straddle midnight. File
// appends are bounded I/O, so callers block briefly, never indefinitely.
type Logger struct {
	mu   sync.Mutex
	dir  string
	file *os.File
	day  string

	// onError receives write failures. Logging is best-effort with
	// respect to the request outcome, but failures must stay observable.
	onError func(error)
}

// New creates an access logger writing under the given directory. The
// directory is created and probed at startup; an unwritable log
// directory is a startup failure.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create access log directory %s: %w", dir, err)
	}

	l := &Logger{
		dir: dir,
		onError: func(err error) {
			log.Error().Err(err).Msg("Access log write failed")
		},
	}

	// Probe writability now rather than on the first request.
	if err := l.openDay(time.Now().UTC().Format(dayFormat)); err != nil {
		return nil, err
	}

	return l, nil
}

// Record appends the entry to the file for its UTC calendar day,
// rotating first if that file is not the one currently open. Write
// failures are reported through the error callback and never abort the
// request decision already made.
func (l *Logger) Record(entry Entry) {
	line := entry.Format()
	day := entry.Time.UTC().Format(dayFormat)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || day != l.day {
		if err := l.openDay(day); err != nil {
			l.onError(fmt.Errorf("%w: %v", utils.ErrLogIO, err))
			return
		}
	}

	if _, err := l.file.WriteString(line); err != nil {
		l.onError(fmt.Errorf("%w: failed to append entry: %v", utils.ErrLogIO, err))
	}
}

// openDay closes the current file and opens the file for the given day
// in append mode. Caller must hold mu (or be the constructor).
func (l *Logger) openDay(day string) error {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			l.onError(fmt.Errorf("%w: failed to close file: %v", utils.ErrLogIO, err))
		}
		l.file = nil
	}

	name := filepath.Join(l.dir, constants.AccessLogFilePrefix+day+".log")
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open access log file %s: %w", name, err)
	}

	l.file = file
	l.day = day
	log.Info().Str("file", name).Msg("Access log file opened")
	return nil
}

// Close flushes and closes the current file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
