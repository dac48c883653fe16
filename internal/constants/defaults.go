// Package constants centralizes configuration defaults, header names, and
// error codes used across the guard service.
package constants

import "time"

// Application defaults.
const (
	// AppName is the service name used in logs and version output.
	AppName = "guardpost"

	// EnvDevelopment marks a development environment.
	EnvDevelopment = "development"
	// EnvProduction marks a production environment.
	EnvProduction = "production"
)

// Server defaults.
const (
	// DefaultServerHost is the default bind address.
	DefaultServerHost = "0.0.0.0"
	// DefaultServerPort is the default listening port for the forward-auth callback.
	DefaultServerPort = 8000
	// DefaultReadTimeout bounds how long reading a request may take.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds how long writing a response may take.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultIdleTimeout bounds how long an idle keep-alive connection is held.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	DefaultShutdownTimeout = 15 * time.Second
)

// Guard pipeline defaults.
const (
	// DefaultGeoDBFile is the MaxMind database file name expected under the
	// configured geo database path.
	DefaultGeoDBFile = "GeoLite2-City.mmdb"

	// DefaultGeoCacheSize bounds the geo lookup LRU cache.
	DefaultGeoCacheSize = 4096

	// DefaultPurgeInterval is how often the advisory sweep removes expired
	// temporary rules. Correctness never depends on it; lookups skip expired
	// rules regardless.
	DefaultPurgeInterval = 10 * time.Minute

	// DefaultRuleGroup is the rule group used when a rule or a forward-auth
	// callback does not name one.
	DefaultRuleGroup = "default"

	// DefaultDenyStatus is the HTTP status used by deny rules that do not
	// specify one.
	DefaultDenyStatus = 403

	// DefaultRedirectStatus is the HTTP status used by redirect rules that
	// do not specify one.
	DefaultRedirectStatus = 302

	// UnknownCountryCode is the ISO 3166-1 sentinel for unresolvable origins.
	UnknownCountryCode = "ZZ"

	// RulesDatabaseFile is the SQLite file name under the storage directory.
	RulesDatabaseFile = "rules.db"

	// AccessLogFilePrefix is the prefix of the daily access log files,
	// access-YYYY-MM-DD.log.
	AccessLogFilePrefix = "access-"
)
