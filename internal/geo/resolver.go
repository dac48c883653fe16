// Package geo resolves client IP addresses to country and city data
// using a MaxMind GeoLite2-City database.
package geo

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/models"
	"github.com/guardpost/guardpost/internal/utils"
)

// cityReader is the lookup contract consumed from the geo database.
// *geoip2.Reader satisfies it; tests substitute a stub.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Resolver maps IP addresses to GeoInfo. Lookups never fail the caller:
// on any miss or database error the "ZZ" unknown sentinel is returned,
// since geo enrichment is best-effort on the hot path.
//
// The underlying reader supports concurrent lookups, and the LRU cache
// bounds repeated database work for bursty traffic from one address.
// Cache entries have no TTL beyond the LRU bound; the IP-to-location
// mapping for a given address changes rarely.
type Resolver struct {
	reader cityReader
	cache  *lru.Cache[netip.Addr, models.GeoInfo]
}

// NewResolver opens the GeoLite2-City database under the given path.
// The path may name the .mmdb file directly or the directory containing
// it. Failure to open is a startup failure, never a per-request one.
func NewResolver(dbPath string, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = constants.DefaultGeoCacheSize
	}

	if info, err := os.Stat(dbPath); err == nil && info.IsDir() {
		dbPath = filepath.Join(dbPath, constants.DefaultGeoDBFile)
	}

	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database %s: %w", dbPath, err)
	}

	resolver, err := newResolver(reader, cacheSize)
	if err != nil {
		reader.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Int("cache_size", cacheSize).Msg("Geo database opened")
	return resolver, nil
}

// newResolver wires a resolver around any cityReader.
func newResolver(reader cityReader, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[netip.Addr, models.GeoInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create geo cache: %w", err)
	}
	return &Resolver{reader: reader, cache: cache}, nil
}

// Resolve maps an IP address to GeoInfo. Loopback, private, link-local
// and unspecified addresses skip the database entirely; they have no
// geographic origin.
func (r *Resolver) Resolve(ip netip.Addr) models.GeoInfo {
	if !ip.IsValid() || !routable(ip) {
		return models.UnknownGeo()
	}

	if info, ok := r.cache.Get(ip); ok {
		return info
	}

	city, err := r.reader.City(net.IP(ip.AsSlice()))
	if err != nil {
		log.Debug().
			Err(fmt.Errorf("%w: %v", utils.ErrGeoLookupUnavailable, err)).
			Str("ip", ip.String()).
			Msg("Geo lookup failed")
		return models.UnknownGeo()
	}

	info := models.GeoInfo{
		CountryCode: strings.ToUpper(city.Country.IsoCode),
		CityName:    city.City.Names["en"],
	}
	if info.CountryCode == "" {
		info.CountryCode = constants.UnknownCountryCode
	}

	r.cache.Add(ip, info)
	return info
}

// Close releases the underlying database handle.
func (r *Resolver) Close() error {
	return r.reader.Close()
}

// routable reports whether the address can plausibly appear in the geo
// database.
func routable(ip netip.Addr) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}
