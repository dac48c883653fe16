package geo

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReader returns canned records and counts lookups.
type stubReader struct {
	records map[string]*geoip2.City
	err     error
	calls   int
	closed  bool
}

func (s *stubReader) City(ip net.IP) (*geoip2.City, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if record, ok := s.records[ip.String()]; ok {
		return record, nil
	}
	return &geoip2.City{}, nil
}

func (s *stubReader) Close() error {
	s.closed = true
	return nil
}

func cityRecord(iso, city string) *geoip2.City {
	record := &geoip2.City{}
	record.Country.IsoCode = iso
	record.City.Names = map[string]string{"en": city}
	return record
}

func newTestResolver(t *testing.T, reader *stubReader, cacheSize int) *Resolver {
	t.Helper()
	resolver, err := newResolver(reader, cacheSize)
	require.NoError(t, err)
	return resolver
}

func TestResolve(t *testing.T) {
	t.Run("Known address", func(t *testing.T) {
		// Arrange
		reader := &stubReader{records: map[string]*geoip2.City{
			"203.0.113.7": cityRecord("RU", "Moscow"),
		}}
		resolver := newTestResolver(t, reader, 16)

		// Act
		info := resolver.Resolve(netip.MustParseAddr("203.0.113.7"))

		// Assert
		assert.Equal(t, "RU", info.CountryCode)
		assert.Equal(t, "Moscow", info.CityName)
		assert.True(t, info.Known())
	})

	t.Run("Address absent from database", func(t *testing.T) {
		reader := &stubReader{}
		resolver := newTestResolver(t, reader, 16)

		info := resolver.Resolve(netip.MustParseAddr("203.0.113.8"))

		assert.Equal(t, "ZZ", info.CountryCode)
		assert.Empty(t, info.CityName)
		assert.False(t, info.Known())
	})

	t.Run("Database error degrades to unknown", func(t *testing.T) {
		reader := &stubReader{err: errors.New("corrupt data section")}
		resolver := newTestResolver(t, reader, 16)

		info := resolver.Resolve(netip.MustParseAddr("203.0.113.9"))

		assert.Equal(t, "ZZ", info.CountryCode)
	})

	t.Run("Lowercase ISO code is normalized", func(t *testing.T) {
		reader := &stubReader{records: map[string]*geoip2.City{
			"203.0.113.7": cityRecord("de", "Berlin"),
		}}
		resolver := newTestResolver(t, reader, 16)

		info := resolver.Resolve(netip.MustParseAddr("203.0.113.7"))

		assert.Equal(t, "DE", info.CountryCode)
	})

	t.Run("Non-routable addresses skip the database", func(t *testing.T) {
		reader := &stubReader{}
		resolver := newTestResolver(t, reader, 16)

		for _, raw := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.1", "169.254.0.1", "0.0.0.0", "::1", "fe80::1"} {
			info := resolver.Resolve(netip.MustParseAddr(raw))
			assert.Equal(t, "ZZ", info.CountryCode, raw)
		}

		assert.Zero(t, reader.calls, "No database lookup should have happened")
	})

	t.Run("Invalid address", func(t *testing.T) {
		resolver := newTestResolver(t, &stubReader{}, 16)

		info := resolver.Resolve(netip.Addr{})

		assert.Equal(t, "ZZ", info.CountryCode)
	})
}

func TestResolveCaching(t *testing.T) {
	// Arrange
	reader := &stubReader{records: map[string]*geoip2.City{
		"203.0.113.7": cityRecord("RU", "Moscow"),
	}}
	resolver := newTestResolver(t, reader, 16)
	addr := netip.MustParseAddr("203.0.113.7")

	// Act
	first := resolver.Resolve(addr)
	second := resolver.Resolve(addr)

	// Assert
	assert.Equal(t, first, second)
	assert.Equal(t, 1, reader.calls, "Second lookup should hit the cache")
}

func TestResolverClose(t *testing.T) {
	reader := &stubReader{}
	resolver := newTestResolver(t, reader, 16)

	require.NoError(t, resolver.Close())

	assert.True(t, reader.closed)
}
