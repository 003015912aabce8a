package sessiongate

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader annotates login addresses using a MaxMind GeoLite2 City database.
type GeoIPReader struct {
	db *geoip2.Reader
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}
	return &GeoIPReader{db: db}, nil
}

// Lookup returns the city and country for ip.
func (r *GeoIPReader) Lookup(ip string) (LocationInfo, error) {
	if r == nil || r.db == nil {
		return LocationInfo{}, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return LocationInfo{}, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return LocationInfo{}, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	return LocationInfo{
		IP:      ip,
		City:    englishName(record.City.Names),
		Country: englishName(record.Country.Names),
	}, nil
}

// Locate is Lookup that degrades to an IP-only result. A nil reader is valid.
func (r *GeoIPReader) Locate(ip string) LocationInfo {
	loc, err := r.Lookup(ip)
	if err != nil {
		return LocationInfo{IP: ip}
	}
	return loc
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// englishName prefers the "en" entry and falls back to any available name.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}
