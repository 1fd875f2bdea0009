package risk

import (
	"fmt"
	"net"

	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

// Location is the geographic position resolved for an IP address.
type Location struct {
	City    string
	Country string
}

// Locator resolves IP addresses to locations.
type Locator interface {
	Locate(ipAddress string) (Location, error)
}

// GeoIPLocator resolves locations from a MaxMind City database.
type GeoIPLocator struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens the .mmdb database at path.
func OpenGeoIP(path string) (*GeoIPLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &GeoIPLocator{reader: reader}, nil
}

// Locate returns the English city name and ISO country code for ipAddress.
func (l *GeoIPLocator) Locate(ipAddress string) (Location, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return Location{}, fmt.Errorf("invalid ip address: %s", ipAddress)
	}

	record, err := l.reader.City(ip)
	if err != nil {
		return Location{}, fmt.Errorf("geoip lookup failed: %w", err)
	}

	return Location{
		City:    record.City.Names["en"],
		Country: record.Country.IsoCode,
	}, nil
}

// Close releases the database.
func (l *GeoIPLocator) Close() error {
	return l.reader.Close()
}

// Enrich fills the attempt's missing city and country from its IP address.
// Caller-supplied values are kept.
func Enrich(l Locator, attempt *domain.LoginAttempt) error {
	if l == nil || attempt.IPAddress == "" || (attempt.City != "" && attempt.Country != "") {
		return nil
	}

	loc, err := l.Locate(attempt.IPAddress)
	if err != nil {
		return err
	}
	if attempt.City == "" {
		attempt.City = loc.City
	}
	if attempt.Country == "" {
		attempt.Country = loc.Country
	}
	return nil
}
