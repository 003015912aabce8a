package sessiongate

import "errors"

var (
	// ErrUserIDRequired is returned when an operation is called with an empty user ID.
	ErrUserIDRequired = errors.New("sessiongate: user id is required")

	// ErrDeviceIDRequired is returned when a login carries no device fingerprint.
	ErrDeviceIDRequired = errors.New("sessiongate: device id is required")

	// ErrAdmissionContended is returned when the conditional session write keeps
	// losing to concurrent writers.
	ErrAdmissionContended = errors.New("sessiongate: session admission contended")

	// ErrInvalidPolicy is returned for an unknown role policy mode.
	ErrInvalidPolicy = errors.New("sessiongate: invalid role policy")

	// ErrAccountNotFound is returned when a credential does not map to any account.
	ErrAccountNotFound = errors.New("sessiongate: account not found")

	// ErrGeoIPDatabaseNotConfigured is returned when GeoIP lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("sessiongate: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when IP geolocation lookup fails.
	ErrGeoIPLookupFailed = errors.New("sessiongate: GeoIP lookup failed")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("sessiongate: invalid IP address")
)
