package mappack

import "errors"

// Sentinel errors for mappack operations.
var (
	// ErrNoMaps is returned when a pool has no entries.
	ErrNoMaps = errors.New("mappack: no maps provided")

	// ErrMalformedReference is returned when a beatmap URL matches neither
	// the path form (/b/{id}) nor the fragment form (#{mode}/{id}).
	ErrMalformedReference = errors.New("mappack: malformed beatmap reference")

	// ErrCredentialsUnavailable is returned when no entry could be resolved
	// because the osu! credential exchange failed.
	ErrCredentialsUnavailable = errors.New("mappack: osu! credentials unavailable")

	// ErrInvalidKey is returned when a string is not a valid content key.
	ErrInvalidKey = errors.New("mappack: invalid content key")

	// ErrNoStore is returned by New when no store is configured.
	ErrNoStore = errors.New("mappack: no store configured")

	// ErrNoMetadataClient is returned by New when no metadata client is configured.
	ErrNoMetadataClient = errors.New("mappack: no metadata client configured")

	// ErrNoPublicBaseURL is returned by New when no public base URL is configured.
	ErrNoPublicBaseURL = errors.New("mappack: no public base URL configured")
)
