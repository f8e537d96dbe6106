package weather

import "errors"

// Pipeline failures. Providers wrap the underlying cause so callers can match
// with errors.Is while still seeing the transport detail.
var (
	ErrLocationNotFound         = errors.New("location not found")
	ErrStationLookupFailed      = errors.New("station lookup failed")
	ErrNoStationsNearby         = errors.New("no weather stations found nearby")
	ErrObservationFetchFailed   = errors.New("observation fetch failed")
	ErrArchiveFetchFailed       = errors.New("archive fetch failed")
	ErrMalformedArchiveResponse = errors.New("malformed archive response")
)
