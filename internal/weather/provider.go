package weather

import (
	"context"
	"time"
)

// StationsURL is an opaque link to a list of observation stations near a point.
type StationsURL string

// Geocoder resolves a postal code to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, postalCode string) (Coordinates, error)
}

// StationResolver finds the station-list resource for a point.
type StationResolver interface {
	FindObservationStations(ctx context.Context, coords Coordinates) (StationsURL, error)
}

// LiveFetcher returns recent observations from the first station in the list.
type LiveFetcher interface {
	FetchLiveObservations(ctx context.Context, stations StationsURL) ([]Observation, error)
}

// HistoricalFetcher returns the hourly series for a single calendar day.
type HistoricalFetcher interface {
	FetchHistorical(ctx context.Context, coords Coordinates, date time.Time) ([]Observation, error)
}

// RunObserver receives one call per pipeline invocation.
type RunObserver interface {
	ObservePipeline(path Path, err error, elapsed time.Duration)
}
