package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
	"github.com/kelvins/geocoder"
	"go.uber.org/zap"
)

// The geocoder package keeps its API key and endpoint in package variables.
// Lookups hold the read lock; only configuration changes take the write lock.
var googleKeyMu sync.RWMutex

var errEmptyGeocodeResult = errors.New("geocoder returned no result")

// GoogleGeocoder resolves postal codes with the Google Geocoding API. It is an
// alternative to ZippopotamGeocoder for users with an API key.
//
// The underlying client takes no context and uses an HTTP client without a
// timeout, so each lookup runs in its own goroutine and Resolve returns when
// ctx or the configured timeout expires. An abandoned lookup finishes in the
// background and its result is dropped.
type GoogleGeocoder struct {
	apiKey  string
	country string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGoogleGeocoder installs apiKey as the process-wide key of the geocoder
// package. A timeout of zero leaves only ctx to bound a lookup.
func NewGoogleGeocoder(apiKey, country string, timeout time.Duration, logger *zap.Logger) *GoogleGeocoder {
	if country == "" {
		country = "United States"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	googleKeyMu.Lock()
	geocoder.ApiKey = apiKey
	googleKeyMu.Unlock()

	return &GoogleGeocoder{
		apiKey:  apiKey,
		country: country,
		timeout: timeout,
		logger:  logger.With(zap.String("provider", "google")),
	}
}

type geocodeResult struct {
	loc geocoder.Location
	err error
}

func (g *GoogleGeocoder) Resolve(ctx context.Context, postalCode string) (weather.Coordinates, error) {
	if g.apiKey == "" {
		return weather.Coordinates{}, fmt.Errorf("%w: google geocoding api key is not configured", weather.ErrLocationNotFound)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: %w", weather.ErrLocationNotFound, err)
	}

	done := make(chan geocodeResult, 1)
	go func() {
		googleKeyMu.RLock()
		defer googleKeyMu.RUnlock()
		// Geocoding indexes the first result without checking for one.
		defer func() {
			if r := recover(); r != nil {
				done <- geocodeResult{err: fmt.Errorf("%w: %v", errEmptyGeocodeResult, r)}
			}
		}()
		loc, err := geocoder.Geocoding(geocoder.Address{
			PostalCode: postalCode,
			Country:    g.country,
		})
		done <- geocodeResult{loc: loc, err: err}
	}()

	var res geocodeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		g.logger.Warn("geocoding abandoned",
			zap.String("postal_code", postalCode),
			zap.Error(ctx.Err()))
		return weather.Coordinates{}, fmt.Errorf("%w: %q: %w", weather.ErrLocationNotFound, postalCode, ctx.Err())
	}

	if res.err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: %q: %w", weather.ErrLocationNotFound, postalCode, res.err)
	}

	g.logger.Debug("postal code resolved",
		zap.String("postal_code", postalCode),
		zap.Float64("lat", res.loc.Latitude),
		zap.Float64("lon", res.loc.Longitude))

	return weather.Coordinates{Lat: res.loc.Latitude, Lon: res.loc.Longitude}, nil
}
