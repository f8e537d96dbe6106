package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ZippopotamGeocoder resolves US ZIP codes through a Zippopotam-style service.
type ZippopotamGeocoder struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewZippopotamGeocoder(opts Options) *ZippopotamGeocoder {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://api.zippopotam.us"
	}
	const name = "zippopotam"
	logger := opts.logger(name)
	return &ZippopotamGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: opts.httpConfig(),
		circuit: newBreaker(name, opts, logger),
		logger:  logger,
	}
}

// Resolve looks the postal code up as-is and returns the first place's position.
// Any failure, whatever the reason, is reported as weather.ErrLocationNotFound.
func (g *ZippopotamGeocoder) Resolve(ctx context.Context, postalCode string) (weather.Coordinates, error) {
	u := fmt.Sprintf("%s/us/%s", g.baseURL, url.PathEscape(postalCode))

	var payload struct {
		Places []struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"places"`
	}

	if err := getJSON(ctx, g.httpCfg, g.circuit, u, &payload); err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: %q: %w", weather.ErrLocationNotFound, postalCode, err)
	}
	if len(payload.Places) == 0 {
		return weather.Coordinates{}, fmt.Errorf("%w: %q: no places returned", weather.ErrLocationNotFound, postalCode)
	}

	place := payload.Places[0]
	lat, err := strconv.ParseFloat(strings.TrimSpace(place.Latitude), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: %q: latitude: %w", weather.ErrLocationNotFound, postalCode, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(place.Longitude), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: %q: longitude: %w", weather.ErrLocationNotFound, postalCode, err)
	}

	g.logger.Debug("postal code resolved",
		zap.String("postal_code", postalCode),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon))

	return weather.Coordinates{Lat: lat, Lon: lon}, nil
}
