package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NWSProvider implements the live path against api.weather.gov: the points
// endpoint yields a station-list link, and the first listed station's
// observation feed yields the readings.
type NWSProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewNWSProvider(opts Options) *NWSProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.weather.gov"
	}
	const name = "nws"
	logger := opts.logger(name)
	return &NWSProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: opts.httpConfig(),
		circuit: newBreaker(name, opts, logger),
		logger:  logger,
	}
}

// FindObservationStations returns the observationStations link for a point.
func (p *NWSProvider) FindObservationStations(ctx context.Context, coords weather.Coordinates) (weather.StationsURL, error) {
	u := fmt.Sprintf("%s/points/%.4f,%.4f", p.baseURL, coords.Lat, coords.Lon)

	var payload struct {
		Properties struct {
			ObservationStations string `json:"observationStations"`
		} `json:"properties"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return "", fmt.Errorf("%w: points: %w", weather.ErrStationLookupFailed, err)
	}
	if payload.Properties.ObservationStations == "" {
		return "", fmt.Errorf("%w: points response has no observationStations link", weather.ErrStationLookupFailed)
	}
	return weather.StationsURL(payload.Properties.ObservationStations), nil
}

// FetchLiveObservations dereferences the station list, takes the first station
// in upstream order, and parses its observation feed.
func (p *NWSProvider) FetchLiveObservations(ctx context.Context, stations weather.StationsURL) ([]weather.Observation, error) {
	var list struct {
		Features []struct {
			Properties struct {
				StationIdentifier string `json:"stationIdentifier"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, string(stations), &list); err != nil {
		return nil, fmt.Errorf("%w: stations: %w", weather.ErrStationLookupFailed, err)
	}
	if len(list.Features) == 0 {
		return nil, weather.ErrNoStationsNearby
	}

	stationID := list.Features[0].Properties.StationIdentifier
	if stationID == "" {
		return nil, fmt.Errorf("%w: first station has no identifier", weather.ErrStationLookupFailed)
	}

	u := fmt.Sprintf("%s/stations/%s/observations", p.baseURL, url.PathEscape(stationID))
	var feed struct {
		Features []struct {
			Properties observationProperties `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &feed); err != nil {
		return nil, fmt.Errorf("%w: station %s: %w", weather.ErrObservationFetchFailed, stationID, err)
	}

	out := make([]weather.Observation, 0, len(feed.Features))
	for _, f := range feed.Features {
		obs, err := f.Properties.toObservation()
		if err != nil {
			return nil, fmt.Errorf("%w: station %s: %w", weather.ErrObservationFetchFailed, stationID, err)
		}
		out = append(out, obs)
	}

	p.logger.Debug("live observations fetched",
		zap.String("station", stationID),
		zap.Int("count", len(out)))

	return out, nil
}

// quantity is the NWS value wrapper. Either the wrapper or its value may be null.
type quantity struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

type observationProperties struct {
	Timestamp          string    `json:"timestamp"`
	Temperature        *quantity `json:"temperature"`
	RelativeHumidity   *quantity `json:"relativeHumidity"`
	BarometricPressure *quantity `json:"barometricPressure"`
	WindSpeed          *quantity `json:"windSpeed"`
}

func (p observationProperties) toObservation() (weather.Observation, error) {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return weather.Observation{}, fmt.Errorf("timestamp %q: %w", p.Timestamp, err)
	}
	return weather.Observation{
		Timestamp:   ts.UTC(),
		Temperature: valueOf(p.Temperature),
		Humidity:    valueOf(p.RelativeHumidity),
		Pressure:    valueOf(p.BarometricPressure),
		WindSpeed:   valueOf(p.WindSpeed),
	}, nil
}

// valueOf returns the wrapped value only when both the wrapper and its value are
// present, converted to the unit Observation uses for that quantity.
func valueOf(q *quantity) *float64 {
	if q == nil || q.Value == nil {
		return nil
	}
	v := *q.Value
	switch q.UnitCode {
	case "wmoUnit:km_h-1":
		v = v / 3.6
	case "wmoUnit:degF":
		v = (v - 32) * 5 / 9
	case "wmoUnit:hPa":
		v = v * 100
	}
	return &v
}
