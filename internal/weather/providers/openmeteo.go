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

const archiveTimeLayout = "2006-01-02T15:04"

// OpenMeteoArchive implements the historical path against the Open-Meteo
// archive API. Times are requested in GMT so every entry is a UTC instant, wind
// in m/s, and pressure is converted from hPa to Pa.
type OpenMeteoArchive struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenMeteoArchive(opts Options) *OpenMeteoArchive {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://archive-api.open-meteo.com"
	}
	const name = "openmeteo-archive"
	logger := opts.logger(name)
	return &OpenMeteoArchive{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: opts.httpConfig(),
		circuit: newBreaker(name, opts, logger),
		logger:  logger,
	}
}

type archiveResponse struct {
	Hourly struct {
		Time               []string   `json:"time"`
		Temperature2M      []*float64 `json:"temperature_2m"`
		RelativeHumidity2M []*float64 `json:"relative_humidity_2m"`
		PressureMSL        []*float64 `json:"pressure_msl"`
		WindSpeed10M       []*float64 `json:"windspeed_10m"`
	} `json:"hourly"`
}

// FetchHistorical requests the hourly series for one calendar day and zips the
// parallel arrays into observations. Arrays of unequal length yield
// weather.ErrMalformedArchiveResponse and no observations.
func (p *OpenMeteoArchive) FetchHistorical(ctx context.Context, coords weather.Coordinates, date time.Time) ([]weather.Observation, error) {
	day := date.Format(weather.DateLayout)

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", coords.Lat))
	values.Set("longitude", fmt.Sprintf("%f", coords.Lon))
	values.Set("start_date", day)
	values.Set("end_date", day)
	values.Set("hourly", "temperature_2m,relative_humidity_2m,pressure_msl,windspeed_10m")
	values.Set("timezone", "GMT")
	values.Set("wind_speed_unit", "ms")
	u := fmt.Sprintf("%s/v1/archive?%s", p.baseURL, values.Encode())

	var payload archiveResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", weather.ErrArchiveFetchFailed, day, err)
	}

	obs, err := payload.observations()
	if err != nil {
		return nil, err
	}

	p.logger.Debug("archive observations fetched",
		zap.String("date", day),
		zap.Int("count", len(obs)))
	return obs, nil
}

func (r archiveResponse) observations() ([]weather.Observation, error) {
	h := r.Hourly
	n := len(h.Time)
	if len(h.Temperature2M) != n || len(h.RelativeHumidity2M) != n || len(h.PressureMSL) != n || len(h.WindSpeed10M) != n {
		return nil, fmt.Errorf("%w: array lengths time=%d temperature_2m=%d relative_humidity_2m=%d pressure_msl=%d windspeed_10m=%d",
			weather.ErrMalformedArchiveResponse, n, len(h.Temperature2M), len(h.RelativeHumidity2M), len(h.PressureMSL), len(h.WindSpeed10M))
	}

	out := make([]weather.Observation, 0, n)
	for i := 0; i < n; i++ {
		ts, err := time.ParseInLocation(archiveTimeLayout, h.Time[i], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: time[%d] %q: %v", weather.ErrMalformedArchiveResponse, i, h.Time[i], err)
		}
		out = append(out, weather.Observation{
			Timestamp:   ts,
			Temperature: copyValue(h.Temperature2M[i]),
			Humidity:    copyValue(h.RelativeHumidity2M[i]),
			Pressure:    hpaToPa(h.PressureMSL[i]),
			WindSpeed:   copyValue(h.WindSpeed10M[i]),
		})
	}
	return out, nil
}

func copyValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func hpaToPa(v *float64) *float64 {
	if v == nil {
		return nil
	}
	pa := *v * 100
	return &pa
}
