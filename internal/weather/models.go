package weather

import (
	"time"
)

// DateLayout is the calendar-date format used for requests and stored records.
const DateLayout = "2006-01-02"

// Path identifies which upstream route produced the observations.
type Path string

const (
	PathLive       Path = "live"
	PathHistorical Path = "historical"
)

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Observation is a single timestamped reading normalized from either upstream.
// A nil metric means the source did not report a value for it.
type Observation struct {
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature *float64  `json:"temperatureC,omitempty"`
	Humidity    *float64  `json:"humidityPercent,omitempty"`
	Pressure    *float64  `json:"pressurePa,omitempty"`
	WindSpeed   *float64  `json:"windSpeedMps,omitempty"`
}

// NightWindow selects the local hours treated as night. The window wraps past
// midnight: an hour h is inside iff h >= StartHour or h <= EndHour.
//
// Local time is derived by shifting the UTC instant by a fixed offset. This is
// not a time zone database conversion and ignores daylight saving.
type NightWindow struct {
	StartHour      int     `json:"startHour"`
	EndHour        int     `json:"endHour"`
	UTCOffsetHours float64 `json:"utcOffsetHours"`
}

// DefaultNightWindow returns the 21:00-06:00 window at UTC-4.
func DefaultNightWindow() NightWindow {
	return NightWindow{StartHour: 21, EndHour: 6, UTCOffsetHours: -4}
}

// LocalTime shifts a UTC instant by the window's fixed offset.
func (w NightWindow) LocalTime(t time.Time) time.Time {
	return t.UTC().Add(time.Duration(w.UTCOffsetHours * float64(time.Hour)))
}

// Contains reports whether the instant falls inside the window.
func (w NightWindow) Contains(t time.Time) bool {
	h := w.LocalTime(t).Hour()
	return h >= w.StartHour || h <= w.EndHour
}

// AggregateRecord holds the nightly averages. A nil field means no kept
// observation reported that metric.
type AggregateRecord struct {
	AvgTempC           *float64 `json:"avg_temp_C"`
	AvgHumidityPercent *float64 `json:"avg_humidity_percent"`
	AvgPressurePa      *float64 `json:"avg_pressure_Pa"`
	AvgWindMps         *float64 `json:"avg_wind_mps"`
}

// Empty reports whether every average is absent.
func (a AggregateRecord) Empty() bool {
	return a.AvgTempC == nil && a.AvgHumidityPercent == nil && a.AvgPressurePa == nil && a.AvgWindMps == nil
}

// NightRequest asks for one night's aggregate. A zero Date selects the live
// path; any other value selects the historical archive for that calendar day.
type NightRequest struct {
	PostalCode string
	Date       time.Time

	// Window overrides the service default when set.
	Window *NightWindow
}

// NightResult is everything the caller needs to build a journal record.
type NightResult struct {
	PostalCode   string          `json:"postalCode"`
	Coordinates  Coordinates     `json:"coordinates"`
	Date         string          `json:"date"`
	Path         Path            `json:"path"`
	Window       NightWindow     `json:"window"`
	Observations int             `json:"observations"`
	Aggregate    AggregateRecord `json:"aggregate"`
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
