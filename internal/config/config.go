package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/sleep-weather-logger/internal/store"
	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration
	UserAgent   string

	// Upstream base URLs; empty means the provider default.
	ZippopotamURL string
	NWSURL        string
	ArchiveURL    string

	// Geocoder is "zippopotam" or "google".
	Geocoder              string
	GoogleGeocodingAPIKey string

	// Night window. The UTC offset is fixed and is not derived from the
	// resolved location.
	Window weather.NightWindow

	Store store.Config

	// Nightly capture; an empty CaptureZip disables it.
	CaptureZip      string
	CaptureSchedule string

	// MQTT publication; an empty MQTTBroker disables it.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	// BreakerFailures consecutive upstream failures open a provider's
	// breaker for BreakerTimeout. Zero disables tripping.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	LogLevel string
	AppEnv   string

	// EnvFileLoaded reports whether a .env file was read.
	EnvFileLoaded bool
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*AppConfig, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromEnv reads configuration from the environment with sensible defaults.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	cfg.UserAgent = os.Getenv("USER_AGENT")

	cfg.ZippopotamURL = os.Getenv("ZIPPOPOTAM_URL")
	cfg.NWSURL = os.Getenv("NWS_URL")
	cfg.ArchiveURL = os.Getenv("ARCHIVE_URL")

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", "zippopotam"))
	cfg.GoogleGeocodingAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")
	switch cfg.Geocoder {
	case "zippopotam":
	case "google":
		if cfg.GoogleGeocodingAPIKey == "" {
			return nil, fmt.Errorf("invalid GEOCODER: google requires GOOGLE_GEOCODING_API_KEY")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER: %q", cfg.Geocoder)
	}

	// Night window: default 21:00-06:00 at UTC-4.
	def := weather.DefaultNightWindow()
	if cfg.Window.StartHour, err = getenvHour("NIGHT_START_HOUR", def.StartHour); err != nil {
		return nil, err
	}
	if cfg.Window.EndHour, err = getenvHour("NIGHT_END_HOUR", def.EndHour); err != nil {
		return nil, err
	}
	if cfg.Window.UTCOffsetHours, err = getenvFloat("NIGHT_UTC_OFFSET", def.UTCOffsetHours); err != nil {
		return nil, err
	}
	if cfg.Window.UTCOffsetHours < -12 || cfg.Window.UTCOffsetHours > 14 {
		return nil, fmt.Errorf("invalid NIGHT_UTC_OFFSET: %v is outside -12..14", cfg.Window.UTCOffsetHours)
	}

	cfg.Store = store.Config{
		Backend:    store.Backend(strings.ToLower(getenvDefault("STORE_BACKEND", "csv"))),
		CSVPath:    getenvDefault("CSV_PATH", "sleep_data.csv"),
		SQLitePath: getenvDefault("SQLITE_PATH", "sleep_data.db"),
		MaxHistory: getenvInt("STORE_MAX_HISTORY", 0),
	}
	switch cfg.Store.Backend {
	case store.BackendCSV, store.BackendSQLite, store.BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.Store.Backend)
	}

	cfg.CaptureZip = strings.TrimSpace(os.Getenv("CAPTURE_ZIP"))
	cfg.CaptureSchedule = getenvDefault("CAPTURE_SCHEDULE", "0 7 * * *")
	if _, err := cron.ParseStandard(cfg.CaptureSchedule); err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_SCHEDULE: %w", err)
	}

	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTTopic = getenvDefault("MQTT_TOPIC", "sleep-weather/records")
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "sleep-weather-logger")

	if cfg.BreakerTimeout, err = getenvDuration("BREAKER_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	failures := getenvInt("BREAKER_FAILURES", 0)
	if failures < 0 {
		return nil, fmt.Errorf("invalid BREAKER_FAILURES: %d is negative", failures)
	}
	cfg.BreakerFailures = uint32(failures)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.AppEnv = getenvDefault("APP_ENV", "dev")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvHour(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	h, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid %s: %d is outside 0..23", key, h)
	}
	return h, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
