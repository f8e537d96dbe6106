package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/sleep-weather-logger/internal/api/http"
	"github.com/i474232898/sleep-weather-logger/internal/cli"
	"github.com/i474232898/sleep-weather-logger/internal/config"
	"github.com/i474232898/sleep-weather-logger/internal/logging"
	"github.com/i474232898/sleep-weather-logger/internal/metrics"
	"github.com/i474232898/sleep-weather-logger/internal/publish"
	"github.com/i474232898/sleep-weather-logger/internal/scheduler"
	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
	"github.com/i474232898/sleep-weather-logger/internal/store"
	"github.com/i474232898/sleep-weather-logger/internal/weather"
	"github.com/i474232898/sleep-weather-logger/internal/weather/providers"
)

const usage = `usage: sleep-weather-logger [command] [flags]

commands:
  log     prompt for a ZIP code, date and journal entry, then save the record (default)
  fetch   print one night's weather summary: fetch -zip 10001 [-date 2024-05-01]
  serve   run the HTTP API and the optional nightly capture
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "log"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if !cfg.EnvFileLoaded {
		log.Debug("no .env file found; using environment variables")
	}
	log.Info("night window uses a fixed UTC offset, not the location's time zone",
		zap.Int("start_hour", cfg.Window.StartHour),
		zap.Int("end_hour", cfg.Window.EndHour),
		zap.Float64("utc_offset_hours", cfg.Window.UTCOffsetHours))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	base := providers.Options{
		Client:          httpClient,
		UserAgent:       cfg.UserAgent,
		BreakerTimeout:  cfg.BreakerTimeout,
		BreakerFailures: cfg.BreakerFailures,
		Logger:          log,
		BreakerObserver: m,
	}
	with := func(baseURL string) providers.Options {
		o := base
		o.BaseURL = baseURL
		return o
	}

	var geocoder weather.Geocoder
	switch cfg.Geocoder {
	case "google":
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey, "", cfg.HTTPTimeout, log)
	default:
		geocoder = providers.NewZippopotamGeocoder(with(cfg.ZippopotamURL))
	}
	nws := providers.NewNWSProvider(with(cfg.NWSURL))
	archive := providers.NewOpenMeteoArchive(with(cfg.ArchiveURL))

	// Core service running the night pipeline.
	service := weather.NewService(geocoder, nws, nws, archive,
		weather.WithWindow(cfg.Window),
		weather.WithLogger(log),
		weather.WithObserver(m),
	)

	records, err := store.Open(cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer records.Close()

	var publisher sleeplog.Publisher = publish.NopPublisher{}
	if cfg.MQTTBroker != "" {
		p := publish.NewMQTTPublisher(publish.Config{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
		}, log)
		defer p.Close()

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := p.Connect(connectCtx); err != nil {
			log.Warn("mqtt connect failed; records will not be published until it reconnects", zap.Error(err))
		}
		cancel()
		publisher = p
	}

	journal := sleeplog.NewJournal(service, records,
		sleeplog.WithPublisher(publisher),
		sleeplog.WithAppendObserver(m),
		sleeplog.WithLogger(log),
	)

	switch command {
	case "log":
		_, err := cli.NewSession(journal, os.Stdin, os.Stdout).Log(ctx)
		if errors.Is(err, sleeplog.ErrNoNightData) {
			return nil
		}
		return err
	case "fetch":
		fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
		zip := fs.String("zip", "", "US ZIP code")
		date := fs.String("date", "", "past date (YYYY-MM-DD); blank for the live path")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return cli.Fetch(ctx, journal, os.Stdout, *zip, *date)
	case "serve":
		return serve(ctx, cfg, log, journal, records, m)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, journal *sleeplog.Journal, records store.Store, m *metrics.Metrics) error {
	// Scheduler that captures the configured postal code every night.
	sched := scheduler.New(cfg.CaptureZip, cfg.CaptureSchedule, journal, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(log)
	app.Use(logger.New())
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Journal: journal,
		Records: records,
		Metrics: m.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("port", cfg.Port))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}
