package weather

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Service runs the night aggregation pipeline. It holds only collaborators and
// settings fixed at construction, so one Service may serve concurrent calls.
type Service struct {
	geocoder Geocoder
	stations StationResolver
	live     LiveFetcher
	archive  HistoricalFetcher

	window   NightWindow
	logger   *zap.Logger
	observer RunObserver
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithWindow sets the default night window.
func WithWindow(w NightWindow) Option {
	return func(s *Service) { s.window = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver reports every run to o.
func WithObserver(o RunObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock sets the clock used to date live-path results.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service.
func NewService(geocoder Geocoder, stations StationResolver, live LiveFetcher, archive HistoricalFetcher, opts ...Option) *Service {
	s := &Service{
		geocoder: geocoder,
		stations: stations,
		live:     live,
		archive:  archive,
		window:   DefaultNightWindow(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the default night window.
func (s *Service) Window() NightWindow {
	return s.window
}

// GetNightAggregate resolves the postal code, then runs the historical path
// when req.Date is set and the live path otherwise. Failures are returned as
// they occur; there is no fallback from one path to the other.
func (s *Service) GetNightAggregate(ctx context.Context, req NightRequest) (NightResult, error) {
	path := PathLive
	if !req.Date.IsZero() {
		path = PathHistorical
	}

	start := time.Now()
	res, err := s.run(ctx, req, path)
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.ObservePipeline(path, err, elapsed)
	}

	if err != nil {
		s.logger.Warn("night aggregate failed",
			zap.String("postal_code", req.PostalCode),
			zap.String("path", string(path)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return NightResult{}, err
	}

	s.logger.Info("night aggregate computed",
		zap.String("postal_code", req.PostalCode),
		zap.String("path", string(path)),
		zap.String("date", res.Date),
		zap.Int("observations", res.Observations),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

func (s *Service) run(ctx context.Context, req NightRequest, path Path) (NightResult, error) {
	window := s.window
	if req.Window != nil {
		window = *req.Window
	}

	coords, err := s.geocoder.Resolve(ctx, req.PostalCode)
	if err != nil {
		return NightResult{}, err
	}

	var (
		observations []Observation
		date         string
	)

	switch path {
	case PathHistorical:
		if s.archive == nil {
			return NightResult{}, errors.New("historical fetcher not configured")
		}
		date = req.Date.Format(DateLayout)
		observations, err = s.archive.FetchHistorical(ctx, coords, req.Date)
		if err != nil {
			return NightResult{}, err
		}
	default:
		if s.stations == nil || s.live == nil {
			return NightResult{}, errors.New("live fetchers not configured")
		}
		date = s.now().UTC().Format(DateLayout)
		stationsURL, err := s.stations.FindObservationStations(ctx, coords)
		if err != nil {
			return NightResult{}, err
		}
		observations, err = s.live.FetchLiveObservations(ctx, stationsURL)
		if err != nil {
			return NightResult{}, err
		}
	}

	s.logger.Debug("observations fetched",
		zap.String("path", string(path)),
		zap.Float64("lat", coords.Lat),
		zap.Float64("lon", coords.Lon),
		zap.Int("count", len(observations)))

	return NightResult{
		PostalCode:   req.PostalCode,
		Coordinates:  coords,
		Date:         date,
		Path:         path,
		Window:       window,
		Observations: len(observations),
		Aggregate:    Aggregate(observations, window),
	}, nil
}
