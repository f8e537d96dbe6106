package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultUserAgent identifies this client to upstream services. api.weather.gov
// rejects requests without one.
const DefaultUserAgent = "sleep-weather-logger (github.com/i474232898/sleep-weather-logger)"

// Options holds what every provider needs to talk to its upstream.
type Options struct {
	Client         *http.Client
	BaseURL        string
	UserAgent      string
	BreakerTimeout time.Duration
	Logger         *zap.Logger

	// BreakerFailures is the number of consecutive failures that opens a
	// provider's breaker. Zero leaves the breaker closed, so every call
	// reaches the upstream.
	BreakerFailures uint32

	// BreakerObserver, when set, is told about every breaker state change.
	BreakerObserver BreakerObserver
}

// BreakerObserver receives circuit breaker transitions.
type BreakerObserver interface {
	BreakerStateChanged(upstream string, to gobreaker.State)
}

// HTTPClientConfig bundles HTTP client settings shared by a provider's calls.
type HTTPClientConfig struct {
	Client    *http.Client
	UserAgent string
}

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

func (o Options) httpConfig() HTTPClientConfig {
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return HTTPClientConfig{Client: o.Client, UserAgent: ua}
}

// logger returns the provider's logger tagged with its name.
func (o Options) logger(provider string) *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.With(zap.String("provider", provider))
}

func newBreaker(name string, opts Options, logger *zap.Logger) *gobreaker.CircuitBreaker {
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	threshold := opts.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if opts.BreakerObserver != nil {
				opts.BreakerObserver.BreakerStateChanged(name, to)
			}
		},
	})
}

// doRequest executes exactly one HTTP request through the circuit breaker.
// Only transport errors, 429 and 5xx count against the breaker; any other
// non-2xx status is returned as errUnexpected without tripping it.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}

	req, err := buildRequest()
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
	}
	return resp, nil
}

// getJSON issues a single GET and decodes the body into out.
func getJSON(ctx context.Context, cfg HTTPClientConfig, cb *gobreaker.CircuitBreaker, rawURL string, out any) error {
	resp, err := doRequest(ctx, cfg, cb, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
