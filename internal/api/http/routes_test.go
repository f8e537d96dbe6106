package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/sleep-weather-logger/internal/metrics"
	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
	"github.com/i474232898/sleep-weather-logger/internal/store"
	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

type fakeNight struct {
	res  weather.NightResult
	err  error
	last weather.NightRequest
}

func (n *fakeNight) GetNightAggregate(ctx context.Context, req weather.NightRequest) (weather.NightResult, error) {
	n.last = req
	if n.err != nil {
		return weather.NightResult{}, n.err
	}
	res := n.res
	res.PostalCode = req.PostalCode
	if !req.Date.IsZero() {
		res.Path = weather.PathHistorical
		res.Date = req.Date.Format(weather.DateLayout)
	}
	return res, nil
}

func newTestApp(t *testing.T, night *fakeNight) (*fiber.App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(0)
	m := metrics.New(prometheus.NewRegistry())
	journal := sleeplog.NewJournal(night, mem, sleeplog.WithAppendObserver(m))

	app := NewApp(nil)
	RegisterRoutes(app, Deps{Journal: journal, Records: mem, Metrics: m.Handler()})
	return app, mem
}

func okNight() *fakeNight {
	temp := 13.0
	return &fakeNight{res: weather.NightResult{
		Coordinates: weather.Coordinates{Lat: 40.75, Lon: -73.99},
		Date:        "2024-05-02",
		Path:        weather.PathLive,
		Window:      weather.DefaultNightWindow(),
		Aggregate:   weather.AggregateRecord{AvgTempC: &temp},
	}}
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("invalid JSON %q: %v", body, err)
		}
	}
	return resp.StatusCode, out
}

const validEntryJSON = `{"stress_level":3,"caffeine_cups":1,"alcohol_before_bed":"no",
"screen_time_before_bed":"yes","physical_activity":"yes","medication_usage":"no",
"dinner_time":"19:30","satiety_level":"moderate","sleep_quality":4}`

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, okNight())
	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", status, body)
	}
}

// TestNightQueryValidation verifies that the night endpoint enforces its
// query parameters.
func TestNightQueryValidation(t *testing.T) {
	app, _ := newTestApp(t, okNight())

	for _, target := range []string{
		"/api/v1/night",
		"/api/v1/night?zip=10001&date=05/01/2024",
		"/api/v1/night?zip=10001&date=2024-13-01",
	} {
		status, _ := do(t, app, httptest.NewRequest(http.MethodGet, target, nil))
		if status != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, status)
		}
	}
}

func TestNightLiveAndHistorical(t *testing.T) {
	night := okNight()
	app, _ := newTestApp(t, night)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/night?zip=10001", nil))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !night.last.Date.IsZero() || body["path"] != "live" {
		t.Fatalf("expected live path, got %v", body)
	}

	status, body = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/night?zip=10001&date=2024-05-01", nil))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["path"] != "historical" || body["date"] != "2024-05-01" {
		t.Fatalf("expected historical result, got %v", body)
	}
	agg, _ := body["aggregate"].(map[string]any)
	if agg["avg_temp_C"] != 13.0 || agg["avg_humidity_percent"] != nil {
		t.Fatalf("unexpected aggregate: %v", agg)
	}
}

func TestNightErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 404", weather.ErrLocationNotFound), http.StatusNotFound},
		{weather.ErrNoStationsNearby, http.StatusNotFound},
		{fmt.Errorf("%w: 503", weather.ErrStationLookupFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: 500", weather.ErrObservationFetchFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: x", weather.ErrArchiveFetchFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: lengths", weather.ErrMalformedArchiveResponse), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app, _ := newTestApp(t, &fakeNight{err: tt.err})
			status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/night?zip=10001", nil))
			if status != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, status)
			}
			if body["error"] != true {
				t.Fatalf("expected error envelope, got %v", body)
			}
		})
	}
}

func TestCreateAndListRecords(t *testing.T) {
	app, mem := newTestApp(t, okNight())

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for empty log, got %d", status)
	}

	payload := `{"zip":"10001","date":"2024-05-01","entry":` + validEntryJSON + `}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	status, body := do(t, app, req)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	if body["source"] != "historical" || body["date"] != "2024-05-01" || body["id"] == "" {
		t.Fatalf("unexpected record: %v", body)
	}

	recs, err := mem.List(context.Background())
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one stored record, got %d (%v)", len(recs), err)
	}

	status, body = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))
	if status != http.StatusOK || body["count"] != 1.0 {
		t.Fatalf("unexpected list response %d %v", status, body)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `sleepweather_records_appended_total{source="historical"} 1`) {
		t.Fatalf("expected appended counter in metrics output")
	}
}

func TestCreateRecordRejectsInvalidEntry(t *testing.T) {
	night := okNight()
	app, mem := newTestApp(t, night)

	entry := strings.Replace(validEntryJSON, `"sleep_quality":4`, `"sleep_quality":7`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(`{"zip":"10001","entry":`+entry+`}`))
	req.Header.Set("Content-Type", "application/json")

	status, _ := do(t, app, req)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if _, err := mem.List(context.Background()); err == nil {
		t.Fatalf("nothing should be stored")
	}
}

func TestCreateRecordRejectsMissingZip(t *testing.T) {
	app, _ := newTestApp(t, okNight())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(`{"entry":`+validEntryJSON+`}`))
	req.Header.Set("Content-Type", "application/json")
	status, _ := do(t, app, req)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestCreateRecordEmptyNight(t *testing.T) {
	app, _ := newTestApp(t, &fakeNight{res: weather.NightResult{Date: "2024-05-02"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(`{"zip":"10001","entry":`+validEntryJSON+`}`))
	req.Header.Set("Content-Type", "application/json")
	status, _ := do(t, app, req)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
}
