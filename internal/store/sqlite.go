package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/insert-record.sql
var insertRecordSQL string

//go:embed sql/list-records.sql
var listRecordsSQL string

// SQLiteStore keeps records in a SQLite table with nullable metric columns.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" {
		path = "sleep_data.db"
	}
	if path == ":memory:" {
		return path, nil
	}

	dir := filepath.Dir(path)
	if dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec sleeplog.Record) error {
	var hasEntry bool
	var stress, caffeine, quality sql.NullInt64
	var alcohol, screen, activity, medication, dinner, satietyLevel sql.NullString
	if e := rec.Entry; e != nil {
		hasEntry = true
		stress = sql.NullInt64{Int64: int64(e.StressLevel), Valid: true}
		caffeine = sql.NullInt64{Int64: int64(e.CaffeineCups), Valid: true}
		quality = sql.NullInt64{Int64: int64(e.SleepQuality), Valid: true}
		alcohol = sql.NullString{String: e.AlcoholBeforeBed, Valid: true}
		screen = sql.NullString{String: e.ScreenTimeBeforeBed, Valid: true}
		activity = sql.NullString{String: e.PhysicalActivity, Valid: true}
		medication = sql.NullString{String: e.MedicationUsage, Valid: true}
		dinner = sql.NullString{String: e.DinnerTime, Valid: true}
		satietyLevel = sql.NullString{String: e.SatietyLevel, Valid: true}
	}

	w := rec.Weather
	_, err := s.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.Date, rec.Lat, rec.Lon, hasEntry,
		stress, caffeine, alcohol, screen,
		activity, medication, dinner, satietyLevel, quality,
		w.AvgTempC, w.AvgHumidityPercent, w.AvgPressurePa, w.AvgWindMps,
		string(rec.Source), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]sleeplog.Record, error) {
	rows, err := s.db.QueryContext(ctx, listRecordsSQL)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close records rows", zap.Error(err))
		}
	}()

	var out []sleeplog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (sleeplog.Record, error) {
	var rec sleeplog.Record
	var hasEntry bool
	var stress, caffeine, quality sql.NullInt64
	var alcohol, screen, activity, medication, dinner, satietyLevel sql.NullString
	var temp, humidity, pressure, wind sql.NullFloat64
	var source, createdAt string
	if err := rows.Scan(
		&rec.ID, &rec.Date, &rec.Lat, &rec.Lon, &hasEntry,
		&stress, &caffeine, &alcohol, &screen,
		&activity, &medication, &dinner, &satietyLevel, &quality,
		&temp, &humidity, &pressure, &wind,
		&source, &createdAt,
	); err != nil {
		return sleeplog.Record{}, err
	}

	if hasEntry {
		rec.Entry = &sleeplog.Entry{
			StressLevel:         int(stress.Int64),
			CaffeineCups:        int(caffeine.Int64),
			AlcoholBeforeBed:    alcohol.String,
			ScreenTimeBeforeBed: screen.String,
			PhysicalActivity:    activity.String,
			MedicationUsage:     medication.String,
			DinnerTime:          dinner.String,
			SatietyLevel:        satietyLevel.String,
			SleepQuality:        int(quality.Int64),
		}
	}
	rec.Weather.AvgTempC = nullable(temp)
	rec.Weather.AvgHumidityPercent = nullable(humidity)
	rec.Weather.AvgPressurePa = nullable(pressure)
	rec.Weather.AvgWindMps = nullable(wind)
	rec.Source = sleeplog.Source(source)

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return sleeplog.Record{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
