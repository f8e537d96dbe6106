package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

// Journal is the part of sleeplog.Journal the prompts need.
type Journal interface {
	Night(ctx context.Context, req weather.NightRequest) (weather.NightResult, error)
	Save(ctx context.Context, res weather.NightResult, entry *sleeplog.Entry, source sleeplog.Source) (sleeplog.Record, error)
}

// Session runs the interactive log flow over a reader and writer.
type Session struct {
	journal Journal
	in      *bufio.Scanner
	out     io.Writer
}

func NewSession(journal Journal, in io.Reader, out io.Writer) *Session {
	return &Session{journal: journal, in: bufio.NewScanner(in), out: out}
}

// Log asks for a ZIP code and optional past date, shows the night summary,
// collects the journal entry and saves the merged record.
func (s *Session) Log(ctx context.Context) (sleeplog.Record, error) {
	zip, err := s.ask("Enter your ZIP code: ")
	if err != nil {
		return sleeplog.Record{}, err
	}
	dateInput, err := s.ask("Enter a past date for historical weather (YYYY-MM-DD) or leave blank for today: ")
	if err != nil {
		return sleeplog.Record{}, err
	}

	req, err := NightRequest(zip, dateInput)
	if err != nil {
		return sleeplog.Record{}, err
	}

	res, err := s.journal.Night(ctx, req)
	if err != nil {
		return sleeplog.Record{}, err
	}
	if res.Aggregate.Empty() {
		fmt.Fprintln(s.out, "No nighttime weather data available.")
		return sleeplog.Record{}, sleeplog.ErrNoNightData
	}

	fmt.Fprintln(s.out, "Nighttime weather summary:")
	PrintAggregate(s.out, res.Aggregate)

	entry, err := s.collectEntry()
	if err != nil {
		return sleeplog.Record{}, err
	}

	rec, err := s.journal.Save(ctx, res, &entry, sleeplog.SourceFor(res.Path))
	if err != nil {
		return sleeplog.Record{}, err
	}

	fmt.Fprintf(s.out, "Record %s saved.\n", rec.ID)
	if err := writeJSON(s.out, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Session) collectEntry() (sleeplog.Entry, error) {
	var e sleeplog.Entry
	questions := []struct {
		prompt string
		field  string
		set    func(string) error
	}{
		{"Stress/emotion level (1-5): ", "StressLevel", intInto(&e.StressLevel)},
		{"Caffeine intake (cups, 0-10): ", "CaffeineCups", intInto(&e.CaffeineCups)},
		{"Alcohol intake before bedtime (yes/no): ", "AlcoholBeforeBed", stringInto(&e.AlcoholBeforeBed)},
		{"Screen time before bedtime (yes/no): ", "ScreenTimeBeforeBed", stringInto(&e.ScreenTimeBeforeBed)},
		{"Physical activity today (yes/no): ", "PhysicalActivity", stringInto(&e.PhysicalActivity)},
		{"Medication usage (yes/no): ", "MedicationUsage", stringInto(&e.MedicationUsage)},
		{"Dinner time (HH:MM, 24-hour): ", "DinnerTime", stringInto(&e.DinnerTime)},
		{"Perceived satiety level (mild/moderate/full): ", "SatietyLevel", stringInto(&e.SatietyLevel)},
		{"Sleep quality (1-5): ", "SleepQuality", intInto(&e.SleepQuality)},
	}

	for _, q := range questions {
		if err := s.askField(&e, q.prompt, q.field, q.set); err != nil {
			return e, err
		}
	}
	return e, e.Validate()
}

// askField repeats the prompt until the answer passes the entry's rule for field.
func (s *Session) askField(e *sleeplog.Entry, prompt, field string, set func(string) error) error {
	for {
		answer, err := s.ask(prompt)
		if err != nil {
			return err
		}
		if err := set(answer); err != nil {
			fmt.Fprintln(s.out, "Please enter a whole number.")
			continue
		}
		e.Normalize()
		if err := e.ValidateField(field); err != nil {
			fmt.Fprintf(s.out, "Invalid answer (%v), please try again.\n", err)
			continue
		}
		return nil
	}
}

func intInto(dst *int) func(string) error {
	return func(answer string) error {
		n, err := strconv.Atoi(answer)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func stringInto(dst *string) func(string) error {
	return func(answer string) error {
		*dst = answer
		return nil
	}
}

func (s *Session) ask(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

// NightRequest builds a pipeline request from user input. A blank date selects
// the live path.
func NightRequest(zip, date string) (weather.NightRequest, error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return weather.NightRequest{}, errors.New("a ZIP code is required")
	}
	req := weather.NightRequest{PostalCode: zip}
	if date = strings.TrimSpace(date); date != "" {
		d, err := weather.ParseDate(date)
		if err != nil {
			return weather.NightRequest{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		req.Date = d
	}
	return req, nil
}

// Fetch prints one night's result without recording it.
func Fetch(ctx context.Context, journal Journal, out io.Writer, zip, date string) error {
	req, err := NightRequest(zip, date)
	if err != nil {
		return err
	}
	res, err := journal.Night(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

// PrintAggregate writes one line per average, "n/a" when absent.
func PrintAggregate(out io.Writer, a weather.AggregateRecord) {
	line := func(name string, v *float64) {
		if v == nil {
			fmt.Fprintf(out, "  %-22s n/a\n", name)
			return
		}
		fmt.Fprintf(out, "  %-22s %.2f\n", name, *v)
	}
	line("avg_temp_C", a.AvgTempC)
	line("avg_humidity_percent", a.AvgHumidityPercent)
	line("avg_pressure_Pa", a.AvgPressurePa)
	line("avg_wind_mps", a.AvgWindMps)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
