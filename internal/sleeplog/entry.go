package sleeplog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEntry is returned when a journal entry fails validation.
var ErrInvalidEntry = errors.New("invalid journal entry")

var validate = validator.New()

// Entry is the self-reported part of a night's record.
type Entry struct {
	StressLevel         int    `json:"stress_level" validate:"min=1,max=5"`
	CaffeineCups        int    `json:"caffeine_cups" validate:"min=0,max=10"`
	AlcoholBeforeBed    string `json:"alcohol_before_bed" validate:"oneof=yes no"`
	ScreenTimeBeforeBed string `json:"screen_time_before_bed" validate:"oneof=yes no"`
	PhysicalActivity    string `json:"physical_activity" validate:"oneof=yes no"`
	MedicationUsage     string `json:"medication_usage" validate:"oneof=yes no"`
	DinnerTime          string `json:"dinner_time" validate:"omitempty,datetime=15:04"`
	SatietyLevel        string `json:"satiety_level" validate:"oneof=mild moderate full"`
	SleepQuality        int    `json:"sleep_quality" validate:"min=1,max=5"`
}

// Normalize trims free-text answers and lower-cases the enumerated ones.
func (e *Entry) Normalize() {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	e.AlcoholBeforeBed = lower(e.AlcoholBeforeBed)
	e.ScreenTimeBeforeBed = lower(e.ScreenTimeBeforeBed)
	e.PhysicalActivity = lower(e.PhysicalActivity)
	e.MedicationUsage = lower(e.MedicationUsage)
	e.SatietyLevel = lower(e.SatietyLevel)
	e.DinnerTime = strings.TrimSpace(e.DinnerTime)
}

// Validate checks the entry against its field constraints.
func (e Entry) Validate() error {
	return invalidEntry(validate.Struct(e))
}

// ValidateField checks one field, named as in the struct, e.g. "SleepQuality".
func (e Entry) ValidateField(field string) error {
	return invalidEntry(validate.StructPartial(e, field))
}

func invalidEntry(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
}
