package patients

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RiskTrend records whether the last risk update moved the score up or down.
type RiskTrend string

const (
	RiskTrendUp   RiskTrend = "up"
	RiskTrendDown RiskTrend = "down"
)

// SortKey selects the comparator used to order the visible roster.
type SortKey string

const (
	SortByRisk SortKey = "risk"
	SortByName SortKey = "name"
	SortByRoom SortKey = "room"
	SortByTime SortKey = "time"
)

// SortDirection orders the visible roster ascending or descending.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

var (
	// ErrInvalidBloodPressure indicates a reading that is neither
	// "systolic/diastolic" nor a bare systolic value.
	ErrInvalidBloodPressure = errors.New("patients: invalid blood pressure")
	// ErrInvalidSortKey indicates an unsupported roster sort key.
	ErrInvalidSortKey = errors.New("patients: invalid sort key")
	// ErrPatientNotFound indicates a patient id absent from the roster.
	ErrPatientNotFound = errors.New("patients: patient not found")
	// ErrEmptyNote indicates a clinician note with no content.
	ErrEmptyNote = errors.New("patients: empty note")
)

// BloodPressure is the canonical reading: systolic in mmHg plus an optional
// diastolic. Source feeds sometimes emit a bare systolic number; that case is
// stored with Diastolic zero, meaning unknown, not a different unit.
type BloodPressure struct {
	Systolic  int
	Diastolic int
}

// ParseBloodPressure normalizes "125/85" or a bare "90" into the canonical
// representation at ingestion time.
func ParseBloodPressure(raw string) (BloodPressure, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BloodPressure{}, fmt.Errorf("%w: empty", ErrInvalidBloodPressure)
	}

	systolicPart, diastolicPart, hasDiastolic := strings.Cut(trimmed, "/")
	systolic, err := strconv.Atoi(strings.TrimSpace(systolicPart))
	if err != nil || systolic <= 0 {
		return BloodPressure{}, fmt.Errorf("%w: %q", ErrInvalidBloodPressure, raw)
	}

	reading := BloodPressure{Systolic: systolic}
	if hasDiastolic {
		diastolic, err := strconv.Atoi(strings.TrimSpace(diastolicPart))
		if err != nil || diastolic <= 0 {
			return BloodPressure{}, fmt.Errorf("%w: %q", ErrInvalidBloodPressure, raw)
		}
		reading.Diastolic = diastolic
	}
	return reading, nil
}

// HasDiastolic reports whether the diastolic component is known.
func (bp BloodPressure) HasDiastolic() bool {
	return bp.Diastolic > 0
}

// String renders the reading for display and for the prediction request body.
func (bp BloodPressure) String() string {
	if bp.HasDiastolic() {
		return fmt.Sprintf("%d/%d", bp.Systolic, bp.Diastolic)
	}
	return strconv.Itoa(bp.Systolic)
}

// Vitals is an immutable per-observation snapshot.
type Vitals struct {
	HeartRate        float64
	BloodPressure    BloodPressure
	OxygenSaturation float64
	TemperatureC     float64
}

// Note is a clinician note. Notes are appended newest-first and never edited
// or deleted.
type Note struct {
	Text             string
	CreatedAtSeconds int64
}

// Patient is one roster entry. RiskScore, RiskTrend and Classification are
// the only fields mutated after load; notes are append-only.
type Patient struct {
	ID                int
	Name              string
	RoomNumber        string
	AdmittedAtSeconds int64
	LengthOfStayDays  int
	Vitals            Vitals
	RiskScore         float64
	RiskTrend         RiskTrend
	Classification    string
	Notes             []Note
}

// ParseSortKey validates a raw sort key supplied by the presentation layer.
func ParseSortKey(raw string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SortByRisk):
		return SortByRisk, nil
	case string(SortByName):
		return SortByName, nil
	case string(SortByRoom):
		return SortByRoom, nil
	case string(SortByTime):
		return SortByTime, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, raw)
	}
}
