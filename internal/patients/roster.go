package patients

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// RosterConfig describes the dependencies for the roster.
type RosterConfig struct {
	Clock  func() time.Time
	Logger *zap.Logger
}

// Roster owns the authoritative in-memory patient list. Membership is set at
// load and patients are never removed; risk fields and notes are the only
// post-load mutations. The visible ordering is recomputed from the full list
// on every read so a stale partial sort is never observable.
type Roster struct {
	mu      sync.RWMutex
	clock   func() time.Time
	logger  *zap.Logger
	ordered []*Patient
	byID    map[int]*Patient
	applied map[int]int64
	search  string
	sortKey SortKey
	sortDir SortDirection
}

// NewRoster constructs an empty roster sorted by descending risk.
func NewRoster(cfg RosterConfig) *Roster {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Roster{
		clock:   clock,
		logger:  logger,
		byID:    make(map[int]*Patient),
		applied: make(map[int]int64),
		sortKey: SortByRisk,
		sortDir: SortDescending,
	}
}

// Load replaces the roster membership. Load order is the stable tiebreak for
// every subsequent sort.
func (r *Roster) Load(loaded []Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ordered = make([]*Patient, 0, len(loaded))
	r.byID = make(map[int]*Patient, len(loaded))
	r.applied = make(map[int]int64, len(loaded))
	for i := range loaded {
		patient := loaded[i]
		copied := patient
		r.ordered = append(r.ordered, &copied)
		r.byID[copied.ID] = &copied
	}
	r.logger.Info("roster loaded", zap.Int("patients", len(loaded)))
}

// SetSearch updates the free-text filter.
func (r *Roster) SetSearch(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.search = strings.TrimSpace(query)
}

// SetSort activates the given key. Selecting the active key again toggles
// the direction; a new key resets to descending.
func (r *Roster) SetSort(key SortKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == r.sortKey {
		if r.sortDir == SortAscending {
			r.sortDir = SortDescending
		} else {
			r.sortDir = SortAscending
		}
		return
	}
	r.sortKey = key
	r.sortDir = SortDescending
}

// SortState reports the active sort key and direction.
func (r *Roster) SortState() (SortKey, SortDirection) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortKey, r.sortDir
}

// Search reports the active search query.
func (r *Roster) Search() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.search
}

// UpsertRiskScore applies a reconciled risk score to one patient. The trend
// is derived from the previous stored score: up if the score increased,
// down otherwise. seq is the per-patient completion sequence the score was
// assigned; a score at or below the last applied sequence has already been
// superseded and is discarded, reported as applied=false. seq 0 is
// unsequenced (the session-start merge of persisted scores) and always
// applies.
func (r *Roster) UpsertRiskScore(patientID int, score float64, classification string, seq int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	patient, ok := r.byID[patientID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrPatientNotFound, patientID)
	}
	if seq > 0 {
		if seq <= r.applied[patientID] {
			return false, nil
		}
		r.applied[patientID] = seq
	}

	if score > patient.RiskScore {
		patient.RiskTrend = RiskTrendUp
	} else {
		patient.RiskTrend = RiskTrendDown
	}
	patient.RiskScore = score
	if classification != "" {
		patient.Classification = classification
	}
	return true, nil
}

// AddNote prepends a clinician note to the patient record.
func (r *Roster) AddNote(patientID int, text string) (Note, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Note{}, ErrEmptyNote
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	patient, ok := r.byID[patientID]
	if !ok {
		return Note{}, fmt.Errorf("%w: %d", ErrPatientNotFound, patientID)
	}

	note := Note{Text: trimmed, CreatedAtSeconds: r.clock().UTC().Unix()}
	patient.Notes = append([]Note{note}, patient.Notes...)
	return note, nil
}

// Get returns a copy of one patient.
func (r *Roster) Get(patientID int) (Patient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	patient, ok := r.byID[patientID]
	if !ok {
		return Patient{}, false
	}
	return *patient, true
}

// All returns copies of every patient in load order.
func (r *Roster) All() []Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Patient, 0, len(r.ordered))
	for _, patient := range r.ordered {
		all = append(all, *patient)
	}
	return all
}

// Visible computes the displayed roster: filter by the search query, then
// stable-sort by the active key. Ties keep load order so rows with equal
// keys never visibly reorder between reads.
func (r *Roster) Visible() []Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := make([]Patient, 0, len(r.ordered))
	for _, patient := range r.ordered {
		if matchesQuery(patient, r.search) {
			filtered = append(filtered, *patient)
		}
	}

	less := comparatorFor(r.sortKey)
	descending := r.sortDir == SortDescending
	sort.SliceStable(filtered, func(i, j int) bool {
		if descending {
			return less(filtered[j], filtered[i])
		}
		return less(filtered[i], filtered[j])
	})
	return filtered
}

func matchesQuery(patient *Patient, query string) bool {
	if query == "" {
		return true
	}
	lowered := strings.ToLower(query)
	if strings.Contains(strings.ToLower(patient.Name), lowered) {
		return true
	}
	if strings.Contains(strconv.Itoa(patient.ID), query) {
		return true
	}
	return strings.Contains(strings.ToLower(patient.RoomNumber), lowered)
}

func comparatorFor(key SortKey) func(a, b Patient) bool {
	switch key {
	case SortByName:
		return func(a, b Patient) bool { return a.Name < b.Name }
	case SortByRoom:
		return func(a, b Patient) bool { return a.RoomNumber < b.RoomNumber }
	case SortByTime:
		return func(a, b Patient) bool { return a.AdmittedAtSeconds < b.AdmittedAtSeconds }
	default:
		return func(a, b Patient) bool { return a.RiskScore < b.RiskScore }
	}
}
