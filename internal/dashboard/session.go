package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wardview/backend/internal/alerts"
	"github.com/wardview/backend/internal/patients"
	"github.com/wardview/backend/internal/risk"
	"go.uber.org/zap"
)

// Mode is the coarse view state: browsing the roster or viewing one patient.
type Mode string

const (
	ModeBrowsing Mode = "browsing"
	ModeDetail   Mode = "detail"
)

var (
	errMissingRoster    = errors.New("dashboard: roster is required")
	errMissingRiskStore = errors.New("dashboard: risk store is required")
	errMissingAlerts    = errors.New("dashboard: alert engine is required")
)

// RiskUpdate is published to live subscribers whenever a prediction result
// lands, so each patient row refreshes independently of its siblings.
type RiskUpdate struct {
	PatientID int
	Score     float64
	Tier      risk.Tier
	Trend     patients.RiskTrend
	At        time.Time
}

// Publisher fans completed risk updates out to live listeners.
type Publisher interface {
	Publish(update RiskUpdate)
}

// RefreshOutcome reports one patient's result from a batch refresh.
type RefreshOutcome struct {
	PatientID int
	Score     float64
	Err       error
}

// SessionConfig describes the collaborators composed into one dashboard
// session.
type SessionConfig struct {
	Roster    *patients.Roster
	Risks     *risk.Store
	Alerts    *alerts.Engine
	Publisher Publisher
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Session routes user actions and asynchronous refresh results between the
// roster, the risk store, and the alert engine. View state (selection,
// alerts panel) lives here; the collaborators own their own data.
type Session struct {
	roster    *patients.Roster
	risks     *risk.Store
	alerts    *alerts.Engine
	publisher Publisher
	clock     func() time.Time
	logger    *zap.Logger

	mu         sync.Mutex
	mode       Mode
	selectedID int
	panelShown bool
}

// NewSession constructs a dashboard session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Roster == nil {
		return nil, errMissingRoster
	}
	if cfg.Risks == nil {
		return nil, errMissingRiskStore
	}
	if cfg.Alerts == nil {
		return nil, errMissingAlerts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		roster:    cfg.Roster,
		risks:     cfg.Risks,
		alerts:    cfg.Alerts,
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
		mode:      ModeBrowsing,
	}, nil
}

// Roster exposes the roster for read paths.
func (s *Session) Roster() *patients.Roster {
	return s.roster
}

// Alerts exposes the alert engine for read paths.
func (s *Session) Alerts() *alerts.Engine {
	return s.alerts
}

// SelectPatient moves the view into detail mode for one patient.
func (s *Session) SelectPatient(patientID int) (patients.Patient, error) {
	patient, ok := s.roster.Get(patientID)
	if !ok {
		return patients.Patient{}, patients.ErrPatientNotFound
	}
	s.mu.Lock()
	s.mode = ModeDetail
	s.selectedID = patientID
	s.mu.Unlock()
	return patient, nil
}

// Back returns the view to the roster.
func (s *Session) Back() {
	s.mu.Lock()
	s.mode = ModeBrowsing
	s.selectedID = 0
	s.mu.Unlock()
}

// Mode reports the current view mode and selected patient id.
func (s *Session) Mode() (Mode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.selectedID
}

// ToggleAlertsPanel flips the alerts panel independently of the view mode
// and reports the new visibility.
func (s *Session) ToggleAlertsPanel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelShown = !s.panelShown
	return s.panelShown
}

// AlertsPanelVisible reports the panel state.
func (s *Session) AlertsPanelVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelShown
}

// LoadKnownScores merges persisted last-known scores into the roster at
// session start. A patient without a record is newly admitted from the
// store's point of view and gets a system notice; storage failures are
// logged per patient and never block the rest.
func (s *Session) LoadKnownScores(ctx context.Context) {
	for _, patient := range s.roster.All() {
		score, known, err := s.risks.LoadKnown(ctx, patient.ID)
		if err != nil {
			s.logger.Warn("known score load failed",
				zap.Int("patient_id", patient.ID),
				zap.Error(err))
			continue
		}
		if !known {
			message := fmt.Sprintf("A new patient has been admitted to %s.", patient.RoomNumber)
			if _, err := s.alerts.RaiseSystem(ctx, "New Patient Admitted", message, patient); err != nil {
				s.logger.Warn("admission notice failed",
					zap.Int("patient_id", patient.ID),
					zap.Error(err))
			}
			continue
		}
		if _, err := s.roster.UpsertRiskScore(patient.ID, score, "", 0); err != nil {
			s.logger.Warn("known score apply failed",
				zap.Int("patient_id", patient.ID),
				zap.Error(err))
		}
	}
}

// RefreshAll requests one prediction per patient concurrently. Every
// completed result is applied as it lands; a failed patient keeps its prior
// score and never aborts its siblings. Outcomes are returned after fan-in
// in roster load order.
func (s *Session) RefreshAll(ctx context.Context) []RefreshOutcome {
	roster := s.roster.All()
	outcomes := make([]RefreshOutcome, len(roster))

	var wg sync.WaitGroup
	for i, patient := range roster {
		wg.Add(1)
		go func(index int, target patients.Patient) {
			defer wg.Done()
			score, err := s.refreshPatient(ctx, target)
			outcomes[index] = RefreshOutcome{PatientID: target.ID, Score: score, Err: err}
		}(i, patient)
	}
	wg.Wait()
	return outcomes
}

// RefreshOne runs the refresh pipeline for a single patient.
func (s *Session) RefreshOne(ctx context.Context, patientID int) (float64, error) {
	patient, ok := s.roster.Get(patientID)
	if !ok {
		return 0, patients.ErrPatientNotFound
	}
	return s.refreshPatient(ctx, patient)
}

// refreshPatient calls the predictor through the risk store and applies the
// reconciled score: roster update, threshold evaluation, live publish.
func (s *Session) refreshPatient(ctx context.Context, patient patients.Patient) (float64, error) {
	input := risk.PredictionInput{
		PatientID:        patient.ID,
		LengthOfStayDays: patient.LengthOfStayDays,
		HeartRate:        patient.Vitals.HeartRate,
		BloodPressure:    patient.Vitals.BloodPressure.String(),
		OxygenSaturation: patient.Vitals.OxygenSaturation,
	}

	result, err := s.risks.Refresh(ctx, input)
	if err != nil {
		s.logger.Warn("prediction refresh failed",
			zap.Int("patient_id", patient.ID),
			zap.Error(err))
		return 0, err
	}
	score := result.Score

	applied, err := s.roster.UpsertRiskScore(patient.ID, score, result.Classification, result.Seq)
	if err != nil {
		return score, err
	}
	if !applied {
		// A later completion already reached the roster; this result is
		// superseded and must not trigger alerts or a live publish.
		return score, nil
	}

	updated, _ := s.roster.Get(patient.ID)
	if _, err := s.alerts.EvaluateVitals(ctx, updated); err != nil {
		s.logger.Warn("threshold evaluation failed",
			zap.Int("patient_id", patient.ID),
			zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.Publish(RiskUpdate{
			PatientID: patient.ID,
			Score:     score,
			Tier:      risk.Classify(score).Tier,
			Trend:     updated.RiskTrend,
			At:        s.clock().UTC(),
		})
	}
	return score, nil
}

// AddNote appends a clinician note to a patient record.
func (s *Session) AddNote(patientID int, text string) (patients.Note, error) {
	return s.roster.AddNote(patientID, text)
}
