package risk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingPredictor = errors.New("predictor client is required")
	noOpLogger          = zap.NewNop()
)

const (
	opStoreNew  = "risk.store.new"
	opLoadKnown = "risk.load_known"
	opRefresh   = "risk.refresh"
)

// StoreError carries an operation.reason code alongside the cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Entry is the persisted last-known risk record, one row per patient. The
// columns mirror the vitals snapshot the score was computed from; blood
// pressure is kept in its numeric systolic form.
type Entry struct {
	PatientID        string  `gorm:"column:patient_id;primaryKey;size:32;not null"`
	RiskScore        float64 `gorm:"column:risk_score;not null"`
	HeartRate        float64 `gorm:"column:heart_rate"`
	BloodPressure    int     `gorm:"column:blood_pressure"`
	OxygenSaturation float64 `gorm:"column:oxygen_saturation"`
	LengthOfStay     int     `gorm:"column:length_of_stay"`
	FetchedAtSeconds int64   `gorm:"column:fetched_at_s;not null"`
	CompletionSeq    int64   `gorm:"column:completion_seq;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "risk_entries"
}

// Predictor is satisfied by PredictorClient and by test doubles.
type Predictor interface {
	Predict(ctx context.Context, input PredictionInput) (PredictionResult, error)
}

// StoreConfig describes the dependencies of the risk store.
type StoreConfig struct {
	Database  *gorm.DB
	Predictor Predictor
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Store holds one authoritative risk score per patient, merging the
// persisted last-known value with fresh prediction results. Concurrent
// refreshes of the same patient are serialized at application time: every
// completed response is applied under the store lock with a per-patient
// monotonically increasing completion sequence, so the response that
// completes last always wins regardless of issue order.
type Store struct {
	db        *gorm.DB
	predictor Predictor
	clock     func() time.Time
	logger    *zap.Logger

	mu     sync.Mutex
	scores map[int]float64
	seqs   map[int]int64
}

// NewStore constructs the risk store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.Predictor == nil {
		return nil, newStoreError(opStoreNew, "missing_predictor", errMissingPredictor)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:        cfg.Database,
		predictor: cfg.Predictor,
		clock:     clock,
		logger:    logger,
		scores:    make(map[int]float64),
		seqs:      make(map[int]int64),
	}, nil
}

// LoadKnown reads the persisted last-known score for one patient. A missing
// row is a valid "unknown" state, not an error; storage failures are
// returned so the caller can log and continue with its other patients.
func (s *Store) LoadKnown(ctx context.Context, patientID int) (float64, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", strconv.Itoa(patientID)).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, newStoreError(opLoadKnown, "query_failed", err)
	}

	s.mu.Lock()
	s.scores[patientID] = entry.RiskScore
	s.mu.Unlock()
	return entry.RiskScore, true, nil
}

// Completion is one applied prediction result together with the per-patient
// sequence it was assigned. Callers use Seq to discard their own update if a
// later completion has already been applied downstream.
type Completion struct {
	Score          float64
	Classification string
	Seq            int64
}

// Refresh requests a fresh prediction and applies the result. On predictor
// failure the previously cached value is left untouched and the error is
// returned to this caller only; sibling refreshes are unaffected.
func (s *Store) Refresh(ctx context.Context, input PredictionInput) (Completion, error) {
	result, err := s.predictor.Predict(ctx, input)
	if err != nil {
		return Completion{}, newStoreError(opRefresh, "prediction_failed", err)
	}
	seq := s.apply(ctx, input, result)
	return Completion{Score: result.Score, Classification: result.Classification, Seq: seq}, nil
}

// apply records a completed prediction. The lock serializes completions per
// store, assigning each one the next completion sequence for its patient;
// overwriting under the lock is exactly last-completed-wins. The persist
// stays inside the same critical section so rows advance in completion
// order too; without it two refreshes racing past the unlock could commit
// their upserts inverted and resurrect a superseded score on the next load.
func (s *Store) apply(ctx context.Context, input PredictionInput, result PredictionResult) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seqs[input.PatientID] + 1
	s.seqs[input.PatientID] = seq
	s.scores[input.PatientID] = result.Score

	systolic := 0
	if reading, err := strconv.Atoi(firstSegment(input.BloodPressure)); err == nil {
		systolic = reading
	}

	entry := Entry{
		PatientID:        strconv.Itoa(input.PatientID),
		RiskScore:        result.Score,
		HeartRate:        input.HeartRate,
		BloodPressure:    systolic,
		OxygenSaturation: input.OxygenSaturation,
		LengthOfStay:     input.LengthOfStayDays,
		FetchedAtSeconds: s.clock().UTC().Unix(),
		CompletionSeq:    seq,
	}

	// Write-through is advisory caching; a failed persist keeps the
	// in-memory value and the refresh still succeeds for the caller.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
	if err != nil {
		s.logger.Warn("risk entry persist failed",
			zap.Int("patient_id", input.PatientID),
			zap.Error(err))
	}
	return seq
}

// Cached returns the in-memory last-known score for one patient.
func (s *Store) Cached(patientID int) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[patientID]
	return score, ok
}

// CompletionSeq reports how many prediction results have been applied for
// the patient within this session.
func (s *Store) CompletionSeq(patientID int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[patientID]
}

func firstSegment(bloodPressure string) string {
	for i := 0; i < len(bloodPressure); i++ {
		if bloodPressure[i] == '/' {
			return bloodPressure[:i]
		}
	}
	return bloodPressure
}
