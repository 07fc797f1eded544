package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type predictorFunc func(ctx context.Context, input PredictionInput) (PredictionResult, error)

func (f predictorFunc) Predict(ctx context.Context, input PredictionInput) (PredictionResult, error) {
	return f(ctx, input)
}

func newTestStore(t *testing.T, predictor Predictor) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := NewStore(StoreConfig{
		Database:  db,
		Predictor: predictor,
		Clock:     func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func TestLoadKnownMissingRowIsUnknownNotError(t *testing.T) {
	store, _ := newTestStore(t, predictorFunc(func(ctx context.Context, input PredictionInput) (PredictionResult, error) {
		return PredictionResult{}, errors.New("unused")
	}))

	score, known, err := store.LoadKnown(context.Background(), 1001)
	if err != nil {
		t.Fatalf("missing row must not be an error: %v", err)
	}
	if known || score != 0 {
		t.Fatalf("expected unknown score, got %v known=%v", score, known)
	}
}

func TestLoadKnownReadsPersistedEntry(t *testing.T) {
	store, db := newTestStore(t, predictorFunc(func(ctx context.Context, input PredictionInput) (PredictionResult, error) {
		return PredictionResult{}, errors.New("unused")
	}))

	seeded := Entry{PatientID: "1001", RiskScore: 62.5, FetchedAtSeconds: 1699990000}
	if err := db.Create(&seeded).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	score, known, err := store.LoadKnown(context.Background(), 1001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !known || score != 62.5 {
		t.Fatalf("expected known score 62.5, got %v known=%v", score, known)
	}
	if cached, ok := store.Cached(1001); !ok || cached != 62.5 {
		t.Fatalf("expected cache warmed from persisted entry, got %v ok=%v", cached, ok)
	}
}

func TestRefreshWritesThrough(t *testing.T) {
	store, db := newTestStore(t, predictorFunc(func(ctx context.Context, input PredictionInput) (PredictionResult, error) {
		return PredictionResult{Score: 71.2, Classification: "Risk"}, nil
	}))

	result, err := store.Refresh(context.Background(), PredictionInput{
		PatientID:        1001,
		LengthOfStayDays: 5,
		HeartRate:        85,
		BloodPressure:    "125/85",
		OxygenSaturation: 98,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 71.2 || result.Classification != "Risk" {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Seq != 1 {
		t.Fatalf("first completion must carry sequence 1, got %d", result.Seq)
	}

	var entry Entry
	if err := db.Where("patient_id = ?", "1001").Take(&entry).Error; err != nil {
		t.Fatalf("expected persisted entry: %v", err)
	}
	if entry.RiskScore != 71.2 || entry.BloodPressure != 125 || entry.LengthOfStay != 5 {
		t.Fatalf("unexpected persisted entry %#v", entry)
	}
	if entry.FetchedAtSeconds != 1700000000 {
		t.Fatalf("unexpected fetch timestamp %d", entry.FetchedAtSeconds)
	}
}

func TestRefreshFailureLeavesPreviousValue(t *testing.T) {
	calls := 0
	store, _ := newTestStore(t, predictorFunc(func(ctx context.Context, input PredictionInput) (PredictionResult, error) {
		calls++
		if calls > 1 {
			return PredictionResult{}, fmt.Errorf("%w: connection refused", ErrTransport)
		}
		return PredictionResult{Score: 55}, nil
	}))

	if _, err := store.Refresh(context.Background(), PredictionInput{PatientID: 1001}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Refresh(context.Background(), PredictionInput{PatientID: 1001}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if cached, ok := store.Cached(1001); !ok || cached != 55 {
		t.Fatalf("failed refresh must keep previous value, got %v ok=%v", cached, ok)
	}
}

// Two overlapping refreshes for the same patient: the request issued first
// resolves second. The response that completes last wins, so the final score
// is the first request's 80, not the earlier-completing 30.
func TestConcurrentRefreshLastCompletionWins(t *testing.T) {
	firstEntered := make(chan struct{})
	secondEntered := make(chan struct{})
	firstGate := make(chan struct{})
	secondGate := make(chan struct{})
	calls := 0
	var callMu sync.Mutex

	store, db := newTestStore(t, predictorFunc(func(ctx context.Context, input PredictionInput) (PredictionResult, error) {
		callMu.Lock()
		calls++
		call := calls
		callMu.Unlock()
		if call == 1 {
			close(firstEntered)
			<-firstGate
			return PredictionResult{Score: 80}, nil
		}
		close(secondEntered)
		<-secondGate
		return PredictionResult{Score: 30}, nil
	}))

	firstDone := make(chan struct{})
	secondDone := make(chan struct{})

	go func() {
		defer close(firstDone)
		if _, err := store.Refresh(context.Background(), PredictionInput{PatientID: 1001}); err != nil {
			t.Errorf("first refresh failed: %v", err)
		}
	}()
	<-firstEntered
	go func() {
		defer close(secondDone)
		if _, err := store.Refresh(context.Background(), PredictionInput{PatientID: 1001}); err != nil {
			t.Errorf("second refresh failed: %v", err)
		}
	}()
	<-secondEntered

	// Let the later request complete first with 30, then the earlier one
	// with 80.
	close(secondGate)
	<-secondDone
	close(firstGate)
	<-firstDone

	if cached, ok := store.Cached(1001); !ok || cached != 80 {
		t.Fatalf("expected last-completed score 80, got %v ok=%v", cached, ok)
	}
	if seq := store.CompletionSeq(1001); seq != 2 {
		t.Fatalf("expected two applied completions, got %d", seq)
	}

	var entry Entry
	if err := db.Where("patient_id = ?", "1001").Take(&entry).Error; err != nil {
		t.Fatalf("expected persisted entry: %v", err)
	}
	if entry.RiskScore != 80 || entry.CompletionSeq != 2 {
		t.Fatalf("persisted entry must match last completion, got %#v", entry)
	}
}

func TestNewStoreValidatesDependencies(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatalf("expected missing database error")
	}
	db, err := gorm.Open(sqlite.Open("file:storedeps?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if _, err := NewStore(StoreConfig{Database: db}); err == nil {
		t.Fatalf("expected missing predictor error")
	}
}
