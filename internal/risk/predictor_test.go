package risk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPredictNormalizesProbabilityShape(t *testing.T) {
	var received map[string]any
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":1,"probability_of_deterioration":0.82,"classification":"Risk"}`))
	}))
	defer testServer.Close()

	client := mustPredictorClient(t, testServer.URL)
	result, err := client.Predict(context.Background(), PredictionInput{
		PatientID:        1001,
		LengthOfStayDays: 5,
		HeartRate:        85,
		BloodPressure:    "125/85",
		OxygenSaturation: 98,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 82 {
		t.Fatalf("expected probability scaled to 82, got %v", result.Score)
	}
	if result.Classification != "Risk" {
		t.Fatalf("unexpected classification %q", result.Classification)
	}
	if received["subject_id"] != float64(1001) || received["blood_pressure"] != "125/85" {
		t.Fatalf("unexpected request payload %#v", received)
	}
}

func TestPredictAcceptsRiskScoreShape(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_score":64.5}`))
	}))
	defer testServer.Close()

	client := mustPredictorClient(t, testServer.URL)
	result, err := client.Predict(context.Background(), PredictionInput{PatientID: 1002})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 64.5 {
		t.Fatalf("expected risk_score taken as-is, got %v", result.Score)
	}
}

func TestPredictNonSuccessStatusIsTransportFailure(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer testServer.Close()

	client := mustPredictorClient(t, testServer.URL)
	if _, err := client.Predict(context.Background(), PredictionInput{PatientID: 1001}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestPredictMissingScoreFieldsIsMalformed(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":"Risk"}`))
	}))
	defer testServer.Close()

	client := mustPredictorClient(t, testServer.URL)
	if _, err := client.Predict(context.Background(), PredictionInput{PatientID: 1001}); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestNewPredictorClientRequiresBaseURL(t *testing.T) {
	if _, err := NewPredictorClient(PredictorClientConfig{}); !errors.Is(err, ErrInvalidPredictorConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func mustPredictorClient(t *testing.T, baseURL string) *PredictorClient {
	t.Helper()
	client, err := NewPredictorClient(PredictorClientConfig{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("failed to construct predictor client: %v", err)
	}
	return client
}
