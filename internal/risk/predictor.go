package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTransport indicates a network failure or non-2xx predictor response.
	ErrTransport = errors.New("risk: predictor transport failure")
	// ErrMalformedResponse indicates a predictor response missing both score
	// fields.
	ErrMalformedResponse = errors.New("risk: malformed predictor response")
	// ErrInvalidPredictorConfig indicates an unusable client configuration.
	ErrInvalidPredictorConfig = errors.New("risk: invalid predictor config")

	errMissingBaseURL = errors.New("predictor base url required")
)

// PredictionInput carries the vitals snapshot sent to the deterioration
// model. BloodPressure keeps the wire representation the model was trained
// against ("125/85" or a bare systolic value).
type PredictionInput struct {
	PatientID        int     `json:"subject_id"`
	LengthOfStayDays int     `json:"los"`
	HeartRate        float64 `json:"heart_rate"`
	BloodPressure    string  `json:"blood_pressure"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
}

// PredictionResult is the normalized predictor outcome. Score is always on
// the 0-100 scale regardless of which response shape produced it.
type PredictionResult struct {
	Score          float64
	Classification string
}

// predictorResponse accepts both response shapes the service emits: the
// batch form carries probability_of_deterioration (0..1), the per-patient
// form carries risk_score (0..100).
type predictorResponse struct {
	Probability    *float64 `json:"probability_of_deterioration"`
	RiskScore      *float64 `json:"risk_score"`
	Classification string   `json:"classification"`
}

// PredictorClientConfig bundles configuration for the predictor client.
type PredictorClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// PredictorClient calls the external deterioration prediction service.
type PredictorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPredictorClient constructs a client with validated configuration.
func NewPredictorClient(cfg PredictorClientConfig) (*PredictorClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredictorConfig, errMissingBaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout > 0 {
		clientCopy := *httpClient
		clientCopy.Timeout = cfg.Timeout
		httpClient = &clientCopy
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PredictorClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Predict posts the vitals snapshot and returns the normalized score.
func (c *PredictorClient) Predict(ctx context.Context, input PredictionInput) (PredictionResult, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return PredictionResult{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return PredictionResult{}, err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return PredictionResult{}, fmt.Errorf("%w: status %d", ErrTransport, response.StatusCode)
	}

	var decoded predictorResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return PredictionResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result := PredictionResult{Classification: decoded.Classification}
	switch {
	case decoded.RiskScore != nil:
		result.Score = *decoded.RiskScore
	case decoded.Probability != nil:
		result.Score = *decoded.Probability * 100
	default:
		return PredictionResult{}, fmt.Errorf("%w: no score field", ErrMalformedResponse)
	}

	c.logger.Debug("prediction received",
		zap.Int("patient_id", input.PatientID),
		zap.Float64("score", result.Score))
	return result, nil
}
