package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wardview/backend/internal/patients"
	"github.com/wardview/backend/internal/risk"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Severity grades an alert for visual priority: critical > warning > info.
// Severity colors the alert but never reorders the panel.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Vital-sign thresholds that raise alerts during a refresh.
const (
	lowOxygenSaturation  = 94.0
	elevatedHeartRateBPM = 100.0
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opEngineNew   = "alerts.engine.new"
	opRaise       = "alerts.raise"
	opMarkRead    = "alerts.mark_read"
	opUnreadCount = "alerts.unread_count"
	opList        = "alerts.list"
)

// EngineError carries an operation.reason code alongside the cause.
type EngineError struct {
	code string
	err  error
}

func (e *EngineError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *EngineError) Unwrap() error {
	return e.err
}

func (e *EngineError) Code() string {
	return e.code
}

func newEngineError(operation, reason string, cause error) error {
	return &EngineError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Alert is one raised notification. Rows are never deleted; the read flag is
// the only mutation and it only moves false to true.
type Alert struct {
	ID               int64    `gorm:"column:id;primaryKey;autoIncrement"`
	Title            string   `gorm:"column:title;size:190;not null"`
	Message          string   `gorm:"column:message;type:text;not null"`
	Severity         Severity `gorm:"column:severity;size:16;not null"`
	PatientID        int      `gorm:"column:patient_id;not null;index"`
	PatientName      string   `gorm:"column:patient_name;size:190;not null"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null;index"`
	Read             bool     `gorm:"column:read;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Alert) TableName() string {
	return "alerts"
}

// RaiseInput describes a new alert.
type RaiseInput struct {
	Title       string
	Message     string
	Severity    Severity
	PatientID   int
	PatientName string
}

// EngineConfig describes the dependencies of the alert engine.
type EngineConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Engine owns the alert collection and unread accounting.
type Engine struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewEngine constructs the alert engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, newEngineError(opEngineNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Raise appends an unread alert. Duplicates against existing alerts with the
// same title and patient are allowed.
func (e *Engine) Raise(ctx context.Context, input RaiseInput) (Alert, error) {
	alert := Alert{
		Title:            input.Title,
		Message:          input.Message,
		Severity:         input.Severity,
		PatientID:        input.PatientID,
		PatientName:      input.PatientName,
		CreatedAtSeconds: e.clock().UTC().Unix(),
		Read:             false,
	}
	if err := e.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return Alert{}, newEngineError(opRaise, "insert_failed", err)
	}
	e.logger.Info("alert raised",
		zap.Int64("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.Int("patient_id", alert.PatientID))
	return alert, nil
}

// MarkRead flips the read flag. Marking an already-read alert or an unknown
// id is a no-op, not an error.
func (e *Engine) MarkRead(ctx context.Context, alertID int64) error {
	err := e.db.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ? AND read = ?", alertID, false).
		Update("read", true).Error
	if err != nil {
		return newEngineError(opMarkRead, "update_failed", err)
	}
	return nil
}

// UnreadCount returns the number of alerts still unread.
func (e *Engine) UnreadCount(ctx context.Context) (int64, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&Alert{}).
		Where("read = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, newEngineError(opUnreadCount, "count_failed", err)
	}
	return count, nil
}

// List returns every alert, newest first by creation time.
func (e *Engine) List(ctx context.Context) ([]Alert, error) {
	var listed []Alert
	err := e.db.WithContext(ctx).
		Order("created_at_s DESC, id DESC").
		Find(&listed).Error
	if err != nil {
		return nil, newEngineError(opList, "query_failed", err)
	}
	return listed, nil
}

// EvaluateVitals checks one patient against the threshold rules and raises
// an alert per crossed threshold. Raised alerts are returned so the caller
// can publish them.
func (e *Engine) EvaluateVitals(ctx context.Context, patient patients.Patient) ([]Alert, error) {
	var raised []Alert

	if risk.Classify(patient.RiskScore).Tier == risk.TierHigh {
		alert, err := e.Raise(ctx, RaiseInput{
			Title:       "Critical Risk Alert",
			Message:     "Patient's risk score has increased to critical levels. Immediate attention required.",
			Severity:    SeverityCritical,
			PatientID:   patient.ID,
			PatientName: patient.Name,
		})
		if err != nil {
			return raised, err
		}
		raised = append(raised, alert)
	}

	if patient.Vitals.OxygenSaturation < lowOxygenSaturation {
		alert, err := e.Raise(ctx, RaiseInput{
			Title:       "Oxygen Saturation Warning",
			Message:     "Patient's oxygen saturation has dropped below 94%. Please check.",
			Severity:    SeverityWarning,
			PatientID:   patient.ID,
			PatientName: patient.Name,
		})
		if err != nil {
			return raised, err
		}
		raised = append(raised, alert)
	}

	if patient.Vitals.HeartRate > elevatedHeartRateBPM {
		alert, err := e.Raise(ctx, RaiseInput{
			Title:       "High Heart Rate Alert",
			Message:     "Patient's heart rate has been elevated for the past 2 hours.",
			Severity:    SeverityWarning,
			PatientID:   patient.ID,
			PatientName: patient.Name,
		})
		if err != nil {
			return raised, err
		}
		raised = append(raised, alert)
	}

	return raised, nil
}

// RaiseSystem records an informational system notice such as an admission.
func (e *Engine) RaiseSystem(ctx context.Context, title, message string, patient patients.Patient) (Alert, error) {
	return e.Raise(ctx, RaiseInput{
		Title:       title,
		Message:     message,
		Severity:    SeverityInfo,
		PatientID:   patient.ID,
		PatientName: patient.Name,
	})
}
