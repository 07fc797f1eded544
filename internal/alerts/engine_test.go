package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/wardview/backend/internal/patients"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Alert{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ticks := int64(1700000000)
	engine, err := NewEngine(EngineConfig{
		Database: db,
		Clock: func() time.Time {
			ticks++
			return time.Unix(ticks, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return engine
}

func TestRaiseAndUnreadCount(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	alert, err := engine.Raise(ctx, RaiseInput{
		Title:       "Critical Risk Alert",
		Message:     "Immediate attention required.",
		Severity:    SeverityCritical,
		PatientID:   1001,
		PatientName: "John Smith",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.ID == 0 || alert.Read {
		t.Fatalf("expected persisted unread alert, got %#v", alert)
	}

	count, err := engine.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one unread alert, got %d", count)
	}
}

func TestRaiseAllowsDuplicates(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	input := RaiseInput{
		Title:       "Oxygen Saturation Warning",
		Severity:    SeverityWarning,
		PatientID:   1003,
		PatientName: "John Green",
	}

	if _, err := engine.Raise(ctx, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Raise(ctx, input); err != nil {
		t.Fatalf("duplicate raise must succeed: %v", err)
	}

	count, err := engine.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both duplicates unread, got %d", count)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	alert, err := engine.Raise(ctx, RaiseInput{
		Title:       "Medication Reminder",
		Severity:    SeverityInfo,
		PatientID:   1002,
		PatientName: "Sarah Johnson",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := engine.MarkRead(ctx, alert.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := engine.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero unread after mark, got %d", count)
	}

	if err := engine.MarkRead(ctx, alert.ID); err != nil {
		t.Fatalf("second mark must be a no-op: %v", err)
	}
	if err := engine.MarkRead(ctx, 424242); err != nil {
		t.Fatalf("unknown id must be a no-op: %v", err)
	}
	count, _ = engine.UnreadCount(ctx)
	if count != 0 {
		t.Fatalf("no-op marks must not change state, got %d", count)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, _ := engine.Raise(ctx, RaiseInput{Title: "first", Severity: SeverityInfo, PatientID: 1, PatientName: "A"})
	second, _ := engine.Raise(ctx, RaiseInput{Title: "second", Severity: SeverityCritical, PatientID: 2, PatientName: "B"})

	listed, err := engine.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected two alerts, got %d", len(listed))
	}
	if listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Fatalf("expected newest first regardless of severity, got %v then %v", listed[0].Title, listed[1].Title)
	}
}

func TestRaiseSystemRecordsInfoNotice(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	admitted := patients.Patient{ID: 1004, Name: "Emily Davis"}
	alert, err := engine.RaiseSystem(ctx, "New Patient Admitted", "A new patient has been admitted to ICU-104.", admitted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Severity != SeverityInfo {
		t.Fatalf("system notices must be info severity, got %s", alert.Severity)
	}
	if alert.PatientID != 1004 || alert.PatientName != "Emily Davis" {
		t.Fatalf("unexpected alert subject %#v", alert)
	}
}

func TestEvaluateVitalsThresholds(t *testing.T) {
	tests := []struct {
		name           string
		patient        patients.Patient
		expectedTitles []string
	}{
		{
			name: "high risk score",
			patient: patients.Patient{
				ID: 1001, Name: "John Smith", RiskScore: 82,
				Vitals: patients.Vitals{HeartRate: 85, OxygenSaturation: 98},
			},
			expectedTitles: []string{"Critical Risk Alert"},
		},
		{
			name: "low oxygen",
			patient: patients.Patient{
				ID: 1003, Name: "John Green", RiskScore: 10,
				Vitals: patients.Vitals{HeartRate: 90, OxygenSaturation: 93},
			},
			expectedTitles: []string{"Oxygen Saturation Warning"},
		},
		{
			name: "elevated heart rate",
			patient: patients.Patient{
				ID: 1002, Name: "Sarah Johnson", RiskScore: 45,
				Vitals: patients.Vitals{HeartRate: 112, OxygenSaturation: 97},
			},
			expectedTitles: []string{"High Heart Rate Alert"},
		},
		{
			name: "all thresholds crossed",
			patient: patients.Patient{
				ID: 1004, Name: "Emily Davis", RiskScore: 91,
				Vitals: patients.Vitals{HeartRate: 120, OxygenSaturation: 88},
			},
			expectedTitles: []string{"Critical Risk Alert", "Oxygen Saturation Warning", "High Heart Rate Alert"},
		},
		{
			name: "stable patient",
			patient: patients.Patient{
				ID: 1005, Name: "Michael Wilson", RiskScore: 20,
				Vitals: patients.Vitals{HeartRate: 70, OxygenSaturation: 99},
			},
			expectedTitles: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			engine := newTestEngine(t)
			raised, err := engine.EvaluateVitals(context.Background(), test.patient)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(raised) != len(test.expectedTitles) {
				t.Fatalf("expected %d alerts, got %d", len(test.expectedTitles), len(raised))
			}
			for i, title := range test.expectedTitles {
				if raised[i].Title != title {
					t.Fatalf("expected %q at position %d, got %q", title, i, raised[i].Title)
				}
				if raised[i].PatientID != test.patient.ID {
					t.Fatalf("alert must carry the patient id")
				}
			}
		})
	}
}
