package clinicians

import (
	"strings"
	"time"
)

// Identity maps a directory login (provider + subject) to the canonical
// clinician id used across the dashboard session.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	ClinicianID string    `gorm:"column:clinician_id;size:190;not null;index"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	Role        string    `gorm:"column:role;size:64"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing clinician identities.
func (Identity) TableName() string {
	return "clinician_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
