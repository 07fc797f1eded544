package clinicians

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidLogin indicates the login did not contain a usable identifier.
var ErrInvalidLogin = errors.New("clinicians: invalid login")

// Login carries the fields a clinician presents at sign-in.
type Login struct {
	Provider    string
	Subject     string
	DisplayName string
	Role        string
}

// IDProvider issues canonical clinician identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ServiceConfig describes the dependencies for clinician identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages canonical clinician identifiers for dashboard sessions.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	ids   IDProvider
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("clinicians: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	return &Service{db: cfg.Database, now: clock, ids: ids}, nil
}

// ResolveCanonicalID returns the canonical clinician id for a login,
// creating the identity mapping the first time a provider+subject pair is
// seen.
func (s *Service) ResolveCanonicalID(login Login) (string, error) {
	provider := normalize(login.Provider)
	if provider == "" {
		provider = "local"
	}
	subject := normalize(login.Subject)
	if subject == "" {
		return "", ErrInvalidLogin
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if canonical, ok := cached.(string); ok {
			return canonical, nil
		}
	}

	var identity Identity
	err := s.db.
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		canonical, idErr := s.ids.NewID()
		if idErr != nil {
			return "", idErr
		}
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			ClinicianID: canonical,
			DisplayName: normalize(login.DisplayName),
			Role:        strings.ToLower(normalize(login.Role)),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if display := normalize(login.DisplayName); display != "" && display != identity.DisplayName {
			updates["display_name"] = display
		}
		if role := strings.ToLower(normalize(login.Role)); role != "" && role != identity.Role {
			updates["role"] = role
		}
		_ = s.db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(cacheKey, identity.ClinicianID)
	return identity.ClinicianID, nil
}
