package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wardview/backend/internal/alerts"
	"github.com/wardview/backend/internal/clinicians"
	"github.com/wardview/backend/internal/dashboard"
	"github.com/wardview/backend/internal/patients"
	"github.com/wardview/backend/internal/risk"
	"go.uber.org/zap"
)

const (
	clinicianIDContextKey = "wardview_clinician_id"
	heartbeatInterval     = 15 * time.Second
)

var (
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingClinicianService = errors.New("clinician service dependency required")
	errMissingSession          = errors.New("dashboard session dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates clinician session tokens.
type TokenManager interface {
	IssueSessionToken(ctx context.Context, clinicianID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager TokenManager
	Clinicians   *clinicians.Service
	Session      *dashboard.Session
	Realtime     *RealtimeDispatcher
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Clinicians == nil {
		return nil, errMissingClinicianService
	}
	if deps.Session == nil {
		return nil, errMissingSession
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Realtime
	if dispatcher == nil {
		dispatcher = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenManager,
		clinicians: deps.Clinicians,
		session:    deps.Session,
		realtime:   dispatcher,
		logger:     logger,
	}

	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/patients", handler.handleListPatients)
	protected.GET("/patients/:id", handler.handleGetPatient)
	protected.POST("/patients/:id/notes", handler.handleAddNote)
	protected.POST("/patients/:id/refresh", handler.handleRefreshPatient)
	protected.POST("/refresh", handler.handleRefreshAll)
	protected.PUT("/view/search", handler.handleSetSearch)
	protected.PUT("/view/sort", handler.handleSetSort)
	protected.POST("/view/back", handler.handleBack)
	protected.POST("/view/alerts/toggle", handler.handleToggleAlertsPanel)
	protected.GET("/alerts", handler.handleListAlerts)
	protected.GET("/alerts/unread", handler.handleUnreadCount)
	protected.POST("/alerts/:id/read", handler.handleMarkAlertRead)
	protected.GET("/events", handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	tokens     TokenManager
	clinicians *clinicians.Service
	session    *dashboard.Session
	realtime   *RealtimeDispatcher
	logger     *zap.Logger
}

type loginRequestPayload struct {
	Provider    string `json:"provider"`
	Subject     string `json:"subject"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	clinicianID, err := h.clinicians.ResolveCanonicalID(clinicians.Login{
		Provider:    request.Provider,
		Subject:     request.Subject,
		DisplayName: request.DisplayName,
		Role:        request.Role,
	})
	if err != nil {
		if errors.Is(err, clinicians.ErrInvalidLogin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("failed to resolve clinician identity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), clinicianID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type notePayload struct {
	Text             string `json:"text"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type vitalsPayload struct {
	HeartRate        float64 `json:"heart_rate"`
	BloodPressure    string  `json:"blood_pressure"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
}

type patientPayload struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	RoomNumber        string        `json:"room_number"`
	AdmittedAtSeconds int64         `json:"admitted_at_s"`
	LengthOfStayDays  int           `json:"length_of_stay_days"`
	Vitals            vitalsPayload `json:"vitals"`
	RiskScore         float64       `json:"risk_score"`
	RiskTrend         string        `json:"risk_trend"`
	RiskLabel         string        `json:"risk_label"`
	RiskColor         string        `json:"risk_color"`
	Notes             []notePayload `json:"notes"`
}

func presentPatient(patient patients.Patient) patientPayload {
	classification := risk.Classify(patient.RiskScore)
	notes := make([]notePayload, 0, len(patient.Notes))
	for _, note := range patient.Notes {
		notes = append(notes, notePayload{Text: note.Text, CreatedAtSeconds: note.CreatedAtSeconds})
	}
	return patientPayload{
		ID:                patient.ID,
		Name:              patient.Name,
		RoomNumber:        patient.RoomNumber,
		AdmittedAtSeconds: patient.AdmittedAtSeconds,
		LengthOfStayDays:  patient.LengthOfStayDays,
		Vitals: vitalsPayload{
			HeartRate:        patient.Vitals.HeartRate,
			BloodPressure:    patient.Vitals.BloodPressure.String(),
			OxygenSaturation: patient.Vitals.OxygenSaturation,
		},
		RiskScore: patient.RiskScore,
		RiskTrend: string(patient.RiskTrend),
		RiskLabel: classification.Label,
		RiskColor: classification.ColorClass,
		Notes:     notes,
	}
}

type rosterResponsePayload struct {
	Patients      []patientPayload `json:"patients"`
	SortKey       string           `json:"sort_key"`
	SortDirection string           `json:"sort_direction"`
	Search        string           `json:"search"`
}

func (h *httpHandler) presentRoster() rosterResponsePayload {
	roster := h.session.Roster()
	visible := roster.Visible()
	presented := make([]patientPayload, 0, len(visible))
	for _, patient := range visible {
		presented = append(presented, presentPatient(patient))
	}
	sortKey, sortDirection := roster.SortState()
	return rosterResponsePayload{
		Patients:      presented,
		SortKey:       string(sortKey),
		SortDirection: string(sortDirection),
		Search:        roster.Search(),
	}
}

func (h *httpHandler) handleListPatients(c *gin.Context) {
	c.JSON(http.StatusOK, h.presentRoster())
}

func (h *httpHandler) handleGetPatient(c *gin.Context) {
	patientID, ok := parsePatientID(c)
	if !ok {
		return
	}
	patient, err := h.session.SelectPatient(patientID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "patient_not_found"})
		return
	}
	c.JSON(http.StatusOK, presentPatient(patient))
}

type addNoteRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleAddNote(c *gin.Context) {
	patientID, ok := parsePatientID(c)
	if !ok {
		return
	}
	var request addNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.session.AddNote(patientID, request.Text)
	switch {
	case errors.Is(err, patients.ErrEmptyNote):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_note"})
		return
	case errors.Is(err, patients.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "patient_not_found"})
		return
	case err != nil:
		h.logger.Error("failed to add note", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "note_failed"})
		return
	}
	c.JSON(http.StatusCreated, notePayload{Text: note.Text, CreatedAtSeconds: note.CreatedAtSeconds})
}

func (h *httpHandler) handleRefreshPatient(c *gin.Context) {
	patientID, ok := parsePatientID(c)
	if !ok {
		return
	}
	score, err := h.session.RefreshOne(c.Request.Context(), patientID)
	switch {
	case errors.Is(err, patients.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "patient_not_found"})
		return
	case err != nil:
		h.logger.Warn("patient refresh failed",
			zap.Int("patient_id", patientID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": patientID, "risk_score": score})
}

type refreshOutcomePayload struct {
	PatientID int     `json:"patient_id"`
	RiskScore float64 `json:"risk_score"`
	Error     string  `json:"error,omitempty"`
}

func (h *httpHandler) handleRefreshAll(c *gin.Context) {
	outcomes := h.session.RefreshAll(c.Request.Context())
	presented := make([]refreshOutcomePayload, 0, len(outcomes))
	for _, outcome := range outcomes {
		payload := refreshOutcomePayload{PatientID: outcome.PatientID, RiskScore: outcome.Score}
		if outcome.Err != nil {
			payload.Error = "refresh_failed"
		}
		presented = append(presented, payload)
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": presented})
}

type searchRequestPayload struct {
	Query string `json:"query"`
}

func (h *httpHandler) handleSetSearch(c *gin.Context) {
	var request searchRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.session.Roster().SetSearch(request.Query)
	c.JSON(http.StatusOK, h.presentRoster())
}

type sortRequestPayload struct {
	Key string `json:"key"`
}

func (h *httpHandler) handleSetSort(c *gin.Context) {
	var request sortRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	key, err := patients.ParseSortKey(request.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sort_key"})
		return
	}
	h.session.Roster().SetSort(key)
	c.JSON(http.StatusOK, h.presentRoster())
}

func (h *httpHandler) handleBack(c *gin.Context) {
	h.session.Back()
	mode, _ := h.session.Mode()
	c.JSON(http.StatusOK, gin.H{"mode": string(mode)})
}

func (h *httpHandler) handleToggleAlertsPanel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"visible": h.session.ToggleAlertsPanel()})
}

type alertPayload struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	Severity         string `json:"severity"`
	PatientID        int    `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	Read             bool   `json:"read"`
}

func presentAlert(alert alerts.Alert) alertPayload {
	return alertPayload{
		ID:               alert.ID,
		Title:            alert.Title,
		Message:          alert.Message,
		Severity:         string(alert.Severity),
		PatientID:        alert.PatientID,
		PatientName:      alert.PatientName,
		CreatedAtSeconds: alert.CreatedAtSeconds,
		Read:             alert.Read,
	}
}

func (h *httpHandler) handleListAlerts(c *gin.Context) {
	listed, err := h.session.Alerts().List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alerts_failed"})
		return
	}
	presented := make([]alertPayload, 0, len(listed))
	for _, alert := range listed {
		presented = append(presented, presentAlert(alert))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": presented, "panel_visible": h.session.AlertsPanelVisible()})
}

func (h *httpHandler) handleUnreadCount(c *gin.Context) {
	count, err := h.session.Alerts().UnreadCount(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count unread alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alerts_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *httpHandler) handleMarkAlertRead(c *gin.Context) {
	alertID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_alert_id"})
		return
	}
	if err := h.session.Alerts().MarkRead(c.Request.Context(), alertID); err != nil {
		h.logger.Error("failed to mark alert read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alerts_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type riskUpdatePayload struct {
	PatientID     int     `json:"patient_id"`
	RiskScore     float64 `json:"risk_score"`
	Tier          string  `json:"tier"`
	Trend         string  `json:"trend"`
	UpdatedAtUnix int64   `json:"updated_at_s"`
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case update, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(realtimeEventRiskUpdate, riskUpdatePayload{
				PatientID:     update.PatientID,
				RiskScore:     update.Score,
				Tier:          string(update.Tier),
				Trend:         string(update.Trend),
				UpdatedAtUnix: update.At.Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{})
			return true
		}
	})
}

// authorizeRequest accepts a Bearer header, or an access_token query
// parameter for the event stream where browsers cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case c.Query("access_token") != "":
		token = c.Query("access_token")
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(clinicianIDContextKey, subject)
	c.Next()
}

func parsePatientID(c *gin.Context) (int, bool) {
	patientID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_patient_id"})
		return 0, false
	}
	return patientID, true
}
