package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	anonymousName  = "Anonymous"
	unknownPhone   = "Unknown"
	acknowledgment = "Help is on the way"
)

var defaultMessages = map[models.AlertType]string{
	models.AlertTypeSOS:        "Emergency SOS button pressed - immediate assistance needed!",
	models.AlertTypeGesture:    "Emergency gesture detected - help signal recognized!",
	models.AlertTypeVoice:      "Distress call detected - scream/call for help identified!",
	models.AlertTypeInactivity: "No movement detected for extended period - welfare check needed!",
}

// DefaultMessage returns the fixed message used when a broadcast carries none
func DefaultMessage(t models.AlertType) string {
	return defaultMessages[t]
}

// Trigger is anything able to raise an alert: an SOS button, a detector, a bridge
type Trigger interface {
	Emit(ctx context.Context, alertType models.AlertType, message string) (string, error)
}

// SessionReader exposes the process session
type SessionReader interface {
	CurrentUser() *models.User
}

// Locator resolves where an alert is being raised from
type Locator interface {
	Locate(ctx context.Context) (*models.Location, error)
}

// FixedLocator always reports the same location
type FixedLocator struct {
	Location models.Location
}

// Locate returns a copy of the fixed location
func (l FixedLocator) Locate(ctx context.Context) (*models.Location, error) {
	loc := l.Location
	if loc.Address != nil {
		addr := *loc.Address
		loc.Address = &addr
	}
	return &loc, nil
}

// Archiver keeps a copy of alerts before they are pruned
type Archiver interface {
	Archive(ctx context.Context, alerts []models.Alert) error
}

// AlertService handles the alert lifecycle and its two notification channels
type AlertService struct {
	alertRepo    *repository.AlertRepository
	responseRepo *repository.ResponseRepository
	session      SessionReader
	locator      Locator
	archiver     Archiver

	alerts    *Broker[models.Alert]
	responses *Broker[models.Response]

	now func() time.Time
}

// NewAlertService creates a new alert service. session and locator may be nil.
func NewAlertService(
	alertRepo *repository.AlertRepository,
	responseRepo *repository.ResponseRepository,
	session SessionReader,
	locator Locator,
) *AlertService {
	return &AlertService{
		alertRepo:    alertRepo,
		responseRepo: responseRepo,
		session:      session,
		locator:      locator,
		alerts:       NewBroker[models.Alert]("alerts", models.Alert.Clone),
		responses:    NewBroker[models.Response]("responses", nil),
		now:          time.Now,
	}
}

// SetArchiver makes PruneOlderThan archive alerts before removing them
func (s *AlertService) SetArchiver(archiver Archiver) {
	s.archiver = archiver
}

// Emit satisfies Trigger
func (s *AlertService) Emit(ctx context.Context, alertType models.AlertType, message string) (string, error) {
	return s.Broadcast(ctx, alertType, message)
}

// originator resolves who is raising the alert: the acting user in ctx,
// then the process session, then an anonymous placeholder. A context marked
// with WithAnonymous never falls back to the session.
func (s *AlertService) originator(ctx context.Context) (string, string) {
	user, scoped := actorFromContext(ctx)
	if !scoped && s.session != nil {
		user = s.session.CurrentUser()
	}

	name, phone := anonymousName, unknownPhone
	if user != nil {
		if user.Name != "" {
			name = user.Name
		}
		if user.Phone != "" {
			phone = user.Phone
		}
	}
	return name, phone
}

func (s *AlertService) location(ctx context.Context) *models.Location {
	if s.locator == nil {
		return nil
	}
	loc, err := s.locator.Locate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve location")
		return nil
	}
	return loc
}

// Broadcast persists a new active alert at the head of the collection and,
// once the write succeeded, notifies every alert subscriber asynchronously.
func (s *AlertService) Broadcast(ctx context.Context, alertType models.AlertType, message string) (string, error) {
	if !alertType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAlertType, alertType)
	}
	if message == "" {
		message = DefaultMessage(alertType)
	}

	name, phone := s.originator(ctx)
	now := s.now().UTC()

	alert := models.Alert{
		ID:           newID("alert", now),
		Type:         alertType,
		PilgrimName:  name,
		PilgrimPhone: phone,
		Location:     s.location(ctx),
		Timestamp:    now,
		Message:      message,
		Status:       models.AlertStatusActive,
	}

	if err := s.alertRepo.Prepend(ctx, alert); err != nil {
		return "", storageErr("store alert", err)
	}

	log.Info().
		Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("pilgrim_phone", alert.PilgrimPhone).
		Msg("Alert broadcast")

	s.alerts.Publish(alert.Clone())

	return alert.ID, nil
}

// Acknowledge moves an active alert to acknowledged, records the response and
// notifies response subscribers. The status change and the response are
// stored together. Acknowledging a non-active alert does nothing.
func (s *AlertService) Acknowledge(ctx context.Context, alertID, responderName, responderPhone string) error {
	_, response, err := s.alertRepo.UpdateWithResponse(ctx, s.responseRepo, alertID, func(alert *models.Alert) *models.Response {
		if alert.Status != models.AlertStatusActive {
			return nil
		}
		by := responderName
		alert.Status = models.AlertStatusAcknowledged
		alert.AcknowledgedBy = &by
		return &models.Response{
			VolunteerName:  responderName,
			VolunteerPhone: responderPhone,
			AlertID:        alertID,
			Timestamp:      s.now().UTC(),
			Message:        acknowledgment,
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownAlert
		}
		return storageErr("acknowledge alert", err)
	}
	if response == nil {
		log.Debug().Str("alert_id", alertID).Msg("Alert already handled, acknowledgment ignored")
		return nil
	}

	log.Info().
		Str("alert_id", alertID).
		Str("volunteer_phone", responderPhone).
		Msg("Alert acknowledged")

	s.responses.Publish(*response)

	return nil
}

// Resolve marks an existing alert as resolved; no notification is sent
func (s *AlertService) Resolve(ctx context.Context, alertID string) error {
	_, changed, err := s.alertRepo.Update(ctx, alertID, func(alert *models.Alert) bool {
		if alert.Status == models.AlertStatusResolved {
			return false
		}
		alert.Status = models.AlertStatusResolved
		return true
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownAlert
		}
		return storageErr("resolve alert", err)
	}
	if changed {
		log.Info().Str("alert_id", alertID).Msg("Alert resolved")
	}
	return nil
}

// AllAlerts returns every alert, newest first; a read failure yields an empty list
func (s *AlertService) AllAlerts(ctx context.Context) []models.Alert {
	alerts, err := s.alertRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list alerts")
		return []models.Alert{}
	}
	return alerts
}

// ActiveAlerts returns the alerts still waiting for a volunteer
func (s *AlertService) ActiveAlerts(ctx context.Context) []models.Alert {
	all := s.AllAlerts(ctx)
	active := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if a.Status == models.AlertStatusActive {
			active = append(active, a)
		}
	}
	return active
}

// AlertByID retrieves a single alert
func (s *AlertService) AlertByID(ctx context.Context, alertID string) (*models.Alert, error) {
	alerts, err := s.alertRepo.List(ctx)
	if err != nil {
		return nil, storageErr("list alerts", err)
	}
	for _, a := range alerts {
		if a.ID == alertID {
			return &a, nil
		}
	}
	return nil, ErrUnknownAlert
}

// AllResponses returns every volunteer response, newest first; a read failure yields an empty list
func (s *AlertService) AllResponses(ctx context.Context) []models.Response {
	responses, err := s.responseRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list responses")
		return []models.Response{}
	}
	return responses
}

// SubscribeAlerts registers handler for every future broadcast
func (s *AlertService) SubscribeAlerts(handler func(models.Alert)) Unsubscribe {
	return s.alerts.Subscribe(handler)
}

// SubscribeResponses registers handler for every future acknowledgment
func (s *AlertService) SubscribeResponses(handler func(models.Response)) Unsubscribe {
	return s.responses.Subscribe(handler)
}

// PruneOlderThan removes alerts created more than maxAge ago without notifying
// anyone. When an archiver is set the removed alerts are archived first and an
// archive failure leaves the collection untouched.
func (s *AlertService) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)

	var archiveErr error
	var beforeWrite func([]models.Alert) error
	if s.archiver != nil {
		beforeWrite = func(removed []models.Alert) error {
			archiveErr = s.archiver.Archive(ctx, removed)
			return archiveErr
		}
	}

	removed, err := s.alertRepo.RemoveOlderThan(ctx, cutoff, beforeWrite)
	if err != nil {
		if archiveErr != nil {
			return 0, fmt.Errorf("failed to archive pruned alerts: %w", archiveErr)
		}
		return 0, storageErr("prune alerts", err)
	}

	if len(removed) > 0 {
		log.Info().
			Int("removed", len(removed)).
			Time("cutoff", cutoff).
			Msg("Old alerts pruned")
	}
	return len(removed), nil
}

// Flush waits until every notification published so far has been delivered
func (s *AlertService) Flush() {
	s.alerts.Flush()
	s.responses.Flush()
}

// Close delivers pending notifications and stops both channels
func (s *AlertService) Close() {
	s.alerts.Close()
	s.responses.Close()
}
