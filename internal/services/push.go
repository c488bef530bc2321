package services

import (
	"context"
	"fmt"

	"shakti-alert-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
)

// Pusher sends one APNs notification; *apns2.Client satisfies it
type Pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// DeviceTokenSource lists the push tokens registered for a role
type DeviceTokenSource interface {
	DeviceTokensForRole(ctx context.Context, role models.Role) []string
}

// PushNotifier sends an APNs alert to every volunteer device on each broadcast
type PushNotifier struct {
	client Pusher
	tokens DeviceTokenSource
	topic  string
	unsub  Unsubscribe
}

// NewPushNotifier creates a new push notifier; topic is the app bundle id
func NewPushNotifier(client Pusher, tokens DeviceTokenSource, topic string) *PushNotifier {
	return &PushNotifier{
		client: client,
		tokens: tokens,
		topic:  topic,
	}
}

// Attach subscribes the notifier to broadcast alerts
func (p *PushNotifier) Attach(source AlertSource) {
	p.unsub = source.SubscribeAlerts(p.onAlert)
}

// Detach stops receiving alerts
func (p *PushNotifier) Detach() {
	if p.unsub != nil {
		p.unsub()
	}
}

func (p *PushNotifier) notification(deviceToken string, alert models.Alert) *apns2.Notification {
	body := payload.NewPayload().
		AlertTitle(fmt.Sprintf("Emergency: %s needs help", alert.PilgrimName)).
		AlertBody(alert.Message).
		Sound("default").
		Custom("alert_id", alert.ID).
		Custom("alert_type", string(alert.Type))

	if alert.Location != nil {
		body.Custom("latitude", alert.Location.Latitude).
			Custom("longitude", alert.Location.Longitude)
	}

	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     body,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
	}
}

func (p *PushNotifier) onAlert(alert models.Alert) {
	tokens := p.tokens.DeviceTokensForRole(context.Background(), models.RoleVolunteer)

	sent := 0
	for _, deviceToken := range tokens {
		res, err := p.client.Push(p.notification(deviceToken, alert))
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to push alert")
			continue
		}
		if !res.Sent() {
			log.Warn().
				Str("alert_id", alert.ID).
				Int("status", res.StatusCode).
				Str("reason", res.Reason).
				Msg("APNs rejected alert push")
			continue
		}
		sent++
	}

	log.Debug().
		Str("alert_id", alert.ID).
		Int("devices", len(tokens)).
		Int("sent", sent).
		Msg("Alert push completed")
}
