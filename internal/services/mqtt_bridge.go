package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shakti-alert-backend/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const mqttTokenTimeout = 5 * time.Second

// MQTTClient is the subset of mqtt.Client used by the bridge
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// TriggerMessage is the payload accepted on the triggers topic
type TriggerMessage struct {
	Type    models.AlertType `json:"type"`
	Message string           `json:"message,omitempty"`
	Name    string           `json:"name,omitempty"`
	Phone   string           `json:"phone,omitempty"`
}

// MQTTBridge connects the alert service to an MQTT broker: external detectors
// raise alerts by publishing on <prefix>/triggers, and every alert and
// response is republished on <prefix>/alerts and <prefix>/responses.
type MQTTBridge struct {
	client  MQTTClient
	trigger Trigger
	prefix  string
	qos     byte
	unsubs  []Unsubscribe
}

// NewMQTTBridge creates a new MQTT bridge
func NewMQTTBridge(client MQTTClient, trigger Trigger, prefix string, qos byte) *MQTTBridge {
	return &MQTTBridge{
		client:  client,
		trigger: trigger,
		prefix:  prefix,
		qos:     qos,
	}
}

func (b *MQTTBridge) topic(name string) string {
	return b.prefix + "/" + name
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTokenTimeout) {
		return fmt.Errorf("timed out after %s", mqttTokenTimeout)
	}
	return token.Error()
}

// Start subscribes to the triggers topic and to both alert service channels
func (b *MQTTBridge) Start(source AlertSource) error {
	topic := b.topic("triggers")
	if err := waitToken(b.client.Subscribe(topic, b.qos, b.onTrigger)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	b.unsubs = append(b.unsubs,
		source.SubscribeAlerts(func(alert models.Alert) {
			b.publish("alerts", alert)
		}),
		source.SubscribeResponses(func(response models.Response) {
			b.publish("responses", response)
		}),
	)

	log.Info().Str("topic", topic).Msg("MQTT bridge started")
	return nil
}

// Stop detaches from the alert service and unsubscribes from the broker
func (b *MQTTBridge) Stop() {
	for _, unsubscribe := range b.unsubs {
		unsubscribe()
	}
	b.unsubs = nil

	if err := waitToken(b.client.Unsubscribe(b.topic("triggers"))); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe MQTT triggers topic")
	}
}

func (b *MQTTBridge) publish(name string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", b.topic(name)).Msg("Failed to encode MQTT event")
		return
	}
	if err := waitToken(b.client.Publish(b.topic(name), b.qos, false, data)); err != nil {
		log.Error().Err(err).Str("topic", b.topic(name)).Msg("Failed to publish MQTT event")
	}
}

func (b *MQTTBridge) onTrigger(_ mqtt.Client, msg mqtt.Message) {
	var trigger TriggerMessage
	if err := json.Unmarshal(msg.Payload(), &trigger); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic()).Msg("Invalid trigger payload")
		return
	}

	ctx := WithAnonymous(context.Background())
	if trigger.Name != "" || trigger.Phone != "" {
		ctx = WithUser(ctx, &models.User{Name: trigger.Name, Phone: trigger.Phone})
	}

	alertID, err := b.trigger.Emit(ctx, trigger.Type, trigger.Message)
	if err != nil {
		log.Error().
			Err(err).
			Str("type", string(trigger.Type)).
			Msg("Failed to raise alert from MQTT trigger")
		return
	}

	log.Info().
		Str("alert_id", alertID).
		Str("topic", msg.Topic()).
		Msg("Alert raised from MQTT trigger")
}
