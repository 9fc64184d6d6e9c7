// Package events publishes gateway presence and Home Assistant automation
// discovery to the MQTT broker. Publishing is strictly best-effort: a broker
// failure is logged and never propagates into the signaling or playback paths.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sebas/bellbridge/internal/config"
)

// Publisher publishes status and discovery messages for the gateway and its
// devices. A nil Publisher is valid and publishes nothing, covering setups
// without a broker.
type Publisher struct {
	client mqtt.Client
	cfg    config.MQTTConfig
}

// Connect dials the broker and registers a last-will that marks the gateway
// offline if the connection drops.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(fmt.Sprintf("%s-%s", cfg.UniqueID, uuid.NewString()[:8])).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(10 * time.Second).
		SetWill(cfg.Topic+"/status", "offline", 0, true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.BrokerURL())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &Publisher{client: client, cfg: cfg}, nil
}

// ServerOnline publishes the retained online status and the gateway's Home
// Assistant binary_sensor discovery descriptor.
func (p *Publisher) ServerOnline() {
	if p == nil {
		return
	}
	p.publish(p.cfg.Topic+"/status", "online", true)

	payload, err := json.Marshal(serverDiscovery(p.cfg))
	if err != nil {
		slog.Error("[Events] Failed to build server discovery payload", "error", err)
		return
	}
	p.publish(fmt.Sprintf("%s/binary_sensor/%s/config", p.cfg.HAPrefix, p.cfg.Topic), string(payload), true)
}

// DeviceReady publishes the retained ready status for a device.
func (p *Publisher) DeviceReady(key string) {
	if p == nil {
		return
	}
	p.publish(deviceStatusTopic(p.cfg.Topic, key), "ready", true)
}

// DeviceDiscovery publishes the retained device-automation trigger descriptor
// for a device.
func (p *Publisher) DeviceDiscovery(key, name string) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(deviceDiscovery(p.cfg, key, name))
	if err != nil {
		slog.Error("[Events] Failed to build device discovery payload", "key", key, "error", err)
		return
	}
	topic := fmt.Sprintf("%s/device_automation/%s/doorbell_%s/config", p.cfg.HAPrefix, p.cfg.Topic, key)
	p.publish(topic, string(payload), true)
}

// ButtonPressed publishes the non-retained pressed status for a device.
func (p *Publisher) ButtonPressed(key string) {
	if p == nil {
		return
	}
	p.publish(deviceStatusTopic(p.cfg.Topic, key), "pressed", false)
}

// Close marks the gateway offline and disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	token := p.client.Publish(p.cfg.Topic+"/status", 0, true, "offline")
	token.WaitTimeout(2 * time.Second)
	p.client.Disconnect(250)
}

func (p *Publisher) publish(topic, payload string, retain bool) {
	token := p.client.Publish(topic, 0, retain, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Error("[Events] Failed to publish", "topic", topic, "error", err)
		}
	}()
}

func deviceStatusTopic(base, key string) string {
	return fmt.Sprintf("%s/doorbells/%s/status", base, key)
}

// haDevice identifies the owning device in a discovery payload.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Name         string   `json:"name"`
}

// serverDiscoveryPayload is the gateway's binary_sensor descriptor.
type serverDiscoveryPayload struct {
	Name       string   `json:"name"`
	ObjectID   string   `json:"object_id"`
	Device     haDevice `json:"device"`
	StateTopic string   `json:"state_topic"`
	PayloadOn  string   `json:"payload_on"`
	PayloadOff string   `json:"payload_off"`
	UniqueID   string   `json:"unique_id"`
}

// deviceDiscoveryPayload is a device's automation trigger descriptor.
type deviceDiscoveryPayload struct {
	Name           string   `json:"name"`
	AutomationType string   `json:"automation_type"`
	Type           string   `json:"type"`
	Subtype        string   `json:"subtype"`
	Device         haDevice `json:"device"`
	Payload        string   `json:"payload"`
	Topic          string   `json:"topic"`
	UniqueID       string   `json:"unique_id"`
}

func serverDiscovery(cfg config.MQTTConfig) serverDiscoveryPayload {
	return serverDiscoveryPayload{
		Name:     "Doorbell Gateway",
		ObjectID: "doorbell_gateway",
		Device: haDevice{
			Name:        "Doorbell Gateway",
			Identifiers: []string{cfg.UniqueID},
		},
		StateTopic: cfg.Topic + "/status",
		PayloadOn:  "online",
		PayloadOff: "offline",
		UniqueID:   cfg.UniqueID,
	}
}

func deviceDiscovery(cfg config.MQTTConfig, key, name string) deviceDiscoveryPayload {
	id := fmt.Sprintf("%s_doorbell_%s", cfg.UniqueID, key)
	return deviceDiscoveryPayload{
		Name:           key,
		AutomationType: "trigger",
		Type:           "button_short_press",
		Subtype:        "doorbell",
		Device: haDevice{
			Identifiers:  []string{id},
			Manufacturer: "hikvision",
			Name:         name,
		},
		Payload:  "pressed",
		Topic:    deviceStatusTopic(cfg.Topic, key),
		UniqueID: id,
	}
}
