package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/bellbridge/internal/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:   "mqtt.local",
		Port:     1883,
		Topic:    "bellbridge",
		HAPrefix: "homeassistant",
		UniqueID: "bellbridge-1",
		Protocol: "tcp",
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.ServerOnline()
	p.DeviceReady("frontdoor")
	p.DeviceDiscovery("frontdoor", "Front Door")
	p.ButtonPressed("frontdoor")
	p.Close()
}

func TestDeviceStatusTopic(t *testing.T) {
	assert.Equal(t, "bellbridge/doorbells/frontdoor/status", deviceStatusTopic("bellbridge", "frontdoor"))
}

func TestServerDiscoveryPayload(t *testing.T) {
	payload, err := json.Marshal(serverDiscovery(testMQTTConfig()))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))

	assert.Equal(t, "Doorbell Gateway", got["name"])
	assert.Equal(t, "doorbell_gateway", got["object_id"])
	assert.Equal(t, "bellbridge/status", got["state_topic"])
	assert.Equal(t, "online", got["payload_on"])
	assert.Equal(t, "offline", got["payload_off"])
	assert.Equal(t, "bellbridge-1", got["unique_id"])

	device := got["device"].(map[string]any)
	assert.Equal(t, []any{"bellbridge-1"}, device["identifiers"])
}

func TestDeviceDiscoveryPayload(t *testing.T) {
	payload, err := json.Marshal(deviceDiscovery(testMQTTConfig(), "frontdoor", "Front Door"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))

	assert.Equal(t, "frontdoor", got["name"])
	assert.Equal(t, "trigger", got["automation_type"])
	assert.Equal(t, "button_short_press", got["type"])
	assert.Equal(t, "doorbell", got["subtype"])
	assert.Equal(t, "pressed", got["payload"])
	assert.Equal(t, "bellbridge/doorbells/frontdoor/status", got["topic"])
	assert.Equal(t, "bellbridge-1_doorbell_frontdoor", got["unique_id"])

	device := got["device"].(map[string]any)
	assert.Equal(t, "hikvision", device["manufacturer"])
	assert.Equal(t, "Front Door", device["name"])
	assert.Equal(t, []any{"bellbridge-1_doorbell_frontdoor"}, device["identifiers"])
}
