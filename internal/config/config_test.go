package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
http_port = 9090
sip_port = 5070
log_level = "debug"

[mqtt]
broker = "mqtt.local"
port = 8883
username = "gateway"
password = "secret"
topic = "bellbridge"
ha_prefix = "ha"
unique_id = "bellbridge-1"
protocol = "ssl"

[doorbell.frontdoor]
name = "Front Door"
user = "admin"
password = "hunter2"
address = "http://192.168.1.20"
outgoing_sample_rate = 16000
packet_size = 640
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 5070, cfg.Server.SIPPort)
	assert.Equal(t, "debug", cfg.Server.LogLevel)

	assert.Equal(t, "ssl://mqtt.local:8883", cfg.MQTT.BrokerURL())
	assert.Equal(t, "bellbridge", cfg.MQTT.Topic)
	assert.Equal(t, "ha", cfg.MQTT.HAPrefix)

	db, ok := cfg.Doorbells["frontdoor"]
	require.True(t, ok)
	assert.Equal(t, "Front Door", db.Name)
	assert.Equal(t, 16000, db.OutgoingSampleRate)
	assert.Equal(t, 640, db.PacketSize)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[doorbell.frontdoor]
name = "Front Door"
user = "admin"
password = "hunter2"
address = "http://192.168.1.20"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 5060, cfg.Server.SIPPort)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "tcp://:1883", cfg.MQTT.BrokerURL())

	db := cfg.Doorbells["frontdoor"]
	assert.Equal(t, 8000, db.OutgoingSampleRate)
	assert.Equal(t, 320, db.PacketSize)
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv("LOGLEVEL", "warn")

	path := writeConfig(t, `
[server]
log_level = "debug"

[doorbell.frontdoor]
address = "http://192.168.1.20"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadBadTOML(t *testing.T) {
	path := writeConfig(t, `[server`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "no doorbells",
			body:    `[server]`,
			wantErr: "no doorbells configured",
		},
		{
			name: "sip port out of range",
			body: `
[server]
sip_port = 70000
[doorbell.a]
address = "http://192.168.1.20"
`,
			wantErr: "sip_port",
		},
		{
			name: "missing address",
			body: `
[doorbell.a]
name = "A"
`,
			wantErr: "address is required",
		},
		{
			name: "address without scheme",
			body: `
[doorbell.a]
address = "192.168.1.20"
`,
			wantErr: "not a valid URL",
		},
		{
			name: "broker without topic",
			body: `
[mqtt]
broker = "mqtt.local"
unique_id = "x"
[doorbell.a]
address = "http://192.168.1.20"
`,
			wantErr: "mqtt.topic is required",
		},
		{
			name: "broker without unique id",
			body: `
[mqtt]
broker = "mqtt.local"
topic = "bellbridge"
[doorbell.a]
address = "http://192.168.1.20"
`,
			wantErr: "mqtt.unique_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
