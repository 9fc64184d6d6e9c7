package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the gateway configuration, loaded from a TOML file.
type Config struct {
	Server    ServerConfig              `toml:"server"`
	MQTT      MQTTConfig                `toml:"mqtt"`
	Doorbells map[string]DoorbellConfig `toml:"doorbell"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	HTTPPort int    `toml:"http_port"`
	SIPPort  int    `toml:"sip_port"`
	LogLevel string `toml:"log_level"`
}

// MQTTConfig holds broker settings for the presence/automation publisher
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
	HAPrefix string `toml:"ha_prefix"`
	UniqueID string `toml:"unique_id"`
	Protocol string `toml:"protocol"`
}

// DoorbellConfig holds per-device address, credentials and outgoing audio shape
type DoorbellConfig struct {
	Name               string `toml:"name"`
	User               string `toml:"user"`
	Password           string `toml:"password"`
	Address            string `toml:"address"`
	OutgoingSampleRate int    `toml:"outgoing_sample_rate"`
	PacketSize         int    `toml:"packet_size"`
}

// Load reads and validates the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort: 8080,
			SIPPort:  5060,
			LogLevel: "info",
		},
		MQTT: MQTTConfig{
			Port:     1883,
			HAPrefix: "homeassistant",
			Protocol: "tcp",
		},
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides
	if level := os.Getenv("LOGLEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.SIPPort <= 0 || c.Server.SIPPort > 65535 {
		return fmt.Errorf("server.sip_port %d out of range", c.Server.SIPPort)
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	if len(c.Doorbells) == 0 {
		return fmt.Errorf("no doorbells configured")
	}
	for key, db := range c.Doorbells {
		if db.Address == "" {
			return fmt.Errorf("doorbell.%s: address is required", key)
		}
		u, err := url.Parse(db.Address)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("doorbell.%s: address %q is not a valid URL", key, db.Address)
		}
		if db.OutgoingSampleRate <= 0 {
			db.OutgoingSampleRate = 8000
		}
		if db.PacketSize <= 0 {
			db.PacketSize = 320
		}
		c.Doorbells[key] = db
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when a broker is configured")
		}
		if c.MQTT.UniqueID == "" {
			return fmt.Errorf("mqtt.unique_id is required when a broker is configured")
		}
	}
	return nil
}

// BrokerURL returns the broker address in the form the MQTT client expects
func (c *MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Broker, c.Port)
}
