// Package app wires the gateway together: device registry, signaling server,
// administrative API and the presence publisher.
package app

import (
	"fmt"
	"log/slog"

	"github.com/sebas/bellbridge/internal/api"
	"github.com/sebas/bellbridge/internal/config"
	"github.com/sebas/bellbridge/internal/doorbell"
	"github.com/sebas/bellbridge/internal/events"
	"github.com/sebas/bellbridge/internal/isapi"
	"github.com/sebas/bellbridge/internal/signaling"
)

// Gateway is the assembled doorbell gateway.
type Gateway struct {
	cfg      *config.Config
	registry *doorbell.Registry
	events   *events.Publisher
	sip      *signaling.Server
	api      *api.Server
}

// New builds the gateway from configuration: one controller per configured
// device, the SIP server on the signaling port and the admin API on the HTTP
// port.
func New(cfg *config.Config) (*Gateway, error) {
	var publisher *events.Publisher
	if cfg.MQTT.Broker != "" {
		var err error
		publisher, err = events.Connect(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect MQTT publisher: %w", err)
		}
	} else {
		slog.Warn("[App] No MQTT broker configured, presence publishing disabled")
	}

	registry := doorbell.NewRegistry()
	for key, dc := range cfg.Doorbells {
		client, err := isapi.NewClient(dc.Address, dc.User, dc.Password)
		if err != nil {
			return nil, fmt.Errorf("doorbell.%s: %w", key, err)
		}
		registry.Add(key, doorbell.NewController(key, dc, client, publisher))
		slog.Info("[App] Loaded doorbell", "key", key, "name", dc.Name, "address", dc.Address)
	}

	return &Gateway{
		cfg:      cfg,
		registry: registry,
		events:   publisher,
		sip:      signaling.NewServer(cfg.Server.SIPPort, &sipDirectory{registry}),
		api:      api.NewServer(fmt.Sprintf("0.0.0.0:%d", cfg.Server.HTTPPort), &apiDirectory{registry}),
	}, nil
}

// Start brings up the signaling and API servers and announces the gateway on
// the broker. It returns once everything is listening.
func (g *Gateway) Start() error {
	if err := g.sip.Start(); err != nil {
		return err
	}

	go func() {
		if err := g.api.Start(); err != nil {
			slog.Error("[App] API server error", "error", err)
		}
	}()

	g.events.ServerOnline()
	return nil
}

// Close stops the servers and marks the gateway offline.
func (g *Gateway) Close() {
	if err := g.sip.Stop(); err != nil {
		slog.Error("[App] Failed to stop SIP server", "error", err)
	}
	if err := g.api.Stop(); err != nil {
		slog.Error("[App] Failed to stop API server", "error", err)
	}
	g.events.Close()
}

// sipDirectory adapts the registry to the signaling layer's view.
type sipDirectory struct {
	reg *doorbell.Registry
}

func (d *sipDirectory) Lookup(name string) (signaling.ButtonPresser, bool) {
	ctrl, ok := d.reg.Lookup(name)
	if !ok {
		return nil, false
	}
	return ctrl, true
}

// apiDirectory adapts the registry to the administrative API's view.
type apiDirectory struct {
	reg *doorbell.Registry
}

func (d *apiDirectory) Lookup(key string) (api.Controller, bool) {
	ctrl, ok := d.reg.Lookup(key)
	if !ok {
		return nil, false
	}
	return ctrl, true
}

func (d *apiDirectory) Keys() []string {
	return d.reg.Keys()
}
