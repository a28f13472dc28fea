package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JamesPrial/mcp-registry-gateway/internal/dispatcher"
	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/internal/mailbox"
	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/internal/registry"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// gateway holds the wired components of one process
type gateway struct {
	settings   *config.Settings
	store      storage.Backend
	bus        notify.Bus
	events     *eventlog.Log
	registry   *registry.StoreRegistry
	mailbox    *mailbox.StoreMailbox
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

func newGateway(ctx context.Context, settings *config.Settings) (*gateway, error) {
	logger := logging.GetGlobalLogger("main")

	store, err := storage.NewBackend(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	var bus notify.Bus = notify.NopBus{}
	if settings.Notify.Enabled {
		bus = notify.NewWatermillBus(settings.Notify.BufferSize)
	}

	events := eventlog.New(store,
		eventlog.WithBus(bus),
		eventlog.WithRetention(settings.Events.Retention),
	)
	reg := registry.NewStoreRegistry(store, events)

	g := &gateway{
		settings: settings,
		store:    store,
		bus:      bus,
		events:   events,
		registry: reg,
		mailbox:  mailbox.NewStoreMailbox(store, bus, settings.Gateway.MailboxTTL),
		logger:   logger,
	}

	if settings.SeedPath != "" {
		if _, err := reg.Seed(ctx, settings.SeedPath); err != nil {
			_ = g.Close()
			return nil, err
		}
	}

	d, err := dispatcher.New(reg, dispatcher.Info{Name: "mcp-registry-gateway", Version: version})
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	g.dispatcher = d

	logger.InfoContext(ctx, "Gateway initialized",
		slog.String("storage", settings.Storage.Type),
		slog.Bool("notify", settings.Notify.Enabled),
		slog.Duration("retention", settings.Events.Retention),
	)
	return g, nil
}

func (g *gateway) dependencies() transport.Dependencies {
	return transport.Dependencies{
		Events:  g.events,
		Mailbox: g.mailbox,
		Bus:     g.bus,
	}
}

// Close releases the bus, then the store
func (g *gateway) Close() error {
	if err := g.bus.Close(); err != nil {
		g.logger.Warn("Failed to close notification bus", slog.String("error", err.Error()))
	}
	return g.store.Close()
}
