package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JamesPrial/mcp-registry-gateway/internal/admin"
	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway. Clients submit JSON-RPC requests to POST /message and read
responses and registry change events from GET /sse; GET /events streams change events only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), settings, "http")
		},
	}
	cmd.Flags().String("address", "", "Address to listen on, e.g. :8080 (overrides gateway.host and gateway.port)")
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		panic(fmt.Sprintf("failed to bind address flag: %v", err))
	}
	return cmd
}

func newStdioCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve JSON-RPC over stdin and stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(v)
			if err != nil {
				return err
			}
			// stdout carries the protocol
			if settings.Logging.Output == logging.LogOutputStdout {
				settings.Logging.Output = logging.LogOutputStderr
			}
			return run(cmd.Context(), settings, "stdio")
		},
	}
}

// newHTTPGateway builds the HTTP transport with the admin and registry write routes mounted
func newHTTPGateway(g *gateway) (*transport.HTTPTransport, error) {
	tr, err := transport.NewFactory(g.settings, g.dependencies()).CreateTransport("http")
	if err != nil {
		return nil, err
	}
	httpTr, ok := tr.(*transport.HTTPTransport)
	if !ok {
		return nil, fmt.Errorf("unexpected transport %T", tr)
	}
	adm := admin.NewAdminServer(g.store, httpTr.Sessions(), version).WithRegistrar(g.registry)
	httpTr.Mount(adm.Register)
	return httpTr, nil
}

func run(parent context.Context, settings *config.Settings, kind string) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := logging.Initialize(settings.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Shutdown() }()
	logger := logging.GetGlobalLogger("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := newGateway(ctx, settings)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize gateway", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Error("Failed to close store", slog.String("error", err.Error()))
		}
	}()

	var tr transport.Transport
	if kind == "stdio" {
		tr, err = transport.NewFactory(settings, g.dependencies()).CreateTransport(kind)
	} else {
		tr, err = newHTTPGateway(g)
	}
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Starting registry gateway",
		slog.String("transport", tr.Name()),
		slog.String("version", version),
	)
	if err := tr.Start(ctx, g.dispatcher); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Registry gateway stopped")
	return nil
}
