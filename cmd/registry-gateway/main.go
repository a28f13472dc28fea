// Package main is the entry point of the MCP registry gateway.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// EnvPrefix is the prefix of environment overrides, e.g. REGISTRY_GATEWAY_STORAGE_TYPE
const EnvPrefix = "REGISTRY_GATEWAY"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "registry-gateway",
		Short:         "MCP registry gateway",
		Long:          `Serves the MCP tool-server registry over JSON-RPC, with an SSE push channel for responses and registry change events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "Path to configuration file (YAML)")
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.PersistentFlags().String("seed", "", "JSON file of registry records loaded at startup")
	for _, name := range []string{"config", "debug", "seed"} {
		if err := v.BindPFlag(name, root.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", name, err))
		}
	}

	root.AddCommand(newServeCmd(v), newStdioCmd(v), newVersionCmd())
	return root
}

// loadSettings reads the config file, if any, then applies environment and flag overrides
func loadSettings(v *viper.Viper) (*config.Settings, error) {
	var settings *config.Settings
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		settings = loaded
	} else {
		settings = config.Defaults()
	}

	if s := v.GetString("storage.type"); s != "" {
		settings.Storage.Type = s
	}
	if s := v.GetString("storage.path"); s != "" {
		settings.Storage.Path = s
	}
	if s := v.GetString("seed"); s != "" {
		settings.SeedPath = s
	}
	if addr := v.GetString("address"); addr != "" {
		host, port, err := splitAddress(addr)
		if err != nil {
			return nil, err
		}
		settings.Gateway.Host = host
		settings.Gateway.Port = port
	}
	if v.GetBool("debug") {
		settings.Logging.Level = logging.LogLevelDebug
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

func splitAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in address %q: %w", addr, err)
	}
	return host, port, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "registry-gateway %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "registry-gateway: %v\n", err)
		os.Exit(1)
	}
}
