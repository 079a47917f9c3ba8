package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drasimcp/internal/config"
	"drasimcp/internal/console"
	"drasimcp/pkg/logging"
)

// consoleEndpoint is the MCP endpoint to connect to. Empty means the
// endpoint is derived from the local configuration's mcpServerPort.
var consoleEndpoint string

// consoleConfigPath specifies a custom configuration directory path,
// used only to derive the default endpoint.
var consoleConfigPath string

// consoleCmd opens the interactive debug console against a running
// reaction's MCP endpoint.
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for a running reaction's MCP endpoint",
	Long: `Connects to a reaction's MCP endpoint as a client and opens an
interactive prompt for exploring its resources and tools: list and
read query resources, call the per-query result tools, subscribe to
URIs, and watch update notifications arrive live.

Without --endpoint the console connects to localhost on the
mcpServerPort of the local configuration.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

// runConsole resolves the endpoint and enters the command loop.
func runConsole(cmd *cobra.Command, args []string) error {
	// The console prints its own output; logging stays out of the way.
	logging.InitForCLI(logging.LevelError, io.Discard)

	endpoint := consoleEndpoint
	if endpoint == "" {
		endpoint = defaultEndpoint(consoleConfigPath)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := console.New(console.Config{
		Endpoint:      endpoint,
		ClientVersion: GetVersion(),
	})
	return c.Run(ctx)
}

// defaultEndpoint derives the local MCP endpoint from configuration,
// falling back to the built-in default port when none can be loaded.
func defaultEndpoint(configPath string) string {
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	port := config.GetDefaultConfig().MCPServerPort
	if cfg, err := config.LoadConfig(configPath); err == nil {
		port = cfg.MCPServerPort
	}
	return fmt.Sprintf("http://localhost:%d/mcp", port)
}

// init registers the console command and its flags with the root command.
func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().StringVar(&consoleEndpoint, "endpoint", "", "MCP endpoint URL (default derived from configuration)")
	consoleCmd.Flags().StringVar(&consoleConfigPath, "config-path", "", "Custom configuration directory path")
}
