package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drasimcp/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent suppresses all log output. Useful when another process
// captures the standard streams.
var serveSilent bool

// serveConfigPath specifies a custom configuration directory path.
// The directory should contain config.yaml and a queries/ subdirectory.
var serveConfigPath string

// serveCmd defines the serve command structure. This is the main
// command of drasimcp: it bootstraps every configured query from its
// current view and then serves both listeners until terminated.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reaction: ingest change events and serve MCP clients",
	Long: `Starts the reaction process with its two listeners:

  - the change-event listener (appPort) accepting envelope POSTs from
    the Drasi event transport, and
  - the MCP listener (mcpServerPort) serving resources, tools, and
    update notifications to MCP clients over streamable HTTP.

On startup every configured query is bootstrapped from the view
service; the MCP listener only opens once all queries are initialized.
Under systemd the process signals READY=1 after the bootstrap and
STOPPING=1 on shutdown.

Configuration:
  drasimcp loads config.yaml and a queries/ directory from
  /etc/drasimcp by default. Use --config-path or DRASIMCP_CONFIG_PATH
  to point at another directory. Process-level settings can be
  overridden with REACTION_NAME, APP_PORT, MCP_SERVER_PORT,
  MANAGEMENT_URL, and VIEW_SERVICE_URL.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Config{
		Debug:      serveDebug,
		Silent:     serveSilent,
		ConfigPath: serveConfigPath,
		Version:    GetVersion(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

// init registers the serve command and its flags with the root command.
// This is called automatically when the package is imported.
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
