package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"drasimcp/internal/bootstrap"
	"drasimcp/internal/config"
)

// Exit codes for CLI commands. These follow common conventions so
// supervisors and scripts can tell a bad configuration from a crash.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a runtime failure, such as a listener
	// crash.
	ExitCodeError = 1
	// ExitCodeConfig indicates the reaction could not start: invalid
	// configuration or a failed query bootstrap. Restarting without a
	// change will fail the same way.
	ExitCodeConfig = 2
)

// rootCmd represents the base command for the drasimcp application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "drasimcp",
	Short: "Serve continuous query results over the Model Context Protocol",
	Long: `drasimcp is a Drasi reaction that mirrors the live results of
continuous queries and exposes them to MCP clients as resources and
tools, with update notifications as changes stream in.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
// This can be used by other commands to access the build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It runs the root command and exits the process with a semantic code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "drasimcp version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error
// type. Configuration and bootstrap failures are permanent until the
// configuration changes; everything else is a runtime failure.
func getExitCode(err error) int {
	var (
		validationErrs config.ValidationErrors
		validationErr  config.ValidationError
		loadErr        *config.LoadError
		queryFileErr   *config.QueryFileError
		bootstrapErr   *bootstrap.Error
	)
	switch {
	case errors.As(err, &validationErrs),
		errors.As(err, &validationErr),
		errors.As(err, &loadErr),
		errors.As(err, &queryFileErr),
		errors.As(err, &bootstrapErr):
		return ExitCodeConfig
	}
	return ExitCodeError
}

// init is a special Go function that is executed when the package is initialized.
// It is used here to add subcommands to the root command.
func init() {
	rootCmd.AddCommand(newVersionCmd())
}
