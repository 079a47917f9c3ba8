package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"drasimcp/internal/config"
	"drasimcp/pkg/logging"
	pkgstrings "drasimcp/pkg/strings"
)

// queriesConfigPath specifies a custom configuration directory path.
var queriesConfigPath string

// queriesCmd prints the configured continuous queries as a table. It
// loads and validates the same configuration the serve command would,
// so it doubles as a dry run for configuration changes.
var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List the configured continuous queries",
	Args:  cobra.NoArgs,
	RunE:  runQueries,
}

// runQueries loads the configuration and renders the query table.
func runQueries(cmd *cobra.Command, args []string) error {
	// Only warnings and errors; the table is the output.
	logging.InitForCLI(logging.LevelWarn, os.Stderr)

	configPath := queriesConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"QUERY ID", "KEY FIELD", "CONTENT TYPE", "DESCRIPTION"})
	for _, query := range cfg.Queries {
		t.AppendRow(table.Row{
			query.QueryID,
			query.KeyField,
			query.ResourceContentType,
			pkgstrings.TruncateDescription(query.Description, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	t.Render()
	return nil
}

// init registers the queries command and its flags with the root command.
func init() {
	rootCmd.AddCommand(queriesCmd)

	queriesCmd.Flags().StringVar(&queriesConfigPath, "config-path", "", "Custom configuration directory path")
}
