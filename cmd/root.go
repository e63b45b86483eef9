// Package cmd implements the analyst command-line interface: the worker
// loop, replica sync, QA auditing, one-shot ingestion and migrations.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
	"github.com/jonesrussell/analyst/cmd/ingestcmd"
	"github.com/jonesrussell/analyst/cmd/migratecmd"
	"github.com/jonesrussell/analyst/cmd/qacmd"
	"github.com/jonesrussell/analyst/cmd/synccmd"
	"github.com/jonesrussell/analyst/cmd/worker"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "Topic knowledge graph with an LLM analysis pipeline",
	Long: `analyst ingests news content into a topic knowledge graph, keeps
per-topic narrative analysis fresh through a multi-agent pipeline, and
reconciles the local replica against the authoritative cloud copy.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&common.ConfigPath, "config", "",
		"config file (default config.yml, or CONFIG_PATH)")

	rootCmd.AddCommand(
		worker.Command(),
		synccmd.Command(),
		qacmd.Command(),
		ingestcmd.Command(),
		migratecmd.Command(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(*cobra.Command, []string) {
				fmt.Printf("analyst version %s\n", version)
			},
		},
	)
}
