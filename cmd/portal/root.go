package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCommand builds the CLI. Running the bare command serves the portal.
func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "portal",
		Short:         "AC Transporte employee portal",
		Long:          "Serves the AC Transporte portal: offline-capable frontend, driver route broadcasting and the live passenger map.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: built-in defaults plus PORTAL_* environment)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(serve)

	return root
}
