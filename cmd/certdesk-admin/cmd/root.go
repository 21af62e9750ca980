// Package cmd provides the CLI commands for the certdesk admin console.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/certdesk/admin-console/internal/config"
)

var (
	cfgFile      string
	outputFormat string
	ephemeral    bool
	devMode      bool

	// initErr holds a failure from initConfig; cobra's initializers cannot return one.
	initErr error
)

var rootCmd = &cobra.Command{
	Use:   "certdesk-admin",
	Short: "certdesk admin console",
	Long: `certdesk-admin manages users and course applications of a certdesk
deployment through its admin API.

Quick start:
  1. Point it at the API: export CERTDESK_ADMIN_API_BASE_URL=https://api.example.com
  2. Run: certdesk-admin login --email admin@example.com
  3. Run: certdesk-admin dashboard

Configuration:
  Config is loaded from certdesk-admin.yaml in the current directory,
  $HOME/.certdesk-admin/, or /etc/certdesk-admin/, after a .env file in the
  current directory.

  Environment variables can override config values with the CERTDESK_ADMIN_ prefix.
  Example: CERTDESK_ADMIN_SESSION_BACKEND=sqlite

Commands:
  login         Log in and store the session
  logout        End the session
  status        Show the stored session
  whoami        Show the logged-in admin as the API sees it
  dashboard     Show platform counters and recent activity
  users         List, inspect and delete users
  applications  List, inspect, review and delete course applications
  console       Interactive console with live views
  version       Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./certdesk-admin.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep the session in memory only for this invocation")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "enable development mode (debug logging, request traces)")
}

func initConfig() {
	initErr = config.InitViper(cfgFile)
}
