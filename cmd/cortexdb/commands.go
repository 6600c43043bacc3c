// Package main provides the CLI entry point for the CortexDB gateway.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the gateway.
// This is the primary command for running CortexDB in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CortexDB gateway",
		Long: `Start the CortexDB gateway with all three stores attached.

The server will:
1. Load configuration from the specified file (or cortexdb.yaml)
2. Connect to PostgreSQL and apply pending migrations
3. Connect to Qdrant and MinIO
4. Ensure an admin API key exists (generating one on first start)
5. Serve the HTTP API with Prometheus metrics on /metrics

SIGINT and SIGTERM trigger a graceful drain before exit.`,
		Example: `  # Default config (./cortexdb.yaml)
  cortexdb serve

  # Explicit config path
  cortexdb serve --config /etc/cortexdb/production.yaml

  # Verbose logging
  cortexdb serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"YAML config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Log at debug level")

	return cmd
}

// =============================================================================
// Migration Commands
// =============================================================================

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the embedded control-plane migrations.

Migrations create the catalog tables (databases, collections, embedding
providers, API keys). Collection record tables are compiled from schemas
at runtime and are not part of the migration set.`,
	}

	cmd.AddCommand(buildMigrateUpCmd())
	cmd.AddCommand(buildMigrateStatusCmd())

	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long: `Apply every catalog migration not yet recorded in schema_migrations.

Migrations are embedded in the binary and run in filename order, each in
its own transaction. Running against an up-to-date database is a no-op.`,
		Example: `  cortexdb migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrateUp(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to config file")

	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Long:  `Print each embedded migration with whether it has been applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrateStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to config file")

	return cmd
}

// =============================================================================
// Key Commands
// =============================================================================

// buildKeysCmd creates the "keys" command group.
func buildKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long: `Manage API keys outside the HTTP API.

Day-to-day key management goes through the /api-keys endpoints with an
admin key. This group covers the chicken-and-egg case: a fresh deployment
that has no admin key to authenticate with yet.`,
	}

	cmd.AddCommand(buildKeysBootstrapCmd())

	return cmd
}

func buildKeysBootstrapCmd() *cobra.Command {
	var (
		configPath string
		key        string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Ensure an admin API key exists",
		Long: `Ensure at least one enabled admin API key exists.

When the api_keys table already holds an enabled admin key this is a
no-op. Otherwise the key given with --key (or auth.bootstrap_key in the
config, usually ${CORTEXDB_ADMIN_KEY}) is installed; with neither set, a
fresh key is generated and printed exactly once.`,
		Example: `  # Generate and print a first admin key
  cortexdb keys bootstrap

  # Install a pre-shared admin key
  cortexdb keys bootstrap --key "$CORTEXDB_ADMIN_KEY"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runKeysBootstrap(cmd, configPath, key)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to config file")
	cmd.Flags().StringVar(&key, "key", "", "Admin key to install (overrides auth.bootstrap_key)")

	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cortexdb %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			return nil
		},
	}
}
