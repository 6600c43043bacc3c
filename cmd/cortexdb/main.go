// Package main provides the CLI entry point for the CortexDB gateway.
//
// CortexDB fronts PostgreSQL, Qdrant and MinIO behind one schema-driven API:
// collections compile to relational tables, vector collections and object
// buckets, and records written once become searchable by meaning.
//
// # Basic Usage
//
// Start the gateway:
//
//	cortexdb serve --config cortexdb.yaml
//
// Manage database migrations:
//
//	cortexdb migrate up
//	cortexdb migrate status
//
// Install the first admin key:
//
//	cortexdb keys bootstrap
//
// # Environment Variables
//
// Configuration values reference environment variables with ${VAR}:
//
//   - CORTEXDB_CONFIG: Path to configuration file (default: cortexdb.yaml)
//   - DATABASE_URL: PostgreSQL connection string
//   - MINIO_ACCESS_KEY / MINIO_SECRET_KEY: Object store credentials
//   - OPENAI_API_KEY: Default embedding provider key
//   - GEMINI_API_KEY: Gemini embeddings and vision extraction key
//   - CORTEXDB_ADMIN_KEY: Admin key installed on first startup
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// defaultConfigName is the config file looked up in the working directory
// when neither --config nor CORTEXDB_CONFIG is set.
const defaultConfigName = "cortexdb.yaml"

func main() {
	// Structured logging with JSON output for production parsing.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortexdb",
		Short: "CortexDB - multi-modal database gateway",
		Long: `CortexDB turns three stores into one database: PostgreSQL holds the
structured fields, Qdrant holds the embeddings, MinIO holds the files.
Define a collection schema once and records become queryable by value
and searchable by meaning through a single API.

Documentation: https://github.com/cortexdb/cortexdb`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildKeysCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// resolveConfigPath applies the CORTEXDB_CONFIG fallback when the flag kept
// its default.
func resolveConfigPath(path string) string {
	if path != "" && path != defaultConfigName {
		return path
	}
	if env := os.Getenv("CORTEXDB_CONFIG"); env != "" {
		return env
	}
	return defaultConfigName
}
