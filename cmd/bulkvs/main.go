// Command bulkvs manages the local BulkVS cache and sync engine.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/config"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/db"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/provider"
	bulkvssync "github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bulkvs",
	Short: "BulkVS number and E911 cache management",
	Long: `Synchronize BulkVS telephone numbers and E911 records into a local
SQLite cache so interactive pages never block on the provider API.

Configuration comes from bulkvs.yaml (or --config) with BULKVS_*
environment overrides.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: bulkvs.yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration or exits with an error message.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openService wires the database, provider client and sync service from
// configuration. The caller must Close the returned database.
func openService(cfg *config.Config, logger *log.Logger) (*db.DB, bulkvssync.Service) {
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cache database: %v\n", err)
		os.Exit(1)
	}

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	client := provider.NewHTTPClient(provider.Config{
		BaseURL:    cfg.APIURL,
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		HTTPSecret: cfg.HTTPSecret,
		Logger:     logger,
	})

	return database, bulkvssync.New(database, client, logger)
}
