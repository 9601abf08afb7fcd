package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the poll/trigger HTTP API",
	Long: `Start the web server the UI layer calls:

  GET /sync?type=numbers|e911      trigger a reconciliation
  GET /sync?type=...&reset=1       acknowledge new data
  GET /sync?type=...&force_reset=1 clear a wedged sync flag
  GET /status?type=numbers|e911    poll snapshot (has_changes, counts)
  GET /numbers?trunk_group=NAME    cached number inventory
  GET /e911                        cached E911 records
  GET /health                      liveness
  WS  /ws                          sync completion events`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var out io.Writer = os.Stderr
		if cfg.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 5,
				MaxAge:     30, // days
			}
		}
		logger := log.New(out, "[bulkvs] ", log.LstdFlags)

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}

		database, svc := openService(cfg, logger)
		defer database.Close()

		server := web.NewServer(svc, web.Config{
			Addr:       addr,
			TrunkGroup: cfg.TrunkGroup,
			Logger:     logger,
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Listening on %s\n", server.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config listen_addr)")
}
