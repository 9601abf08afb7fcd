package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache sync status for both resource types",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		database, svc := openService(cfg, nil)
		defer database.Close()

		for _, rt := range []schema.ResourceType{schema.ResourceNumbers, schema.ResourceE911} {
			view, err := svc.Status(context.Background(), rt)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s status: %v\n", rt, err)
				os.Exit(1)
			}

			fmt.Printf("%s:\n", rt)
			fmt.Printf("   State:       %s\n", view.State)
			fmt.Printf("   Records:     %d\n", view.TotalRecords)
			fmt.Printf("   New data:    %v\n", view.HasChanges)
			if !view.LastSyncStart.IsZero() {
				fmt.Printf("   Last start:  %s\n", view.LastSyncStart.Local().Format("2006-01-02 15:04:05"))
			}
			if !view.LastSyncEnd.IsZero() {
				fmt.Printf("   Last end:    %s\n", view.LastSyncEnd.Local().Format("2006-01-02 15:04:05"))
			}
			if view.LastError != "" {
				fmt.Printf("   Last error:  %s\n", view.LastError)
			}
		}
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack [numbers|e911]",
	Short: "Acknowledge new data (reset the change signal)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		rt, err := schema.ParseResourceType(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		database, svc := openService(cfg, nil)
		defer database.Close()

		if err := svc.Acknowledge(context.Background(), rt); err != nil {
			fmt.Fprintf(os.Stderr, "Error acknowledging %s: %v\n", rt, err)
			os.Exit(1)
		}
		fmt.Printf("%s acknowledged\n", rt)
	},
}
