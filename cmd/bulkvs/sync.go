package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

var syncTrunkGroup string

var syncCmd = &cobra.Command{
	Use:   "sync [numbers|e911]",
	Short: "Reconcile the cache against a full provider snapshot",
	Long: `Run one reconciliation pass for a resource type.

The pass fetches the full BulkVS snapshot, upserts every record into the
local cache and purges records the provider no longer reports. Numbers
can be scoped to one trunk group; E911 records are always synced as a
whole.

Without an argument both resource types are synced in turn.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		trunkGroup := syncTrunkGroup
		if trunkGroup == "" {
			trunkGroup = cfg.TrunkGroup
		}

		var types []schema.ResourceType
		if len(args) == 1 {
			rt, err := schema.ParseResourceType(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			types = []schema.ResourceType{rt}
		} else {
			types = []schema.ResourceType{schema.ResourceNumbers, schema.ResourceE911}
		}

		database, svc := openService(cfg, nil)
		defer database.Close()

		failed := false
		for _, rt := range types {
			partition := ""
			if rt == schema.ResourceNumbers {
				partition = trunkGroup
			}

			start := time.Now()
			outcome := svc.Sync(context.Background(), rt, partition)
			elapsed := time.Since(start).Round(time.Millisecond)

			if outcome.Success {
				fmt.Printf("%s: %d records (%+d new) in %v\n", rt, outcome.TotalRecords, outcome.NewRecords, elapsed)
			} else {
				failed = true
				fmt.Fprintf(os.Stderr, "%s: sync failed: %s\n", rt, outcome.Message)
			}
		}

		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncTrunkGroup, "trunk-group", "", "trunk group to scope the numbers sync (default: config trunk_group)")
}
