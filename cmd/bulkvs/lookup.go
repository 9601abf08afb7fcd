package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/provider"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [number]",
	Short: "Look up CNAM and LRN data for a telephone number",
	Long: `Query the BulkVS lookup hosts for a number's registered caller
name (CNAM) and local routing number (LRN) data.

The lookups authenticate with http_secret (BULKVS_HTTP_SECRET), not the
API credentials. The number may carry formatting and a leading US
country code; it is reduced to 10 digits before the query.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		client := provider.NewHTTPClient(provider.Config{
			BaseURL:    cfg.APIURL,
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			HTTPSecret: cfg.HTTPSecret,
		})

		ctx := context.Background()
		failed := false

		// CNAM and LRN are independent hosts; one failing doesn't hide
		// the other's answer.
		cnam, err := client.LookupCNAM(ctx, args[0])
		switch {
		case err != nil:
			failed = true
			fmt.Fprintf(os.Stderr, "CNAM lookup failed: %v\n", err)
		case cnam == "":
			fmt.Println("CNAM: (none on file)")
		default:
			fmt.Printf("CNAM: %s\n", cnam)
		}

		lrn, err := client.LookupLRN(ctx, args[0])
		if err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "LRN lookup failed: %v\n", err)
		} else {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, lrn, "", "  "); err != nil {
				fmt.Printf("LRN: %s\n", lrn)
			} else {
				fmt.Printf("LRN:\n%s\n", pretty.String())
			}
		}

		if failed {
			os.Exit(1)
		}
	},
}
