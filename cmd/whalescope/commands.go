package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/whalescope/whalescope/internal/config"
)

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data <section>",
	Short: "Load a dashboard section's data from the analytics service",
	Long: `Load a dashboard section's data from the analytics service.

Examples:
  whalescope data bitcoin
  whalescope data binance_market --symbol BTCUSDT --start-date 2026-01-01 --end-date 2026-02-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		section := args[0]
		symbol, _ := cmd.Flags().GetString("symbol")
		startDate, _ := cmd.Flags().GetString("start-date")
		endDate, _ := cmd.Flags().GetString("end-date")

		query := url.Values{}
		if symbol != "" {
			query.Set("symbol", symbol)
		}
		if startDate != "" {
			query.Set("startDate", startDate)
		}
		if endDate != "" {
			query.Set("endDate", endDate)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/data/" + url.PathEscape(section)
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var payload any
		if err := decodeJSON(resp, &payload); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <kind> <section>",
	Short: "Export a section to a CSV or PDF file",
	Long: `Export a section to a CSV or PDF file.

Examples:
  whalescope export csv binance_market --symbol BTCUSDT --start-date 2026-01-01 --end-date 2026-02-01 --out ./btc.csv
  whalescope export pdf marketbrain --symbol ETHUSDT --start-date 2026-01-01 --end-date 2026-02-01 --out ./eth.pdf --chart ./chart.png`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, section := args[0], args[1]
		symbol, _ := cmd.Flags().GetString("symbol")
		startDate, _ := cmd.Flags().GetString("start-date")
		endDate, _ := cmd.Flags().GetString("end-date")
		out, _ := cmd.Flags().GetString("out")
		chart, _ := cmd.Flags().GetString("chart")

		if out == "" {
			return fmt.Errorf("--out is required")
		}

		req := map[string]any{
			"kind":        kind,
			"section":     section,
			"destination": out,
			"params": map[string]string{
				"symbol":    symbol,
				"startDate": startDate,
				"endDate":   endDate,
			},
		}
		if chart != "" {
			png, err := os.ReadFile(chart)
			if err != nil {
				return fmt.Errorf("reading chart image: %w", err)
			}
			req["chart_png"] = base64.StdEncoding.EncodeToString(png)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("exporting %s/%s...", kind, section)
		resp, err := client.post(cmd.Context(), "/api/export", req)
		if err != nil {
			return err
		}

		var result struct {
			Path      string `json:"path"`
			Cancelled bool   `json:"cancelled"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result.Cancelled {
			printWarning("export cancelled")
			return nil
		}

		printSuccess("Exported to %s", result.Path)
		return nil
	},
}

// --- invoke ---

var invokeCmd = &cobra.Command{
	Use:   "invoke <script> [args...]",
	Short: "Run a single worker script and print its output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"script": args[0],
			"args":   args[1:],
		}
		resp, err := client.post(cmd.Context(), "/api/invoke", req)
		if err != nil {
			return err
		}

		var result struct {
			Stdout string `json:"stdout"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Stdout)
		return nil
	},
}

// --- keys ---

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage worker API credentials",
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store an API key for a data provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, key := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			// The backend is not required for key management; fall back to
			// the keystore directly.
			return setKeyLocally(provider, key)
		}

		resp, err := client.get(cmd.Context(), "/api/credentials")
		if err != nil {
			return setKeyLocally(provider, key)
		}
		var keys config.APIKeys
		if err := decodeJSON(resp, &keys); err != nil {
			return err
		}
		keys[provider] = key

		resp, err = client.put(cmd.Context(), "/api/credentials", keys)
		if err != nil {
			return err
		}
		var ok map[string]string
		if err := decodeJSON(resp, &ok); err != nil {
			return err
		}

		printSuccess("Stored key for %s", provider)
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored credential providers (keys are not printed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		keys, err := config.NewKeystore(cfg.Storage.DataDir).Load()
		if err != nil {
			return err
		}

		if len(keys) == 0 {
			printStatus("Providers", "none")
			return nil
		}
		for _, name := range keys.Providers() {
			printStatus(name, "set (%d chars)", len(keys[name]))
		}
		return nil
	},
}

func setKeyLocally(provider, key string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store := config.NewKeystore(cfg.Storage.DataDir)
	keys, err := store.Load()
	if err != nil {
		return err
	}
	keys[provider] = key
	if err := store.Save(keys); err != nil {
		return err
	}
	printSuccess("Stored key for %s", provider)
	return nil
}

func init() {
	dataCmd.Flags().String("symbol", "", "trading symbol, e.g. BTCUSDT")
	dataCmd.Flags().String("start-date", "", "range start, YYYY-MM-DD")
	dataCmd.Flags().String("end-date", "", "range end, YYYY-MM-DD")

	exportCmd.Flags().String("symbol", "", "trading symbol, e.g. BTCUSDT")
	exportCmd.Flags().String("start-date", "", "range start, YYYY-MM-DD")
	exportCmd.Flags().String("end-date", "", "range end, YYYY-MM-DD")
	exportCmd.Flags().String("out", "", "destination file path")
	exportCmd.Flags().String("chart", "", "optional chart image (PNG) to embed in PDF exports")

	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysShowCmd)
}
