package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/portfolio-cli/internal/cache"
	"github.com/sells-group/portfolio-cli/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the company-data cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <company-id>",
	Short: "Print the raw cache record for a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintf(os.Stderr, "no cache record for %s\n", args[0])
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats <company-id>",
	Short: "Show freshness and lock state for a company's cache record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		stats := map[string]any{
			"company_id": args[0],
			"cached":     rec != nil,
		}
		if rec != nil {
			stats["data_category"] = rec.DataCategory
			stats["confidence_score"] = rec.Confidence
			stats["cached_types"] = len(rec.Payload)
			stats["static_stale"] = rec.IsStale([]model.DataType{model.DataProfile}, now)
			stats["live_stale"] = rec.IsStale([]model.DataType{model.DataPrice}, now)
			if rec.LastFetchedStatic != nil {
				stats["static_age"] = now.Sub(*rec.LastFetchedStatic).Round(time.Second).String()
			}
			if rec.LastFetchedLive != nil {
				stats["live_age"] = now.Sub(*rec.LastFetchedLive).Round(time.Second).String()
			}
			if rec.FetchLock != nil {
				stats["fetch_lock_age"] = now.Sub(*rec.FetchLock).Round(time.Second).String()
				stats["fetch_lock_abandoned"] = now.Sub(*rec.FetchLock) > cache.DefaultLockGrace
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var cacheUnlockCmd = &cobra.Command{
	Use:   "unlock <company-id>",
	Short: "Clear a stuck fetch lock for a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Unlock(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("unlocked %s\n", args[0])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheGetCmd, cacheStatsCmd, cacheUnlockCmd)
	rootCmd.AddCommand(cacheCmd)
}
