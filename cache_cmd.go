package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	expireOlderThan time.Duration

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the audio cache",
		Long:  paragraph(fmt.Sprintf("\nSynthesized sentences are %s by text, voice and format, so unchanged sentences are never paid for twice.", keyword("cached"))),
		Args:  cobra.NoArgs,
	}

	cacheSizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Show how much audio is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			size, err := store.StorageSize(cmd.Context())
			if err != nil {
				return fmt.Errorf("unable to measure cache: %w", err)
			}
			stats := store.Stats()
			fmt.Printf("%s in %d entries (%s backend, %s)\n",
				humanize.Bytes(uint64(size)), stats.ItemCount, cfg.Cache.Backend, cfg.Cache.Dir) //nolint:gosec
			if stats.Capacity > 0 {
				fmt.Printf("%s of %s used\n", humanize.Bytes(uint64(stats.Size)), humanize.Bytes(uint64(stats.Capacity))) //nolint:gosec
			}
			return nil
		},
	}

	cacheExpireCmd = &cobra.Command{
		Use:     "expire",
		Short:   "Remove cached audio older than a given age",
		Example: paragraph("aloud cache expire --older-than 72h\naloud cache expire --older-than 0"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			before, err := store.StorageSize(cmd.Context())
			if err != nil {
				return fmt.Errorf("unable to measure cache: %w", err)
			}
			if err := store.Expire(cmd.Context(), expireOlderThan); err != nil {
				return fmt.Errorf("unable to expire cache: %w", err)
			}
			after, err := store.StorageSize(cmd.Context())
			if err != nil {
				return fmt.Errorf("unable to measure cache: %w", err)
			}

			fmt.Printf("Freed %s, %s remaining\n",
				humanize.Bytes(uint64(max(before-after, 0))), humanize.Bytes(uint64(after))) //nolint:gosec
			return nil
		},
	}
)

func init() {
	cacheExpireCmd.Flags().DurationVar(&expireOlderThan, "older-than", 7*24*time.Hour, "age of the entries to remove")
	cacheCmd.AddCommand(cacheSizeCmd, cacheExpireCmd)
}
