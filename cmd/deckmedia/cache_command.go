package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/handiism/deck-media/internal/cache"
	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/report"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the asset cache index",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheVerifyCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

// withCache opens the index named by the settings for the duration of fn.
// Commands that write require the index lock.
func withCache(ctx *commandContext, write bool, fn func(*config.Settings, *cache.Cache) error) error {
	s, err := ctx.ensureSettings()
	if err != nil {
		return err
	}
	c := ctx.openCache(s, logging.Nop())
	defer c.Close()

	if write && !c.Stats().Persisted {
		return fmt.Errorf("%s: %w", s.ResolvedIndexPath(), cache.ErrLocked)
	}
	return fn(s, c)
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache index usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, false, func(s *config.Settings, c *cache.Cache) error {
				var total int64
				entries := c.Entries()
				for _, e := range entries {
					total += e.Size
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Index:   %s (%s)\n", s.ResolvedIndexPath(), s.IndexDriver)
				fmt.Fprintf(out, "Entries: %d\n", len(entries))
				fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(total)))
				return nil
			})
		},
	}
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, false, func(s *config.Settings, c *cache.Cache) error {
				entries := c.Entries()
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty")
					return nil
				}
				const stampLayout = "2006-01-02 15:04"
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Key,
						e.Path,
						e.RecordedAt.Local().Format(stampLayout),
						humanize.Bytes(uint64(e.Size)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderTable([]string{"Key", "Path", "Recorded", "Size"}, rows, 3))
				return nil
			})
		},
	}
}

func newCacheVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Evict entries whose files are missing or truncated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, true, func(s *config.Settings, c *cache.Cache) error {
				kept, evicted := c.Verify()
				fmt.Fprintf(cmd.OutOrStdout(), "Kept %s, evicted %s\n",
					plural(kept, "entry", "entries"), plural(evicted, "entry", "entries"))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every cached asset (files stay on disk)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, true, func(s *config.Settings, c *cache.Cache) error {
				n := c.Count()
				if err := c.Clear(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", plural(n, "entry", "entries"))
				return nil
			})
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
