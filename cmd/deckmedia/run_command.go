package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/handiism/deck-media/internal/audio"
	"github.com/handiism/deck-media/internal/cache"
	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/download"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/report"
	"github.com/handiism/deck-media/internal/source"
)

type runOptions struct {
	items       string
	mediaDir    string
	manifest    string
	concurrency int
	attempts    int
	voice       string
	logLevel    string
	noCache     bool
	playlist    bool
	verbose     bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run --items <file>",
		Short: "Fetch images and synthesize clips for every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, settings, &opts)
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			return runItems(cmd, ctx, settings, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.items, "items", "i", "", "Item list (pipe-separated CSV or JSON)")
	flags.StringVarP(&opts.mediaDir, "media-dir", "o", "", "Output directory (overrides config)")
	flags.StringVar(&opts.manifest, "manifest", "", "Manifest output path (default <media-dir>/manifest.json)")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Baseline item concurrency (overrides config)")
	flags.IntVar(&opts.attempts, "attempts", 0, "Maximum attempts per asset (overrides config)")
	flags.StringVar(&opts.voice, "voice", "", "Speech voice (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Ignore the persisted cache index")
	flags.BoolVar(&opts.playlist, "playlist", false, "Write a review playlist of the acquired clips")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose progress")
	_ = cmd.MarkFlagRequired("items")

	return cmd
}

func applyRunFlags(cmd *cobra.Command, s *config.Settings, opts *runOptions) {
	flags := cmd.Flags()
	if opts.mediaDir != "" {
		s.MediaDir = opts.mediaDir
	}
	if flags.Changed("concurrency") {
		s.BaselineConcurrency = opts.concurrency
		if s.MaxConcurrency < opts.concurrency {
			s.MaxConcurrency = 2 * opts.concurrency
		}
	}
	if flags.Changed("attempts") {
		s.MaxAttempts = opts.attempts
	}
	if opts.voice != "" {
		s.Voice = opts.voice
	}
	if opts.logLevel != "" {
		s.LogLevel = opts.logLevel
	}
	if opts.playlist {
		s.CreatePlaylist = true
	}
}

func runItems(cmd *cobra.Command, ctx *commandContext, s *config.Settings, opts *runOptions) error {
	out := cmd.OutOrStdout()

	log, closer, err := ctx.logger(s, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	runID := uuid.NewString()
	log = log.With(logging.String("run", runID))

	items, err := source.NewLoader(source.DefaultColumns()).Load(opts.items)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	fmt.Fprintf(out, "Loaded %d items from %s\n", len(items), opts.items)

	managerOpts := []download.Option{download.WithLogger(log)}
	if opts.noCache {
		mem := cache.Open(cache.Options{MinSize: s.MinFileSize, Logger: log})
		defer mem.Close()
		managerOpts = append(managerOpts, download.WithCache(mem))
	}
	manager := download.NewManager(s, progressPrinter(out, opts.verbose), managerOpts...)

	manifests, runErr := manager.Run(cmd.Context(), items)
	summary := manager.Summary()

	if len(manifests) > 0 && !errors.Is(runErr, download.ErrStorage) {
		path := opts.manifest
		if path == "" {
			path = filepath.Join(s.MediaDir, "manifest.json")
		}
		if err := report.WriteManifests(path, runID, manifests, summary); err != nil {
			log.Error("manifest.write_failed", logging.Err(err), logging.String("path", path))
		} else {
			fmt.Fprintf(out, "Manifest written to %s\n", path)
		}

		if s.CreatePlaylist {
			if path, err := audio.WriteReviewPlaylist(s.MediaDir, manifests); err != nil {
				log.Warn("playlist.write_failed", logging.Err(err))
			} else if path != "" {
				fmt.Fprintf(out, "Playlist written to %s\n", path)
			}
		}
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, report.RenderSummary(summary))
	return runErr
}

// progressPrinter writes one line per event. Events arrive from many
// goroutines.
func progressPrinter(out io.Writer, verbose bool) func(download.ProgressEvent) {
	var mu sync.Mutex
	return func(event download.ProgressEvent) {
		if event.Level == download.LevelVerbose && !verbose {
			return
		}

		prefix := ""
		switch event.Level {
		case download.LevelError:
			prefix = "❌ "
		case download.LevelWarning:
			prefix = "⚠️  "
		case download.LevelSuccess:
			prefix = "✅ "
		case download.LevelInfo:
			prefix = "ℹ️  "
		default:
			prefix = "   "
		}

		mu.Lock()
		fmt.Fprintln(out, prefix+strings.TrimSpace(event.Message))
		mu.Unlock()
	}
}
