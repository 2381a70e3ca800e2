package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/tui"
)

func main() {
	var configFlag, itemsFlag string

	cmd := &cobra.Command{
		Use:           "deckmedia-tui",
		Short:         "Interactive asset acquisition for vocabulary decks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.DefaultSettings()
			if configFlag != "" {
				var err error
				if settings, err = config.Load(configFlag); err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			return tui.Run(settings, itemsFlag)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (JSON or YAML)")
	cmd.Flags().StringVarP(&itemsFlag, "items", "i", "", "Item list to pre-fill")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
