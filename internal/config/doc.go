// Package config provides configuration management for deck-media.
//
// This package handles:
//   - Loading and saving settings from JSON or YAML files
//   - Default configuration values
//   - Validation of the whole settings set at once
//   - Conversion to backoff, governor and path configuration
//
// # Loading from File
//
//	settings, err := config.Load("deckmedia.yaml")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//	if err := settings.Validate(); err != nil {
//	    // every invalid field, joined
//	}
//
// Durations accept Go duration strings ("1.5s", "250ms") or plain seconds.
package config
