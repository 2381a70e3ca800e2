package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/handiism/deck-media/internal/backoff"
	"github.com/handiism/deck-media/internal/governor"
	"github.com/handiism/deck-media/internal/model"
)

// Index drivers.
const (
	IndexDriverJSON   = "json"
	IndexDriverSQLite = "sqlite"
)

// Speech engines.
const (
	TTSEngineEdge = "edge-tts"
	TTSEngineHTTP = "http"
)

// Settings holds all configuration options.
type Settings struct {
	// Storage
	MediaDir    string `json:"media_dir"`
	IndexPath   string `json:"index_path"`
	IndexDriver string `json:"index_driver"` // json, sqlite
	MinFileSize int64  `json:"min_file_size"`

	// Concurrency governor
	BaselineConcurrency int `json:"baseline_concurrency"`
	MaxConcurrency      int `json:"max_concurrency"`
	GrowAfterSuccesses  int `json:"grow_after_successes"`

	// Retry schedule
	MaxAttempts int      `json:"max_attempts"`
	BackoffBase Duration `json:"backoff_base"`
	BackoffMax  Duration `json:"backoff_max"`
	JitterMin   Duration `json:"jitter_min"`
	JitterMax   Duration `json:"jitter_max"`

	// Pacing of individual calls
	PreDelayMin       Duration `json:"pre_delay_min"`
	PreDelayMax       Duration `json:"pre_delay_max"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	RequestTimeout    Duration `json:"request_timeout"`
	ImageTimeout      Duration `json:"image_timeout"`
	UserAgent         string   `json:"user_agent"`

	// Speech synthesis
	Voice         string `json:"voice"`
	TTSEngine     string `json:"tts_engine"` // edge-tts, http
	TTSCommand    string `json:"tts_command"`
	TTSEndpoint   string `json:"tts_endpoint"`
	MaxTextLength int    `json:"max_text_length"`

	// Post-processing
	ConvertImagesToJPG bool `json:"convert_images_to_jpg"`
	ImageMaxSize       int  `json:"image_max_size"`
	TagAudio           bool `json:"tag_audio"`
	CreatePlaylist     bool `json:"create_playlist"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		MediaDir:    "media",
		IndexDriver: IndexDriverJSON,
		MinFileSize: 500,

		BaselineConcurrency: 3,
		MaxConcurrency:      6,
		GrowAfterSuccesses:  5,

		MaxAttempts: 3,
		BackoffBase: Duration(time.Second),
		BackoffMax:  Duration(60 * time.Second),
		JitterMin:   0,
		JitterMax:   Duration(time.Second),

		PreDelayMin:    Duration(500 * time.Millisecond),
		PreDelayMax:    Duration(3500 * time.Millisecond),
		RequestTimeout: Duration(45 * time.Second),
		ImageTimeout:   Duration(90 * time.Second),

		Voice:         "de-DE-KatjaNeural",
		TTSEngine:     TTSEngineEdge,
		TTSCommand:    "edge-tts",
		MaxTextLength: 500,

		ConvertImagesToJPG: true,
		TagAudio:           true,

		LogLevel: "info",
	}
}

// Load reads settings from a JSON or YAML file. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	data, err = coerceToJSON(path, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	settings := DefaultSettings()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to path, as YAML when the extension says so and JSON otherwise.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if isYAML(path) {
		if data, err = jsonToYAML(data); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var errs []error
	if s.MediaDir == "" {
		errs = append(errs, errors.New("media_dir must not be empty"))
	}
	if s.BaselineConcurrency < 1 {
		errs = append(errs, fmt.Errorf("baseline_concurrency must be >= 1, got %d", s.BaselineConcurrency))
	}
	if s.MaxConcurrency < s.BaselineConcurrency {
		errs = append(errs, fmt.Errorf("max_concurrency (%d) must be >= baseline_concurrency (%d)", s.MaxConcurrency, s.BaselineConcurrency))
	}
	if s.GrowAfterSuccesses < 1 {
		errs = append(errs, fmt.Errorf("grow_after_successes must be >= 1, got %d", s.GrowAfterSuccesses))
	}
	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1, got %d", s.MaxAttempts))
	}
	if s.BackoffBase <= 0 {
		errs = append(errs, errors.New("backoff_base must be positive"))
	}
	if s.BackoffMax < s.BackoffBase {
		errs = append(errs, errors.New("backoff_max must be >= backoff_base"))
	}
	if s.JitterMin < 0 || s.JitterMax < s.JitterMin {
		errs = append(errs, errors.New("jitter window must satisfy 0 <= jitter_min <= jitter_max"))
	}
	if s.PreDelayMin < 0 || s.PreDelayMax < s.PreDelayMin {
		errs = append(errs, errors.New("pre-delay window must satisfy 0 <= pre_delay_min <= pre_delay_max"))
	}
	if s.RequestTimeout <= 0 || s.ImageTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout and image_timeout must be positive"))
	}
	if s.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must not be negative"))
	}
	if s.MinFileSize < 0 {
		errs = append(errs, errors.New("min_file_size must not be negative"))
	}
	if s.MaxTextLength < 1 {
		errs = append(errs, errors.New("max_text_length must be >= 1"))
	}
	switch s.IndexDriver {
	case IndexDriverJSON, IndexDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown index_driver %q", s.IndexDriver))
	}
	switch s.TTSEngine {
	case TTSEngineEdge:
		if s.TTSCommand == "" {
			errs = append(errs, errors.New("tts_command is required for the edge-tts engine"))
		}
	case TTSEngineHTTP:
		if s.TTSEndpoint == "" {
			errs = append(errs, errors.New("tts_endpoint is required for the http engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tts_engine %q", s.TTSEngine))
	}
	return errors.Join(errs...)
}

// ResolvedIndexPath returns IndexPath, defaulting to a hidden file in MediaDir.
func (s *Settings) ResolvedIndexPath() string {
	if s.IndexPath != "" {
		return s.IndexPath
	}
	name := ".deckmedia-index.json"
	if s.IndexDriver == IndexDriverSQLite {
		name = ".deckmedia-index.db"
	}
	return filepath.Join(s.MediaDir, name)
}

// ToPathConfig converts settings to PathConfig.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return model.DefaultPathConfig(s.MediaDir)
}

// ToBackoffConfig converts settings to the retry schedule.
func (s *Settings) ToBackoffConfig() backoff.Config {
	return backoff.Config{
		Base:        s.BackoffBase.D(),
		Max:         s.BackoffMax.D(),
		JitterMin:   s.JitterMin.D(),
		JitterMax:   s.JitterMax.D(),
		MaxAttempts: s.MaxAttempts,
	}
}

// ToGovernorConfig converts settings to the concurrency governor config.
func (s *Settings) ToGovernorConfig() governor.Config {
	cfg := governor.DefaultConfig()
	cfg.Baseline = s.BaselineConcurrency
	cfg.Ceiling = s.MaxConcurrency
	cfg.GrowAfter = s.GrowAfterSuccesses
	return cfg
}
