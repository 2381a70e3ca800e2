package main

import (
	"io"
	"strings"
	"sync"

	"github.com/handiism/deck-media/internal/cache"
	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/logging"
)

type commandContext struct {
	configFlag *string

	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureSettings loads the configuration file once. Without --config the
// defaults are used.
func (c *commandContext) ensureSettings() (*config.Settings, error) {
	c.settingsOnce.Do(func() {
		path := c.configPath()
		if path == "" {
			c.settings = config.DefaultSettings()
			return
		}
		c.settings, c.settingsErr = config.Load(path)
	})
	return c.settings, c.settingsErr
}

func (c *commandContext) logger(s *config.Settings, out io.Writer) (logging.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:   s.LogLevel,
		Console: true,
		Out:     out,
		File:    s.LogFile,
	})
}

func (c *commandContext) openCache(s *config.Settings, log logging.Logger) *cache.Cache {
	return cache.Open(cache.Options{
		Path:    s.ResolvedIndexPath(),
		Driver:  s.IndexDriver,
		MinSize: s.MinFileSize,
		Logger:  log,
	})
}
