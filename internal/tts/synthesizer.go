package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/handiism/deck-media/internal/backoff"
	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/model"
)

// ErrEmptyText means nothing speakable was left after cleaning.
var ErrEmptyText = errors.New("no text to synthesize")

// Options configures a Synthesizer.
type Options struct {
	Voice         string
	MinSize       int64
	MaxTextLength int
	Timeout       time.Duration
	Pacer         *backoff.Pacer

	// Finish runs on the complete clip before it is moved into place.
	// Its error is logged and otherwise ignored.
	Finish func(path string, req model.AssetRequest, text string) error

	Logger logging.Logger
}

// Synthesizer produces audio clips. Each call is exactly one attempt and
// never returns an error: every failure is folded into the outcome.
type Synthesizer struct {
	engine Engine
	opts   Options
}

// NewSynthesizer creates a Synthesizer backed by engine.
func NewSynthesizer(engine Engine, opts Options) *Synthesizer {
	if opts.Voice == "" {
		opts.Voice = "de-DE-KatjaNeural"
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Synthesizer{engine: engine, opts: opts}
}

// Voice returns the configured voice.
func (s *Synthesizer) Voice() string { return s.opts.Voice }

// Synthesize renders req.Payload to req.Path.
func (s *Synthesizer) Synthesize(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	start := time.Now()

	text := CleanText(req.Payload, s.opts.MaxTextLength)
	if text == "" {
		return model.Failed(model.PermanentError, ErrEmptyText, 0)
	}

	if err := s.opts.Pacer.Wait(ctx); err != nil {
		return model.Failed(model.TransientError, err, time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	tmp, err := ioutils.NewAtomicFile(req.Path)
	if err != nil {
		return model.Failed(model.TransientError, err, time.Since(start))
	}
	defer tmp.Abort()

	if err := s.engine.Synthesize(ctx, text, s.opts.Voice, tmp.Name()); err != nil {
		signal := model.TransientError
		if errors.Is(err, ErrRateLimited) {
			signal = model.RateLimited
		}
		return model.Failed(signal, err, time.Since(start))
	}

	size, ok := ioutils.FileSize(tmp.Name())
	if !ok || size <= s.opts.MinSize {
		return model.Failed(model.TransientError,
			fmt.Errorf("clip of %d bytes is not larger than %d", size, s.opts.MinSize), time.Since(start))
	}

	if s.opts.Finish != nil {
		if err := s.opts.Finish(tmp.Name(), req, text); err != nil {
			s.opts.Logger.Warn("tts.finish_failed", logging.String("key", req.Key), logging.Err(err))
		}
		if n, ok := ioutils.FileSize(tmp.Name()); ok {
			size = n
		}
	}

	if err := tmp.Commit(); err != nil {
		return model.Failed(model.TransientError, fmt.Errorf("write %s: %w", req.Path, err), time.Since(start))
	}
	return model.Succeeded(size, time.Since(start))
}
