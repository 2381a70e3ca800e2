package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/handiism/deck-media/internal/audio"
	"github.com/handiism/deck-media/internal/backoff"
	"github.com/handiism/deck-media/internal/cache"
	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/governor"
	"github.com/handiism/deck-media/internal/http"
	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/model"
	"github.com/handiism/deck-media/internal/report"
	"github.com/handiism/deck-media/internal/tts"
)

// ErrStorage means the media directory cannot be created or written.
// It is the only error that aborts a run.
var ErrStorage = errors.New("media directory is not usable")

// Fetcher performs one image download attempt.
type Fetcher interface {
	Fetch(ctx context.Context, req model.AssetRequest) model.AttemptOutcome
}

// Synthesizer performs one speech synthesis attempt.
type Synthesizer interface {
	Synthesize(ctx context.Context, req model.AssetRequest) model.AttemptOutcome
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFetcher replaces the HTTP image fetcher.
func WithFetcher(f Fetcher) Option { return func(m *Manager) { m.fetcher = f } }

// WithSynthesizer replaces the speech synthesizer.
func WithSynthesizer(s Synthesizer) Option { return func(m *Manager) { m.synth = s } }

// WithCache uses c instead of opening the index named by the settings.
// The caller keeps ownership and closes it.
func WithCache(c *cache.Cache) Option { return func(m *Manager) { m.cache = c } }

// WithGovernor shares an existing governor. The manager registers its own
// observer on it, so limit changes are logged and reported as progress
// events by every manager sharing it.
func WithGovernor(g *governor.Governor) Option { return func(m *Manager) { m.gov = g } }

// WithPolicy replaces the retry policy derived from the settings.
func WithPolicy(p *backoff.Policy) Option { return func(m *Manager) { m.policy = p } }

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option { return func(m *Manager) { m.log = l } }

// WithManifestHandler registers f to receive each manifest as its item
// finishes. Calls are serialized.
func WithManifestHandler(f func(model.AssetManifest)) Option {
	return func(m *Manager) { m.onManifest = f }
}

// Manager coordinates asset acquisition for a batch of items.
type Manager struct {
	settings *config.Settings
	pathCfg  *model.PathConfig

	fetcher   Fetcher
	synth     Synthesizer
	cache     *cache.Cache
	gov       *governor.Governor
	policy    *backoff.Policy
	agg       *report.Aggregator
	flight    singleflight.Group
	log       logging.Logger

	itemsTotal    atomic.Int32
	itemsDone     atomic.Int32
	assetsTotal   atomic.Int32
	assetsDone    atomic.Int32
	acquired      atomic.Int32
	failed        atomic.Int32
	receivedBytes atomic.Int64

	onProgress func(ProgressEvent)
	onManifest func(model.AssetManifest)
	emitMu     sync.Mutex
}

// NewManager creates a Manager. Collaborators not supplied through opts are
// built from settings.
func NewManager(settings *config.Settings, onProgress func(ProgressEvent), opts ...Option) *Manager {
	m := &Manager{
		settings:   settings,
		pathCfg:    settings.ToPathConfig(),
		agg:        report.NewAggregator(),
		onProgress: onProgress,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logging.String("component", "download"))

	if m.gov == nil {
		m.gov = governor.New(settings.ToGovernorConfig())
	}
	m.gov.Observe(m.limitChanged)
	if m.policy == nil {
		m.policy = backoff.New(settings.ToBackoffConfig())
	}

	pacer := backoff.NewPacer(settings.PreDelayMin.D(), settings.PreDelayMax.D(), settings.RequestsPerSecond)
	if m.fetcher == nil {
		m.fetcher = m.newFetcher(pacer)
	}
	if m.synth == nil {
		m.synth = m.newSynthesizer(pacer)
	}
	return m
}

func (m *Manager) newFetcher(pacer *backoff.Pacer) Fetcher {
	opts := http.Options{
		Timeout:   m.settings.ImageTimeout.D(),
		UserAgent: m.settings.UserAgent,
		MinSize:   m.settings.MinFileSize,
		Pacer:     pacer,
		OnBytes:   func(n int64) { m.receivedBytes.Add(n) },
	}
	images := ioutils.NewImageService(m.settings.ImageMaxSize, m.settings.ConvertImagesToJPG)
	if images.Enabled() {
		opts.Transform = images.Normalize
	}
	return http.NewClient(opts)
}

func (m *Manager) newSynthesizer(pacer *backoff.Pacer) Synthesizer {
	var engine tts.Engine
	switch m.settings.TTSEngine {
	case config.TTSEngineHTTP:
		engine = &tts.HTTPEngine{Endpoint: m.settings.TTSEndpoint}
	default:
		engine = &tts.CommandEngine{Command: m.settings.TTSCommand}
	}

	opts := tts.Options{
		Voice:         m.settings.Voice,
		MinSize:       m.settings.MinFileSize,
		MaxTextLength: m.settings.MaxTextLength,
		Timeout:       m.settings.RequestTimeout.D(),
		Pacer:         pacer,
		Logger:        m.log,
	}
	if m.settings.TagAudio {
		tagger := audio.NewTagger(audio.DefaultTagConfig())
		voice := m.settings.Voice
		opts.Finish = func(path string, req model.AssetRequest, text string) error {
			return tagger.TagClip(path, audio.ClipInfo{
				Title:  audio.ShortTitle(text, 60),
				Voice:  voice,
				ItemID: req.ItemID,
				Slot:   req.Slot,
				Text:   text,
			})
		}
	}
	return tts.NewSynthesizer(engine, opts)
}

// Run acquires the assets of every item and returns one manifest per item in
// submission order. Per-asset failures are recorded in the manifests. The
// returned error is non-nil only when the media directory is unusable
// (wrapping ErrStorage) or ctx ended; in both cases the manifest set is
// still complete.
func (m *Manager) Run(ctx context.Context, items []*model.Item) ([]model.AssetManifest, error) {
	m.itemsTotal.Add(int32(len(items)))
	for _, item := range items {
		m.assetsTotal.Add(int32(len(item.Requests(m.pathCfg))))
	}
	manifests := make([]model.AssetManifest, len(items))

	if err := ioutils.EnsureWritableDir(m.pathCfg.MediaDir); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrStorage, m.pathCfg.MediaDir, err)
		m.log.Error("run.storage_unusable", logging.Err(err))
		m.progress(ProgressEvent{Message: err.Error(), Level: LevelError})
		for i, item := range items {
			manifests[i] = m.abandon(item, err)
		}
		return manifests, err
	}

	if m.cache == nil {
		m.cache = cache.Open(cache.Options{
			Path:    m.settings.ResolvedIndexPath(),
			Driver:  m.settings.IndexDriver,
			MinSize: m.settings.MinFileSize,
			Logger:  m.log,
		})
		defer func() {
			if err := m.cache.Close(); err != nil {
				m.log.Warn("cache.close_failed", logging.Err(err))
			}
			m.cache = nil
		}()
	}

	m.log.Info("run.started",
		logging.Int("items", len(items)),
		logging.Int("limit", m.gov.Limit()),
		logging.Int("cached", m.cache.Count()))

	var g errgroup.Group
	for i, item := range items {
		permit, err := m.gov.Admit(ctx)
		if err != nil {
			for j := i; j < len(items); j++ {
				manifests[j] = m.abandon(items[j], err)
			}
			break
		}
		g.Go(func() error {
			defer permit.Release()
			manifests[i] = m.processItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	summary := m.agg.Summary()
	m.log.Info("run.finished",
		logging.Int("items", summary.Items),
		logging.Int("complete", summary.CompleteItems),
		logging.Int("acquired", summary.Acquired()),
		logging.Int("failed", summary.Failed()),
		logging.Duration("elapsed", summary.Elapsed))

	if err := ctx.Err(); err != nil {
		m.progress(ProgressEvent{Message: "Run cancelled", Level: LevelWarning})
		return manifests, err
	}
	return manifests, nil
}

// Summary returns the statistics collected so far.
func (m *Manager) Summary() report.Summary {
	return m.agg.Summary()
}

// Governor exposes the admission governor, for display.
func (m *Manager) Governor() *governor.Governor {
	return m.gov
}

// GetProgress returns current progress counters.
func (m *Manager) GetProgress() Progress {
	st := m.gov.State()
	return Progress{
		ItemsTotal:  m.itemsTotal.Load(),
		ItemsDone:   m.itemsDone.Load(),
		AssetsTotal: m.assetsTotal.Load(),
		AssetsDone:  m.assetsDone.Load(),
		Acquired:    m.acquired.Load(),
		Failed:      m.failed.Load(),
		Bytes:       m.receivedBytes.Load(),
		Limit:       st.Limit,
		InFlight:    st.InFlight,
	}
}

func (m *Manager) limitChanged(c governor.Change) {
	m.log.Info("governor.limit",
		logging.Int("from", c.From),
		logging.Int("to", c.To),
		logging.String("reason", c.Reason.String()))

	level := LevelInfo
	if c.To < c.From {
		level = LevelWarning
	}
	m.progress(ProgressEvent{
		Message: fmt.Sprintf("Concurrency %d -> %d (%s)", c.From, c.To, c.Reason),
		Level:   level,
	})
}

// emit publishes a finished manifest. Every item passes through here once.
func (m *Manager) emit(manifest model.AssetManifest) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.agg.AddManifest(manifest)
	m.itemsDone.Add(1)

	acquired := 0
	for _, a := range manifest.Assets {
		if a.Acquired {
			acquired++
		}
	}
	m.log.Debug("item.manifested",
		logging.String("item", manifest.ItemID),
		logging.Int("acquired", acquired),
		logging.Int("assets", len(manifest.Assets)))

	if manifest.Complete() {
		m.progress(ProgressEvent{
			Message: fmt.Sprintf("Item %s: all %d assets ready", manifest.ItemID, len(manifest.Assets)),
			Level:   LevelSuccess,
		})
	} else {
		m.progress(ProgressEvent{
			Message: fmt.Sprintf("Item %s: %d of %d assets ready", manifest.ItemID, acquired, len(manifest.Assets)),
			Level:   LevelWarning,
		})
	}

	if m.onManifest != nil {
		m.onManifest(manifest)
	}
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
