package download

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/deck-media/internal/backoff"
	"github.com/handiism/deck-media/internal/http"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/model"
	"github.com/handiism/deck-media/internal/tts"
)

// plan expands item into requests and, for requests that can never be
// dispatched, their final result. A nil result means the request needs work.
func (m *Manager) plan(item *model.Item) ([]model.AssetRequest, []*model.AssetResult) {
	reqs := item.Requests(m.pathCfg)
	preset := make([]*model.AssetResult, len(reqs))

	audioSeen := 0
	slots := make(map[string]bool, len(item.Audio))
	for i, req := range reqs {
		duplicate := false
		if req.Kind == model.KindAudio {
			audioSeen++
			duplicate = slots[req.Slot]
			slots[req.Slot] = true
		}
		if reason := m.unsupported(item, req, audioSeen, duplicate); reason != "" {
			res := newResult(req)
			res.Unsupported = true
			res.Error = "unsupported: " + reason
			preset[i] = &res
		}
	}
	return reqs, preset
}

// unsupported names the reason req cannot be dispatched at all, or "".
func (m *Manager) unsupported(item *model.Item, req model.AssetRequest, audioSeen int, duplicate bool) string {
	if err := model.CheckID(item.ID); err != nil {
		return err.Error()
	}
	if req.Kind == model.KindAudio {
		if err := model.CheckSlot(req.Slot); err != nil {
			return err.Error()
		}
		if duplicate {
			return fmt.Sprintf("duplicate audio slot %q", req.Slot)
		}
	}
	switch {
	case req.Empty():
		return "empty source"
	case req.Kind == model.KindImage && http.ExtractImageURL(req.Payload) == "":
		return "no image url in source"
	case req.Kind == model.KindAudio && audioSeen > model.MaxAudioPerItem:
		return fmt.Sprintf("more than %d audio clips", model.MaxAudioPerItem)
	case req.Kind == model.KindAudio && tts.CleanText(req.Payload, m.settings.MaxTextLength) == "":
		return "no speakable text"
	}
	return ""
}

// processItem resolves every request of an admitted item concurrently and
// emits its manifest.
func (m *Manager) processItem(ctx context.Context, item *model.Item) model.AssetManifest {
	reqs, preset := m.plan(item)
	results := make([]model.AssetResult, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		if preset[i] != nil {
			results[i] = *preset[i]
			m.settle(results[i])
			continue
		}
		g.Go(func() error {
			results[i] = m.acquire(ctx, req)
			m.settle(results[i])
			return nil
		})
	}
	_ = g.Wait()

	manifest := model.AssetManifest{ItemID: item.ID, Assets: results}
	m.emit(manifest)
	return manifest
}

// abandon emits a manifest for an item that never ran because of err.
func (m *Manager) abandon(item *model.Item, err error) model.AssetManifest {
	reqs, preset := m.plan(item)
	results := make([]model.AssetResult, len(reqs))
	for i, req := range reqs {
		if preset[i] != nil {
			results[i] = *preset[i]
		} else {
			results[i] = newResult(req)
			results[i].Error = err.Error()
		}
		m.settle(results[i])
	}

	manifest := model.AssetManifest{ItemID: item.ID, Assets: results}
	m.emit(manifest)
	return manifest
}

// acquire resolves one request from the cache or by running its attempts.
// Concurrent requests for the same key share one acquisition; only the
// caller that ran it reports attempts, the others count as cache hits.
func (m *Manager) acquire(ctx context.Context, req model.AssetRequest) model.AssetResult {
	if res, ok := m.fromCache(req); ok {
		return res
	}

	leader := false
	v, _, _ := m.flight.Do(req.Key, func() (any, error) {
		leader = true
		// A flight that finished between our lookup and Do left an entry.
		if res, ok := m.fromCache(req); ok {
			return res, nil
		}
		return m.attempt(ctx, req), nil
	})
	res := v.(model.AssetResult)
	if !leader {
		res.FromCache = res.Acquired
		res.Attempts = 0
		res.Bytes = 0
	}
	return res
}

func (m *Manager) fromCache(req model.AssetRequest) (model.AssetResult, bool) {
	res := newResult(req)
	path, ok := m.cache.Lookup(req.Key)
	if !ok {
		if !m.cache.Adopt(req.Key, req.Path) {
			return res, false
		}
		path = req.Path
	}

	res.Acquired = true
	res.FromCache = true
	res.Path = path
	m.log.Debug("asset.cached", logging.String("key", req.Key), logging.String("path", path))
	return res, true
}

// attempt runs the retry loop for one request until it succeeds, fails
// permanently, exhausts its attempts or ctx ends.
func (m *Manager) attempt(ctx context.Context, req model.AssetRequest) model.AssetResult {
	res := newResult(req)
	log := m.log.With(logging.String("key", req.Key))

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			return res
		}

		out := m.dispatch(ctx, req)
		out.Attempt = attempt
		res.Attempts = attempt

		if out.Signal != model.Success && ctx.Err() != nil {
			res.Error = ctx.Err().Error()
			return res
		}

		m.gov.Report(out.Signal)
		m.agg.RecordAttempt(out)

		if out.Signal == model.Success {
			res.Acquired = true
			res.Path = req.Path
			res.Bytes = out.Bytes
			res.Error = ""
			if req.Kind == model.KindAudio {
				m.receivedBytes.Add(out.Bytes)
			}
			if err := m.cache.Record(req.Key, req.Path); err != nil {
				log.Warn("cache.record_failed", logging.Err(err))
			}
			log.Debug("asset.acquired",
				logging.Int("attempt", attempt),
				logging.Int64("bytes", out.Bytes),
				logging.Duration("elapsed", out.Elapsed))
			m.progress(ProgressEvent{
				Message: fmt.Sprintf("Acquired %s for %s", req.Label(), req.ItemID),
				Level:   LevelVerbose,
			})
			return res
		}

		res.Error = errorText(out)
		if !m.policy.ShouldRetry(attempt, out.Signal) {
			log.Warn("asset.failed",
				logging.Int("attempt", attempt),
				logging.String("signal", out.Signal.String()),
				logging.String("error", res.Error))
			m.progress(ProgressEvent{
				Message: fmt.Sprintf("Failed %s for %s: %s", req.Label(), req.ItemID, res.Error),
				Level:   LevelError,
			})
			return res
		}

		delay := m.policy.NextDelay(attempt, out.Signal)
		log.Info("asset.retry",
			logging.Int("attempt", attempt),
			logging.String("signal", out.Signal.String()),
			logging.Duration("delay", delay),
			logging.String("error", res.Error))
		m.progress(ProgressEvent{
			Message: fmt.Sprintf("Retry %d/%d for %s of %s in %s", attempt, m.policy.MaxAttempts(), req.Label(), req.ItemID, delay.Round(time.Millisecond)),
			Level:   LevelWarning,
		})

		if err := backoff.Wait(ctx, delay); err != nil {
			res.Error = err.Error()
			return res
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	if req.Kind == model.KindImage {
		return m.fetcher.Fetch(ctx, req)
	}
	return m.synth.Synthesize(ctx, req)
}

// settle updates the progress counters for a finished request.
func (m *Manager) settle(res model.AssetResult) {
	m.assetsDone.Add(1)
	if res.Acquired {
		m.acquired.Add(1)
	} else {
		m.failed.Add(1)
	}
}

func newResult(req model.AssetRequest) model.AssetResult {
	return model.AssetResult{Kind: req.Kind, Slot: req.Slot, Key: req.Key}
}

func errorText(out model.AttemptOutcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", out.StatusCode)
	}
	return out.Signal.String()
}
