// Package report aggregates run statistics from manifests and attempt
// outcomes, and writes the manifest document handed to packaging.
package report

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/model"
)

// KindStats counts results for one asset kind.
type KindStats struct {
	Requested   int   `json:"requested"`
	Acquired    int   `json:"acquired"`
	Failed      int   `json:"failed"`
	FromCache   int   `json:"from_cache"`
	Unsupported int   `json:"unsupported"`
	Bytes       int64 `json:"bytes"`
}

// Summary is the aggregate view of a run.
type Summary struct {
	Items         int                           `json:"items"`
	CompleteItems int                           `json:"complete_items"`
	PartialItems  int                           `json:"partial_items"`
	Kinds         map[model.AssetKind]KindStats `json:"kinds"`
	Attempts      map[string]int                `json:"attempts"`
	Retries       int                           `json:"retries"`
	Elapsed       time.Duration                 `json:"elapsed"`
	TotalBytes    int64                         `json:"total_bytes"`
}

// Acquired returns the number of acquired assets across kinds.
func (s Summary) Acquired() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Acquired
	}
	return n
}

// Failed returns the number of unacquired assets across kinds.
func (s Summary) Failed() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Failed
	}
	return n
}

// Aggregator collects statistics concurrently.
type Aggregator struct {
	mu      sync.Mutex
	start   time.Time
	now     func() time.Time
	summary Summary
}

// NewAggregator starts the clock.
func NewAggregator() *Aggregator {
	a := &Aggregator{now: time.Now}
	a.start = a.now()
	a.summary.Kinds = make(map[model.AssetKind]KindStats)
	a.summary.Attempts = make(map[string]int)
	return a
}

// RecordAttempt counts one attempt outcome.
func (a *Aggregator) RecordAttempt(out model.AttemptOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Attempts[out.Signal.String()]++
	if out.Attempt > 1 {
		a.summary.Retries++
	}
}

// AddManifest folds a finished item into the summary.
func (a *Aggregator) AddManifest(m model.AssetManifest) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Items++
	if m.Complete() {
		a.summary.CompleteItems++
	} else {
		a.summary.PartialItems++
	}

	for _, r := range m.Assets {
		ks := a.summary.Kinds[r.Kind]
		ks.Requested++
		switch {
		case r.Acquired:
			ks.Acquired++
			if r.FromCache {
				ks.FromCache++
			} else {
				ks.Bytes += r.Bytes
				a.summary.TotalBytes += r.Bytes
			}
		default:
			ks.Failed++
			if r.Unsupported {
				ks.Unsupported++
			}
		}
		a.summary.Kinds[r.Kind] = ks
	}
}

// Summary returns a copy of the current statistics with Elapsed filled in.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	s.Elapsed = a.now().Sub(a.start)
	s.Kinds = make(map[model.AssetKind]KindStats, len(a.summary.Kinds))
	for k, v := range a.summary.Kinds {
		s.Kinds[k] = v
	}
	s.Attempts = make(map[string]int, len(a.summary.Attempts))
	for k, v := range a.summary.Attempts {
		s.Attempts[k] = v
	}
	return s
}

// Document is the JSON file written for packaging.
type Document struct {
	RunID     string                `json:"run_id"`
	CreatedAt time.Time             `json:"created_at"`
	Summary   Summary               `json:"summary"`
	Manifests []model.AssetManifest `json:"manifests"`
}

// WriteManifests writes the manifest document to path atomically.
func WriteManifests(path, runID string, manifests []model.AssetManifest, summary Summary) error {
	doc := Document{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Summary:   summary,
		Manifests: manifests,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return ioutils.WriteFileAtomic(path, data)
}

// ReadManifests loads a document written by WriteManifests.
func ReadManifests(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
