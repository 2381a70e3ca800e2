package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/governor"
	"github.com/handiism/deck-media/internal/model"
)

// fakeBackend plays both fetcher and synthesizer. Each key follows its
// script of signals, then succeeds.
type fakeBackend struct {
	mu      sync.Mutex
	calls   map[string]int
	script  map[string][]model.Signal
	delay   time.Duration
	active  int
	maxSeen int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int), script: make(map[string][]model.Signal)}
}

func (f *fakeBackend) Fetch(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	return f.do(ctx, req)
}

func (f *fakeBackend) Synthesize(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	return f.do(ctx, req)
}

func (f *fakeBackend) do(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	f.mu.Lock()
	n := f.calls[req.Key]
	f.calls[req.Key]++
	signal := model.Success
	if s := f.script[req.Key]; n < len(s) {
		signal = s[n]
	}
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Failed(model.TransientError, ctx.Err(), f.delay)
		}
	}

	if signal != model.Success {
		return model.Failed(signal, fmt.Errorf("scripted %s", signal), 0)
	}
	data := bytes.Repeat([]byte("x"), 64)
	if err := os.WriteFile(req.Path, data, 0644); err != nil {
		return model.Failed(model.TransientError, err, 0)
	}
	return model.Succeeded(int64(len(data)), 0)
}

func (f *fakeBackend) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.MediaDir = t.TempDir()
	s.MinFileSize = 10
	s.BackoffBase = config.Duration(time.Millisecond)
	s.BackoffMax = config.Duration(5 * time.Millisecond)
	s.JitterMin = 0
	s.JitterMax = 0
	s.PreDelayMin = 0
	s.PreDelayMax = 0
	return s
}

func testItem(id string, slots ...string) *model.Item {
	item := &model.Item{ID: id, Image: "https://example.com/" + id + ".jpg"}
	for _, slot := range slots {
		item.Audio = append(item.Audio, model.AudioSource{Slot: slot, Text: "Das Haus ist alt " + slot})
	}
	return item
}

func newTestManager(s *config.Settings, fb *fakeBackend, opts ...Option) *Manager {
	opts = append([]Option{WithFetcher(fb), WithSynthesizer(fb)}, opts...)
	return NewManager(s, nil, opts...)
}

func TestRun_AllAcquired(t *testing.T) {
	s := testSettings(t)
	fb := newFakeBackend()
	m := newTestManager(s, fb)

	items := []*model.Item{testItem("a", "word", "sentence"), testItem("b", "word")}
	manifests, err := m.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2", len(manifests))
	}

	for i, mf := range manifests {
		if mf.ItemID != items[i].ID {
			t.Errorf("manifest %d is for %q, want %q", i, mf.ItemID, items[i].ID)
		}
		if !mf.Complete() {
			t.Errorf("manifest %s incomplete: %+v", mf.ItemID, mf.Assets)
		}
		for _, a := range mf.Assets {
			if a.Attempts != 1 {
				t.Errorf("%s: got %d attempts, want 1", a.Key, a.Attempts)
			}
			if _, err := os.Stat(a.Path); err != nil {
				t.Errorf("%s: %v", a.Key, err)
			}
		}
	}

	if got := manifests[0].Path(model.KindImage, ""); got != filepath.Join(s.MediaDir, "a.jpg") {
		t.Errorf("image path = %q", got)
	}
	if got := manifests[0].Path(model.KindAudio, "sentence"); got != filepath.Join(s.MediaDir, "a_sentence.mp3") {
		t.Errorf("audio path = %q", got)
	}

	sum := m.Summary()
	if sum.Acquired() != 5 || sum.Failed() != 0 {
		t.Errorf("acquired/failed = %d/%d, want 5/0", sum.Acquired(), sum.Failed())
	}
	p := m.GetProgress()
	if p.ItemsDone != 2 || p.AssetsDone != 5 || p.Fraction() != 1 {
		t.Errorf("progress = %+v", p)
	}
}

func TestRun_RetryOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		script       []model.Signal
		wantAcquired bool
		wantAttempts int
	}{
		{"transient then success", []model.Signal{model.TransientError}, true, 2},
		{"rate limited then success", []model.Signal{model.RateLimited}, true, 2},
		{"permanent", []model.Signal{model.PermanentError}, false, 1},
		{"exhausted", []model.Signal{model.TransientError, model.TransientError, model.TransientError}, false, 3},
		{"always rate limited", []model.Signal{model.RateLimited, model.RateLimited, model.RateLimited}, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(t)
			s.MaxAttempts = 3
			fb := newFakeBackend()
			item := testItem("x")
			key := item.Requests(s.ToPathConfig())[0].Key
			fb.script[key] = tt.script

			manifests, err := newTestManager(s, fb).Run(context.Background(), []*model.Item{item})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			got := manifests[0].Assets[0]
			if got.Acquired != tt.wantAcquired {
				t.Errorf("Acquired = %v, want %v (error %q)", got.Acquired, tt.wantAcquired, got.Error)
			}
			if got.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", got.Attempts, tt.wantAttempts)
			}
			if n := fb.count(key); n != tt.wantAttempts {
				t.Errorf("backend calls = %d, want %d", n, tt.wantAttempts)
			}
			if !got.Acquired && got.Error == "" {
				t.Error("failed asset has no error")
			}
		})
	}
}

func TestRun_RateLimitShrinksGovernor(t *testing.T) {
	s := testSettings(t)
	s.BaselineConcurrency = 4
	s.MaxConcurrency = 8
	fb := newFakeBackend()
	item := testItem("x")
	key := item.Requests(s.ToPathConfig())[0].Key
	fb.script[key] = []model.Signal{model.RateLimited, model.RateLimited, model.RateLimited}

	var events []ProgressEvent
	var mu sync.Mutex
	m := NewManager(s, func(e ProgressEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, WithFetcher(fb), WithSynthesizer(fb))

	manifests, err := m.Run(context.Background(), []*model.Item{item})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if manifests[0].Assets[0].Acquired {
		t.Error("asset acquired despite constant rate limiting")
	}

	st := m.Governor().State()
	if st.Shrinks < 1 {
		t.Errorf("Shrinks = %d, want at least 1", st.Shrinks)
	}
	if st.Limit != 1 {
		t.Errorf("Limit = %d, want 1", st.Limit)
	}

	mu.Lock()
	defer mu.Unlock()
	warned := false
	for _, e := range events {
		if e.Level == LevelWarning && strings.Contains(e.Message, "Concurrency 4 -> 2") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no concurrency change event in %v", events)
	}
}

func TestRun_InjectedGovernorReportsLimitChanges(t *testing.T) {
	s := testSettings(t)
	fb := newFakeBackend()
	item := testItem("x")
	fb.script[item.Requests(s.ToPathConfig())[0].Key] = []model.Signal{model.RateLimited}

	gov := governor.New(governor.Config{Baseline: 4, Ceiling: 4})
	var events []ProgressEvent
	var mu sync.Mutex
	m := NewManager(s, func(e ProgressEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, WithFetcher(fb), WithSynthesizer(fb), WithGovernor(gov))

	if _, err := m.Run(context.Background(), []*model.Item{item}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if m.Governor() != gov {
		t.Fatal("manager replaced the injected governor")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		if strings.Contains(e.Message, "Concurrency 4 -> 2") {
			return
		}
	}
	t.Errorf("no concurrency change event in %v", events)
}

func TestRun_UnsupportedNeverDispatched(t *testing.T) {
	s := testSettings(t)
	fb := newFakeBackend()
	item := &model.Item{
		ID:    "u",
		Image: "nan",
		Audio: []model.AudioSource{
			{Slot: "empty", Text: ""},
			{Slot: "nan", Text: "nan"},
			{Slot: "markup", Text: "<br><br/>"},
			{Slot: "word", Text: "das Haus"},
		},
	}

	manifests, err := newTestManager(s, fb).Run(context.Background(), []*model.Item{item})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Blank image sources produce no request at all; "nan" does.
	assets := manifests[0].Assets
	if len(assets) != 5 {
		t.Fatalf("got %d assets, want 5", len(assets))
	}
	for _, a := range assets {
		if a.Slot == "word" {
			if !a.Acquired {
				t.Errorf("word clip not acquired: %s", a.Error)
			}
			continue
		}
		if a.Acquired || !a.Unsupported || a.Attempts != 0 {
			t.Errorf("%s: Acquired=%v Unsupported=%v Attempts=%d, want false/true/0", a.Key, a.Acquired, a.Unsupported, a.Attempts)
		}
	}
	if n := fb.total(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestRun_TooManyAudioClips(t *testing.T) {
	s := testSettings(t)
	fb := newFakeBackend()
	item := testItem("many", "a", "b", "c", "d", "e")

	manifests, err := newTestManager(s, fb).Run(context.Background(), []*model.Item{item})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	last := manifests[0].Assets[len(manifests[0].Assets)-1]
	if last.Slot != "e" || !last.Unsupported {
		t.Errorf("fifth clip = %+v, want unsupported slot e", last)
	}
	if n := fb.total(); n != 5 {
		t.Errorf("backend calls = %d, want 5", n)
	}
}

func TestRun_SharedKeyAcquiredOnce(t *testing.T) {
	s := testSettings(t)
	fb := newFakeBackend()
	fb.delay = 20 * time.Millisecond

	items := []*model.Item{testItem("dup", "word"), testItem("dup", "word")}
	manifests, err := newTestManager(s, fb).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, key := range []string{"dup:image", "dup:audio:word"} {
		if n := fb.count(key); n != 1 {
			t.Errorf("%s fetched %d times, want 1", key, n)
		}
	}
	for i, mf := range manifests {
		if !mf.Complete() {
			t.Errorf("manifest %d incomplete: %+v", i, mf.Assets)
		}
	}
	for j := range manifests[0].Assets {
		a, b := manifests[0].Assets[j], manifests[1].Assets[j]
		if a.FromCache == b.FromCache {
			t.Errorf("%s: FromCache %v/%v, want exactly one cache hit", a.Key, a.FromCache, b.FromCache)
		}
	}
}

func TestRun_DistinctItemsNeverShareAssets(t *testing.T) {
	s := testSettings(t)
	s.BaselineConcurrency = 1
	s.MaxConcurrency = 1
	fb := newFakeBackend()

	items := []*model.Item{
		testItem("haus/noun"),
		testItem("haus_noun"),
		testItem("x:audio"),
		{ID: "x", Audio: []model.AudioSource{
			{Slot: "image", Text: "das Bild"},
			{Slot: "w:1", Text: "das Wort"},
			{Slot: "image", Text: "noch einmal"},
		}},
	}
	manifests, err := newTestManager(s, fb).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, key := range []string{"haus/noun:image", "haus_noun:image", "x:audio:image"} {
		if n := fb.count(key); n != 1 {
			t.Errorf("%s fetched %d times, want 1", key, n)
		}
	}
	if n := fb.total(); n != 3 {
		t.Errorf("backend calls = %d, want 3", n)
	}

	paths := make(map[string]string)
	for _, mf := range manifests[:2] {
		a := mf.Assets[0]
		if !a.Acquired || a.FromCache {
			t.Errorf("%s: Acquired=%v FromCache=%v, want fresh acquisition", mf.ItemID, a.Acquired, a.FromCache)
		}
		if other, ok := paths[a.Path]; ok {
			t.Errorf("%s and %s share %s", other, mf.ItemID, a.Path)
		}
		paths[a.Path] = mf.ItemID
	}

	if a := manifests[2].Assets[0]; a.Acquired || !a.Unsupported {
		t.Errorf("image of %q = %+v, want unsupported", manifests[2].ItemID, a)
	}

	clips := manifests[3].Assets
	if a := clips[0]; !a.Acquired || a.FromCache || filepath.Ext(a.Path) != ".mp3" {
		t.Errorf("slot image = %+v, want fresh mp3", a)
	}
	for _, a := range clips[1:] {
		if a.Acquired || !a.Unsupported {
			t.Errorf("slot %q = %+v, want unsupported", a.Slot, a)
		}
	}
}

func TestRun_SecondRunUsesCache(t *testing.T) {
	s := testSettings(t)
	items := []*model.Item{testItem("a", "word"), testItem("b", "word", "sentence")}

	first := newFakeBackend()
	if _, err := newTestManager(s, first).Run(context.Background(), items); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := os.Stat(s.ResolvedIndexPath()); err != nil {
		t.Fatalf("index not written: %v", err)
	}

	second := newFakeBackend()
	manifests, err := newTestManager(s, second).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if n := second.total(); n != 0 {
		t.Errorf("second run made %d backend calls, want 0", n)
	}
	for _, mf := range manifests {
		for _, a := range mf.Assets {
			if !a.Acquired || !a.FromCache {
				t.Errorf("%s: Acquired=%v FromCache=%v, want true/true", a.Key, a.Acquired, a.FromCache)
			}
		}
	}
}

func TestRun_AdoptsFilesWithoutIndex(t *testing.T) {
	s := testSettings(t)
	item := testItem("a")
	req := item.Requests(s.ToPathConfig())[0]
	if err := os.WriteFile(req.Path, bytes.Repeat([]byte("x"), 100), 0644); err != nil {
		t.Fatal(err)
	}

	fb := newFakeBackend()
	manifests, err := newTestManager(s, fb).Run(context.Background(), []*model.Item{item})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := fb.total(); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
	if a := manifests[0].Assets[0]; !a.FromCache || a.Path != req.Path {
		t.Errorf("asset = %+v, want cache hit at %s", a, req.Path)
	}
}

func TestRun_RedownloadsTruncatedFile(t *testing.T) {
	s := testSettings(t)
	item := testItem("a")
	req := item.Requests(s.ToPathConfig())[0]

	if _, err := newTestManager(s, newFakeBackend()).Run(context.Background(), []*model.Item{item}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := os.WriteFile(req.Path, []byte("tiny"), 0644); err != nil {
		t.Fatal(err)
	}

	fb := newFakeBackend()
	manifests, err := newTestManager(s, fb).Run(context.Background(), []*model.Item{item})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if n := fb.count(req.Key); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
	if a := manifests[0].Assets[0]; !a.Acquired || a.FromCache {
		t.Errorf("asset = %+v, want fresh acquisition", a)
	}
}

func TestRun_AdmissionLimit(t *testing.T) {
	s := testSettings(t)
	s.BaselineConcurrency = 2
	s.MaxConcurrency = 2
	fb := newFakeBackend()
	fb.delay = 10 * time.Millisecond

	var items []*model.Item
	for i := 0; i < 8; i++ {
		items = append(items, testItem(fmt.Sprintf("i%d", i)))
	}
	if _, err := newTestManager(s, fb).Run(context.Background(), items); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fb.maxSeen > 2 {
		t.Errorf("saw %d concurrent items, want at most 2", fb.maxSeen)
	}
}

func TestRun_CancelledStillManifestsEveryItem(t *testing.T) {
	s := testSettings(t)
	s.BaselineConcurrency = 1
	s.MaxConcurrency = 1
	fb := newFakeBackend()
	fb.delay = time.Second

	var items []*model.Item
	for i := 0; i < 5; i++ {
		items = append(items, testItem(fmt.Sprintf("c%d", i), "word"))
	}

	var handled int
	var mu sync.Mutex
	m := newTestManager(s, fb, WithManifestHandler(func(model.AssetManifest) {
		mu.Lock()
		handled++
		mu.Unlock()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	manifests, err := m.Run(ctx, items)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if len(manifests) != len(items) {
		t.Fatalf("got %d manifests, want %d", len(manifests), len(items))
	}
	for i, mf := range manifests {
		if mf.ItemID != items[i].ID {
			t.Errorf("manifest %d is for %q, want %q", i, mf.ItemID, items[i].ID)
		}
		for _, a := range mf.Assets {
			if a.Acquired {
				t.Errorf("%s acquired after cancellation", a.Key)
			}
			if a.Error == "" {
				t.Errorf("%s has no error", a.Key)
			}
		}
		if _, err := os.Stat(filepath.Join(s.MediaDir, mf.ItemID+".jpg")); !os.IsNotExist(err) {
			t.Errorf("%s: file left behind after cancellation", mf.ItemID)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if handled != len(items) {
		t.Errorf("manifest handler ran %d times, want %d", handled, len(items))
	}
}

func TestRun_UnusableMediaDir(t *testing.T) {
	s := testSettings(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s.MediaDir = filepath.Join(file, "media")

	fb := newFakeBackend()
	items := []*model.Item{testItem("a", "word"), testItem("b")}
	manifests, err := newTestManager(s, fb).Run(context.Background(), items)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2", len(manifests))
	}
	for _, mf := range manifests {
		if mf.Complete() {
			t.Errorf("manifest %s complete despite storage failure", mf.ItemID)
		}
	}
	if n := fb.total(); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}
