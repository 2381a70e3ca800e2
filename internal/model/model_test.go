package model

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPlainName(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"0d5b6f", true},
		{"word", true},
		{"a.b-c", true},
		{"Haus", false},
		{"haus_noun", false},
		{"haus/noun", false},
		{"trailing.", false},
		{".hidden", false},
		{"", false},
		{strings.Repeat("a", maxPlainName+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := plainName(tt.input); got != tt.want {
				t.Errorf("plainName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestItem_RequestPathsAreDistinct(t *testing.T) {
	cfg := &PathConfig{MediaDir: "/media", ImageExt: ".dat", AudioExt: ".dat"}
	items := []*Item{
		{ID: "haus/noun", Image: "u"},
		{ID: "haus_noun", Image: "u"},
		{ID: "Haus", Image: "u"},
		{ID: "haus", Image: "u", Audio: []AudioSource{{Slot: "noun", Text: "x"}}},
		{ID: "a", Audio: []AudioSource{{Slot: "b_c", Text: "x"}}},
		{ID: "a_b", Audio: []AudioSource{{Slot: "c", Text: "x"}}},
	}

	seen := make(map[string]string)
	for _, item := range items {
		for _, req := range item.Requests(cfg) {
			if other, ok := seen[req.Path]; ok {
				t.Errorf("%s and %s share path %s", other, req.Key, req.Path)
			}
			seen[req.Path] = req.Key
		}
	}
}

func TestDeriveID(t *testing.T) {
	a := DeriveID("Haus", "noun")
	b := DeriveID("Haus", "noun")
	c := DeriveID("Haus", "verb")

	if len(a) != 32 {
		t.Fatalf("DeriveID length = %d, want 32", len(a))
	}
	if a != b {
		t.Errorf("DeriveID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Error("DeriveID should differ for different parts")
	}
	if got, want := DeriveID(""), "d41d8cd98f00b204e9800998ecf8427e"; got != want {
		t.Errorf("DeriveID(\"\") = %q, want %q", got, want)
	}
}

func TestItem_Requests(t *testing.T) {
	cfg := DefaultPathConfig("/media")
	item := &Item{
		ID:    "abc",
		Image: "https://example.com/a.jpg",
		Audio: []AudioSource{
			{Slot: "word", Text: "Haus"},
			{Slot: "sentence", Text: "Das Haus ist alt."},
		},
	}

	reqs := item.Requests(cfg)
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}

	tests := []struct {
		kind AssetKind
		key  string
		path string
	}{
		{KindImage, "abc:image", filepath.Join("/media", "abc.jpg")},
		{KindAudio, "abc:audio:word", filepath.Join("/media", "abc_word.mp3")},
		{KindAudio, "abc:audio:sentence", filepath.Join("/media", "abc_sentence.mp3")},
	}
	for i, tt := range tests {
		if reqs[i].Kind != tt.kind {
			t.Errorf("reqs[%d].Kind = %q, want %q", i, reqs[i].Kind, tt.kind)
		}
		if reqs[i].Key != tt.key {
			t.Errorf("reqs[%d].Key = %q, want %q", i, reqs[i].Key, tt.key)
		}
		if reqs[i].Path != tt.path {
			t.Errorf("reqs[%d].Path = %q, want %q", i, reqs[i].Path, tt.path)
		}
	}
}

func TestItem_RequestsWithoutImage(t *testing.T) {
	item := &Item{ID: "abc", Audio: []AudioSource{{Slot: "word", Text: "Haus"}}}

	reqs := item.Requests(DefaultPathConfig("media"))
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].Kind != KindAudio {
		t.Errorf("got kind %q, want %q", reqs[0].Kind, KindAudio)
	}
}

func TestItem_Validate(t *testing.T) {
	five := make([]AudioSource, 5)
	for i := range five {
		five[i] = AudioSource{Slot: string(rune('a' + i)), Text: "x"}
	}

	tests := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{"valid", Item{ID: "a", Audio: []AudioSource{{Slot: "word", Text: "x"}}}, false},
		{"empty id", Item{ID: " "}, true},
		{"too many audio", Item{ID: "a", Audio: five}, true},
		{"duplicate slot", Item{ID: "a", Audio: []AudioSource{{Slot: "w"}, {Slot: "w"}}}, true},
		{"empty slot", Item{ID: "a", Audio: []AudioSource{{Text: "x"}}}, true},
		{"separator in id", Item{ID: "x:audio"}, true},
		{"separator in slot", Item{ID: "a", Audio: []AudioSource{{Slot: "w:1", Text: "x"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssetRequest_Empty(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"", true},
		{"   ", true},
		{"nan", true},
		{"NaN", true},
		{"Haus", false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			r := AssetRequest{Payload: tt.payload}
			if got := r.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignal_Retryable(t *testing.T) {
	tests := []struct {
		signal Signal
		want   bool
	}{
		{Success, false},
		{RateLimited, true},
		{TransientError, true},
		{PermanentError, false},
	}
	for _, tt := range tests {
		t.Run(tt.signal.String(), func(t *testing.T) {
			if got := tt.signal.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssetManifest_Complete(t *testing.T) {
	m := &AssetManifest{
		ItemID: "a",
		Assets: []AssetResult{
			{Kind: KindImage, Acquired: true, Path: "a.jpg"},
			{Kind: KindAudio, Slot: "word", Acquired: false},
		},
	}
	if m.Complete() {
		t.Error("Complete() should be false with an unacquired asset")
	}
	if got := m.Path(KindImage, ""); got != "a.jpg" {
		t.Errorf("Path(image) = %q, want %q", got, "a.jpg")
	}
	if got := m.Path(KindAudio, "word"); got != "" {
		t.Errorf("Path(audio/word) = %q, want empty", got)
	}
}
