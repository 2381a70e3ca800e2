package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2"

	"github.com/handiism/deck-media/internal/model"
)

func testManifests() []model.AssetManifest {
	return []model.AssetManifest{
		{
			ItemID: "abc",
			Assets: []model.AssetResult{
				{Kind: model.KindImage, Acquired: true, Path: "/media/abc.jpg"},
				{Kind: model.KindAudio, Slot: "word", Acquired: true, Path: "/media/abc_word.mp3"},
				{Kind: model.KindAudio, Slot: "sentence", Acquired: false},
			},
		},
		{
			ItemID: "def",
			Assets: []model.AssetResult{
				{Kind: model.KindAudio, Slot: "word", Acquired: true, Path: "/media/def_word.mp3"},
			},
		},
	}
}

func TestEntriesFromManifests(t *testing.T) {
	entries := EntriesFromManifests(testManifests())
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Path != "/media/abc_word.mp3" || entries[0].Title != "abc word" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}

func TestWriteReviewPlaylist(t *testing.T) {
	dir := t.TempDir()
	manifests := []model.AssetManifest{{
		ItemID: "abc",
		Assets: []model.AssetResult{
			{Kind: model.KindAudio, Slot: "word", Acquired: true, Path: filepath.Join(dir, "abc_word.mp3")},
		},
	}}

	path, err := WriteReviewPlaylist(dir, manifests)
	if err != nil {
		t.Fatalf("WriteReviewPlaylist failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "#EXTM3U\n#EXTINF:-1,abc word\nabc_word.mp3\n"; string(data) != want {
		t.Errorf("got %q, want %q", data, want)
	}

	path, err = WriteReviewPlaylist(dir, nil)
	if err != nil || path != "" {
		t.Errorf("empty manifests: path=%q err=%v, want no file", path, err)
	}
}

func TestPlaylistCreator_M3U(t *testing.T) {
	entries := EntriesFromManifests(testManifests())

	plain := NewPlaylistCreator(FormatM3U, false).CreatePlaylist(entries, "/media")
	if plain != "abc_word.mp3\ndef_word.mp3\n" {
		t.Errorf("M3U = %q", plain)
	}

	extended := NewPlaylistCreator(FormatM3U, true).CreatePlaylist(entries, "/media")
	if !strings.HasPrefix(extended, "#EXTM3U\n") {
		t.Error("Extended M3U should start with #EXTM3U")
	}
	if !strings.Contains(extended, "#EXTINF:-1,abc word\n") {
		t.Errorf("Extended M3U missing EXTINF: %q", extended)
	}
}

func TestPlaylistCreator_PLS(t *testing.T) {
	content := NewPlaylistCreator(ParsePlaylistFormat("pls"), false).
		CreatePlaylist(EntriesFromManifests(testManifests()), "/media")

	for _, want := range []string{"[playlist]\n", "File1=abc_word.mp3\n", "Title2=def word\n", "NumberOfEntries=2\n"} {
		if !strings.Contains(content, want) {
			t.Errorf("PLS missing %q in %q", want, content)
		}
	}
}

func TestPlaylistFormat_Extension(t *testing.T) {
	if got := FormatM3U.Extension(); got != ".m3u" {
		t.Errorf("got %q, want %q", got, ".m3u")
	}
	if got := ParsePlaylistFormat("PLS").Extension(); got != ".pls" {
		t.Errorf("got %q, want %q", got, ".pls")
	}
}

func TestTagClip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	audio := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 256)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		t.Fatal(err)
	}

	tagger := NewTagger(nil)
	err := tagger.TagClip(path, ClipInfo{
		Title:  "Das Haus",
		Voice:  "de-DE-KatjaNeural",
		ItemID: "abc",
		Slot:   "word",
		Text:   "Das Haus",
	})
	if err != nil {
		t.Fatalf("TagClip failed: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tag.Close()

	if got := tag.Title(); got != "Das Haus" {
		t.Errorf("Title = %q, want %q", got, "Das Haus")
	}
	if got := tag.Artist(); got != "de-DE-KatjaNeural" {
		t.Errorf("Artist = %q, want %q", got, "de-DE-KatjaNeural")
	}
	if got := tag.Album(); got != "deck-media" {
		t.Errorf("Album = %q, want %q", got, "deck-media")
	}
}

func TestShortTitle(t *testing.T) {
	if got := ShortTitle("Haus", 10); got != "Haus" {
		t.Errorf("got %q, want %q", got, "Haus")
	}
	if got := ShortTitle("Größenordnung", 5); got != "Größ…" {
		t.Errorf("got %q, want %q", got, "Größ…")
	}
}
