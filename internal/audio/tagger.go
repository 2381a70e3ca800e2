package audio

import (
	"github.com/bogem/id3v2"
)

// TagConfig controls which frames the Tagger writes.
type TagConfig struct {
	// Album is written to TALB on every clip, typically the deck name.
	Album string

	// WriteLyrics stores the spoken text as an unsynchronised lyrics frame.
	WriteLyrics bool

	// Language is the ISO 639-2 code for the lyrics frame.
	Language string
}

// DefaultTagConfig returns the configuration used by the CLI.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{Album: "deck-media", WriteLyrics: true, Language: "deu"}
}

// ClipInfo describes one synthesized clip.
type ClipInfo struct {
	Title  string // spoken text, shortened
	Voice  string
	ItemID string
	Slot   string
	Text   string // full spoken text
}

// Tagger writes ID3v2 frames to synthesized clips so they are identifiable
// outside the deck.
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a Tagger. A nil config means DefaultTagConfig.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// TagClip writes title, artist (voice), album and grouping frames to path.
func (t *Tagger) TagClip(path string, info ClipInfo) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(info.Title)
	tag.SetArtist(info.Voice)
	if t.config.Album != "" {
		tag.SetAlbum(t.config.Album)
	}
	tag.AddTextFrame("TIT1", id3v2.EncodingUTF8, info.ItemID)
	tag.AddTextFrame("TIT3", id3v2.EncodingUTF8, info.Slot)

	if t.config.WriteLyrics && info.Text != "" {
		tag.DeleteFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          t.config.Language,
			ContentDescriptor: info.Slot,
			Lyrics:            info.Text,
		})
	}

	return tag.Save()
}

// ShortTitle cuts text to at most n runes with an ellipsis.
func ShortTitle(text string, n int) string {
	r := []rune(text)
	if n <= 0 || len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}
