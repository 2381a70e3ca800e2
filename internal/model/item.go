package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxAudioPerItem is the largest number of audio clips a single item may request.
const MaxAudioPerItem = 4

// Item is one unit of work: a vocabulary entry that needs at most one image
// and up to MaxAudioPerItem synthesized audio clips.
//
// Example:
//
//	item := &Item{
//	    ID:    DeriveID("Haus", "noun"),
//	    Image: `<img src="https://example.com/haus.jpg">`,
//	    Audio: []AudioSource{
//	        {Slot: "word", Text: "das Haus"},
//	        {Slot: "sentence", Text: "Das Haus ist alt."},
//	    },
//	}
type Item struct {
	// ID is the stable identity of the item. Cache keys and file names derive from it.
	ID string

	// Image is the raw image source: a URL or an embedded <img> tag.
	// Empty means the item has no image.
	Image string

	// Audio lists the texts to synthesize, one clip per entry.
	Audio []AudioSource
}

// AudioSource is one text payload destined for speech synthesis.
type AudioSource struct {
	// Slot names the clip within its item ("word", "sentence", ...).
	// It must be unique per item because it becomes part of the file name.
	Slot string `json:"slot"`

	// Text is the raw text; cleaning happens at synthesis time.
	Text string `json:"text"`
}

// KeySeparator joins the parts of a cache key.
const KeySeparator = ":"

// CheckID reports whether id can identify an item.
func CheckID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("item has empty id")
	}
	if strings.Contains(id, KeySeparator) {
		return fmt.Errorf("item id %q contains %q", id, KeySeparator)
	}
	return nil
}

// CheckSlot reports whether slot can name an audio clip.
func CheckSlot(slot string) error {
	if slot == "" {
		return fmt.Errorf("audio source has empty slot")
	}
	if strings.Contains(slot, KeySeparator) {
		return fmt.Errorf("audio slot %q contains %q", slot, KeySeparator)
	}
	return nil
}

// Validate reports structural problems that make the item unusable.
func (i *Item) Validate() error {
	if err := CheckID(i.ID); err != nil {
		return err
	}
	if len(i.Audio) > MaxAudioPerItem {
		return fmt.Errorf("item %s: %d audio sources exceed the limit of %d", i.ID, len(i.Audio), MaxAudioPerItem)
	}
	seen := make(map[string]bool, len(i.Audio))
	for _, a := range i.Audio {
		if err := CheckSlot(a.Slot); err != nil {
			return fmt.Errorf("item %s: %w", i.ID, err)
		}
		if seen[a.Slot] {
			return fmt.Errorf("item %s: duplicate audio slot %q", i.ID, a.Slot)
		}
		seen[a.Slot] = true
	}
	return nil
}

// Requests expands the item into its asset requests, image first, then audio
// in declaration order. An image request is produced whenever the item names
// an image source; its payload may still turn out to be unusable.
func (i *Item) Requests(cfg *PathConfig) []AssetRequest {
	reqs := make([]AssetRequest, 0, 1+len(i.Audio))
	if strings.TrimSpace(i.Image) != "" {
		reqs = append(reqs, newAssetRequest(i.ID, KindImage, "", i.Image, cfg))
	}
	for _, a := range i.Audio {
		reqs = append(reqs, newAssetRequest(i.ID, KindAudio, a.Slot, a.Text, cfg))
	}
	return reqs
}

// PathConfig holds the destination layout for acquired assets.
type PathConfig struct {
	// MediaDir is the directory every asset is written to.
	MediaDir string

	// ImageExt is the extension for image files, including the dot.
	ImageExt string

	// AudioExt is the extension for audio files, including the dot.
	AudioExt string
}

// DefaultPathConfig returns the layout used by the deck builder: JPEG images
// and MP3 clips in a flat media directory.
func DefaultPathConfig(mediaDir string) *PathConfig {
	return &PathConfig{MediaDir: mediaDir, ImageExt: ".jpg", AudioExt: ".mp3"}
}

// DeriveID returns the hex MD5 digest of the concatenated parts.
//
//	DeriveID("Haus", "noun") // "0d5b6f..." (32 hex chars)
func DeriveID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// destinationPath computes the final file path for an asset. Ids and slots
// made of plainName characters are used as they are; anything else is named
// after the digest of its key, with a leading underscore so it can never
// clash with a plain name.
func destinationPath(key, itemID string, kind AssetKind, slot string, cfg *PathConfig) string {
	name, ext := itemID, cfg.ImageExt
	if kind == KindAudio {
		name, ext = itemID+"_"+slot, cfg.AudioExt
	}
	if !plainName(itemID) || (kind == KindAudio && !plainName(slot)) {
		name = "_" + DeriveID(key)
	}
	return filepath.Join(cfg.MediaDir, name+ext)
}

const maxPlainName = 96

var plainNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]*[a-z0-9])?$`)

// plainName reports whether s is safe to use verbatim in a file name on a
// case-insensitive file system. Underscores are excluded because they join
// the id and slot of audio files.
//
//	plainName("0d5b6f") // true
//	plainName("haus_noun") // false
func plainName(s string) bool {
	return len(s) <= maxPlainName && plainNamePattern.MatchString(s)
}
