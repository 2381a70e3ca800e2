package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/model"
)

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// FormatM3U creates .m3u playlists.
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls playlists.
	FormatPLS
)

// ParsePlaylistFormat maps "m3u" or "pls" to a format, M3U otherwise.
func ParsePlaylistFormat(s string) PlaylistFormat {
	if strings.EqualFold(s, "pls") {
		return FormatPLS
	}
	return FormatM3U
}

// Extension returns the file extension, including the dot.
func (f PlaylistFormat) Extension() string {
	if f == FormatPLS {
		return ".pls"
	}
	return ".m3u"
}

// PlaylistEntry is one clip in a review playlist.
type PlaylistEntry struct {
	Path  string
	Title string
}

// EntriesFromManifests lists every acquired audio clip in manifest order.
func EntriesFromManifests(manifests []model.AssetManifest) []PlaylistEntry {
	var entries []PlaylistEntry
	for _, m := range manifests {
		for _, a := range m.Assets {
			if a.Kind != model.KindAudio || !a.Acquired {
				continue
			}
			entries = append(entries, PlaylistEntry{
				Path:  a.Path,
				Title: m.ItemID + " " + a.Slot,
			})
		}
	}
	return entries
}

// PlaylistCreator generates playlist files for reviewing synthesized audio.
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool // M3U only: include #EXTINF lines
}

// NewPlaylistCreator creates a PlaylistCreator.
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{format: format, extended: extended}
}

// CreatePlaylist renders entries with paths relative to baseDir when possible.
func (p *PlaylistCreator) CreatePlaylist(entries []PlaylistEntry, baseDir string) string {
	if p.format == FormatPLS {
		return p.createPLS(entries, baseDir)
	}
	return p.createM3U(entries, baseDir)
}

func (p *PlaylistCreator) createM3U(entries []PlaylistEntry, baseDir string) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}
	for _, e := range entries {
		if p.extended {
			sb.WriteString(fmt.Sprintf("#EXTINF:-1,%s\n", e.Title))
		}
		sb.WriteString(relative(baseDir, e.Path) + "\n")
	}
	return sb.String()
}

func (p *PlaylistCreator) createPLS(entries []PlaylistEntry, baseDir string) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")
	for i, e := range entries {
		idx := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, relative(baseDir, e.Path)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, e.Title))
		sb.WriteString(fmt.Sprintf("Length%d=-1\n", idx))
	}
	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(entries)))
	sb.WriteString("Version=2\n")
	return sb.String()
}

func relative(baseDir, path string) string {
	if baseDir == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// WriteReviewPlaylist writes an extended M3U of every acquired clip to
// mediaDir/review.m3u and returns its path. Nothing is written when no clip
// was acquired.
func WriteReviewPlaylist(mediaDir string, manifests []model.AssetManifest) (string, error) {
	entries := EntriesFromManifests(manifests)
	if len(entries) == 0 {
		return "", nil
	}
	creator := NewPlaylistCreator(FormatM3U, true)
	path := filepath.Join(mediaDir, "review"+FormatM3U.Extension())
	if err := ioutils.WriteFileAtomic(path, []byte(creator.CreatePlaylist(entries, mediaDir))); err != nil {
		return "", err
	}
	return path, nil
}
