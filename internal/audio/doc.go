// Package audio post-processes synthesized clips.
//
// Tagger writes ID3v2 frames (title, voice, deck, spoken text) to each clip.
// PlaylistCreator builds an M3U or PLS playlist of every acquired clip so a
// deck can be proof-listened in any media player.
package audio
