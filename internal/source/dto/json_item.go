package dto

import (
	"strings"

	"github.com/handiism/deck-media/internal/model"
)

// JSONItem is one entry of a JSON item list.
//
//	[{"word": "das Haus", "part_of_speech": "noun",
//	  "image": "https://example.com/haus.jpg",
//	  "audio": [{"slot": "word", "text": "das Haus"}]}]
//
// ID may be given explicitly; otherwise it is derived from Word and
// PartOfSpeech the same way as for CSV rows.
type JSONItem struct {
	ID           string              `json:"id"`
	Word         string              `json:"word"`
	PartOfSpeech string              `json:"part_of_speech"`
	Image        string              `json:"image"`
	Audio        []model.AudioSource `json:"audio"`
}

// ToItem converts the entry to a model.Item. derive computes the identity
// when ID is empty.
func (j *JSONItem) ToItem(derive func(word, pos string) string) *model.Item {
	id := strings.TrimSpace(j.ID)
	if id == "" {
		id = derive(j.Word, j.PartOfSpeech)
	}
	audio := j.Audio
	if len(audio) == 0 && strings.TrimSpace(j.Word) != "" {
		audio = []model.AudioSource{{Slot: "word", Text: j.Word}}
	}
	return &model.Item{ID: id, Image: j.Image, Audio: audio}
}
