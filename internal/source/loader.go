package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/handiism/deck-media/internal/model"
	"github.com/handiism/deck-media/internal/source/dto"
)

// ErrNoItems is returned when a source yields no usable rows.
var ErrNoItems = errors.New("no items found")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Columns names the CSV header cells the Loader reads.
type Columns struct {
	Word         string
	PartOfSpeech string
	Image        string
	Sentence     string
}

// DefaultColumns returns the header names of the vocabulary export.
func DefaultColumns() Columns {
	return Columns{
		Word:         "TargetWord",
		PartOfSpeech: "Part_of_Speech",
		Image:        "Image",
		Sentence:     "ContextSentences",
	}
}

// Loader reads item lists from pipe-separated CSV or JSON files.
type Loader struct {
	columns Columns
	comma   rune
}

// NewLoader creates a Loader for the given columns.
func NewLoader(columns Columns) *Loader {
	return &Loader{columns: columns, comma: '|'}
}

// Load reads path, choosing the format from its extension (.json for JSON,
// anything else for CSV).
func (l *Loader) Load(path string) ([]*model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return l.ParseJSON(f)
	}
	return l.ParseCSV(f)
}

// ParseCSV reads a header row followed by one item per row. Rows with an
// empty target word are skipped. Empty cells and the literal "nan" count as
// missing values.
func (l *Loader) ParseCSV(r io.Reader) ([]*model.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = l.comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoItems
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := indexHeader(header)

	wordCol, ok := idx[strings.ToLower(l.columns.Word)]
	if !ok {
		return nil, fmt.Errorf("missing column %q", l.columns.Word)
	}
	posCol, hasPOS := idx[strings.ToLower(l.columns.PartOfSpeech)]
	imageCol, hasImage := idx[strings.ToLower(l.columns.Image)]
	sentenceCol, hasSentence := idx[strings.ToLower(l.columns.Sentence)]

	var items []*model.Item
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		word := cell(row, wordCol, true)
		if word == "" {
			continue
		}
		pos := cell(row, posCol, hasPOS)

		item := &model.Item{
			ID:    DeriveItemID(word, pos),
			Image: cell(row, imageCol, hasImage),
			Audio: []model.AudioSource{{Slot: "word", Text: word}},
		}
		if hasSentence {
			item.Audio = append(item.Audio, model.AudioSource{Slot: "sentence", Text: cell(row, sentenceCol, true)})
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// ParseJSON reads an array of dto.JSONItem.
func (l *Loader) ParseJSON(r io.Reader) ([]*model.Item, error) {
	var raw []dto.JSONItem
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	items := make([]*model.Item, 0, len(raw))
	for i := range raw {
		item := raw[i].ToItem(DeriveItemID)
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// DeriveItemID computes the stable identity of a vocabulary entry: the MD5
// of the word without its leading article, followed by the part of speech.
func DeriveItemID(word, pos string) string {
	return model.DeriveID(StripArticle(strings.TrimSpace(word)), strings.TrimSpace(pos))
}

// StripArticle removes a leading German definite article.
//
//	StripArticle("das Haus") // "Haus"
//	StripArticle("Dach")     // "Dach"
func StripArticle(word string) string {
	for _, article := range []string{"der ", "die ", "das "} {
		if len(word) > len(article) && strings.EqualFold(word[:len(article)], article) {
			return strings.TrimSpace(word[len(article):])
		}
	}
	return word
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func cell(row []string, i int, present bool) string {
	if !present || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
