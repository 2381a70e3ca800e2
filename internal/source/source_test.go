package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = "\ufeffTargetWord|Part_of_Speech|Image|ContextSentences\n" +
	"das Haus|noun|<img src=\"https://example.com/haus.jpg\">|Das Haus ist alt.\n" +
	"laufen|verb|nan|Ich laufe.<br>Du läufst.\n" +
	"|noun|x|skipped\n" +
	"der Tisch|noun||nan\n"

func TestParseCSV(t *testing.T) {
	items, err := NewLoader(DefaultColumns()).ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	haus := items[0]
	if haus.ID != DeriveItemID("das Haus", "noun") {
		t.Errorf("ID = %q, want derived id", haus.ID)
	}
	if haus.Image != `<img src="https://example.com/haus.jpg">` {
		t.Errorf("Image = %q", haus.Image)
	}
	if len(haus.Audio) != 2 || haus.Audio[0].Text != "das Haus" || haus.Audio[1].Slot != "sentence" {
		t.Errorf("Audio = %+v", haus.Audio)
	}

	if items[1].Image != "" {
		t.Errorf("nan image should be empty, got %q", items[1].Image)
	}
	if got := items[2].Audio[1].Text; got != "" {
		t.Errorf("nan sentence should be empty, got %q", got)
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := NewLoader(DefaultColumns()).ParseCSV(strings.NewReader("Word|Image\nx|y\n"))
	if err == nil || !strings.Contains(err.Error(), "TargetWord") {
		t.Errorf("error = %v, want missing TargetWord column", err)
	}
}

func TestParseCSV_Empty(t *testing.T) {
	tests := []string{"", "TargetWord|Image\n", "TargetWord\n|\n"}
	for _, input := range tests {
		_, err := NewLoader(DefaultColumns()).ParseCSV(strings.NewReader(input))
		if !errors.Is(err, ErrNoItems) {
			t.Errorf("ParseCSV(%q) error = %v, want ErrNoItems", input, err)
		}
	}
}

func TestParseJSON(t *testing.T) {
	input := `[
		{"word": "das Haus", "part_of_speech": "noun", "image": "https://example.com/a.jpg"},
		{"id": "fixed", "audio": [{"slot": "a", "text": "eins"}, {"slot": "b", "text": "zwei"}]}
	]`
	items, err := NewLoader(DefaultColumns()).ParseJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != DeriveItemID("Haus", "noun") {
		t.Errorf("ID = %q, want derived id", items[0].ID)
	}
	if len(items[0].Audio) != 1 || items[0].Audio[0].Slot != "word" {
		t.Errorf("default audio = %+v", items[0].Audio)
	}
	if items[1].ID != "fixed" || len(items[1].Audio) != 2 {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestParseJSON_TooManyAudio(t *testing.T) {
	input := `[{"id": "x", "audio": [
		{"slot": "1", "text": "a"}, {"slot": "2", "text": "b"}, {"slot": "3", "text": "c"},
		{"slot": "4", "text": "d"}, {"slot": "5", "text": "e"}]}]`
	if _, err := NewLoader(DefaultColumns()).ParseJSON(strings.NewReader(input)); err == nil {
		t.Error("ParseJSON should reject more than four audio sources")
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "deck.csv")
	jsonPath := filepath.Join(dir, "deck.json")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jsonPath, []byte(`[{"id": "a", "image": "https://example.com/a.jpg"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(DefaultColumns())
	if items, err := l.Load(csvPath); err != nil || len(items) != 3 {
		t.Errorf("Load(csv) = %d items, %v", len(items), err)
	}
	if items, err := l.Load(jsonPath); err != nil || len(items) != 1 {
		t.Errorf("Load(json) = %d items, %v", len(items), err)
	}
}

func TestStripArticle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"das Haus", "Haus"},
		{"Der Tisch", "Tisch"},
		{"die  Lampe", "Lampe"},
		{"Dach", "Dach"},
		{"dasselbe", "dasselbe"},
		{"der", "der"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StripArticle(tt.input); got != tt.want {
				t.Errorf("StripArticle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeriveItemID_IgnoresArticle(t *testing.T) {
	if DeriveItemID("das Haus", "noun") != DeriveItemID("Haus", "noun") {
		t.Error("article should not change the item id")
	}
	if DeriveItemID("Haus", "noun") == DeriveItemID("Haus", "verb") {
		t.Error("part of speech should change the item id")
	}
}
