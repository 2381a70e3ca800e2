package tts

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Das Haus ist alt.", "Das Haus ist alt."},
		{"bold tags", "Das <b>Haus</b> ist alt.", "Das Haus ist alt."},
		{"br becomes sentence break", "Das Haus<br>Der Garten", "Das Haus. Der Garten"},
		{"br after punctuation", "Das Haus ist alt.<br/>Der Garten ist groß.", "Das Haus ist alt. Der Garten ist groß."},
		{"br variants", "Eins<BR>Zwei<br />Drei", "Eins. Zwei. Drei"},
		{"ordinal prefixes", "1. Das Haus ist alt.<br>2) Der Garten ist groß.<br>(3) Ende", "Das Haus ist alt. Der Garten ist groß. Ende"},
		{"ordinal colon", "4: Hallo", "Hallo"},
		{"whitespace", "  Das   Haus \t ist\n\n alt  ", "Das Haus ist. alt"},
		{"entities", "Tom &amp; Jerry&nbsp;laufen", "Tom & Jerry laufen"},
		{"empty", "", ""},
		{"nan", "nan", ""},
		{"only markup", "<b></b><br>", ""},
		{"number not prefix", "Es kostet 5 Euro.", "Es kostet 5 Euro."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input, 500); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanText_Truncates(t *testing.T) {
	long := strings.Repeat("Wort ", 200)

	got := CleanText(long, 500)
	if n := utf8.RuneCountInString(got); n > 500 {
		t.Errorf("length = %d runes, want <= 500", n)
	}
	if strings.HasSuffix(got, " ") || strings.HasSuffix(got, "Wor") {
		t.Errorf("truncation split a word: %q", got[len(got)-10:])
	}

	umlauts := strings.Repeat("ä", 600)
	if n := utf8.RuneCountInString(CleanText(umlauts, 500)); n != 500 {
		t.Errorf("length = %d runes, want 500", n)
	}
}
