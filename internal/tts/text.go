package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	lineBreakTag  = regexp.MustCompile(`(?i)<br\s*/?>`)
	ordinalPrefix = regexp.MustCompile(`^\s*(?:\(\d+\)|\d+[.):])\s*`)
	whitespace    = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// CleanText turns raw card text into something a speech engine reads well:
// <br> breaks become sentence breaks, other markup is dropped, entities are
// decoded, leading "1." / "2)" / "(3)" numbering is removed from each line,
// whitespace is collapsed and the result is cut to at most maxLen runes.
//
//	CleanText("1. Das <b>Haus</b> ist alt.<br>2. Es ist groß", 500)
//	// "Das Haus ist alt. Es ist groß"
func CleanText(raw string, maxLen int) string {
	text := lineBreakTag.ReplaceAllString(raw, "\n")
	if strings.ContainsAny(text, "<&") {
		text = stripMarkup(text)
	}

	var parts []string
	for _, line := range strings.Split(text, "\n") {
		line = ordinalPrefix.ReplaceAllString(line, "")
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line != "" && !strings.EqualFold(line, "nan") {
			parts = append(parts, line)
		}
	}

	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			if endsSentence(parts[i-1]) {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(p)
	}
	return truncate(b.String(), maxLen)
}

// stripMarkup removes tags and decodes entities, keeping line breaks.
func stripMarkup(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func endsSentence(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(".!?…:;", r)
}

// truncate cuts s to maxLen runes, preferring the last word boundary in the
// second half of the window.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)[:maxLen]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
