package http

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	srcDouble = regexp.MustCompile(`(?i)src\s*=\s*"([^"]*)"`)
	srcSingle = regexp.MustCompile(`(?i)src\s*=\s*'([^']*)'`)
)

// ExtractImageURL returns the image URL carried by raw, which may be a bare
// URL, an <img> tag or a src="..." / src='...' fragment. Blank input, the
// literal "nan" and values too short to be a URL yield "".
//
//	ExtractImageURL(`<img src="https://x.test/a.jpg">`) // "https://x.test/a.jpg"
//	ExtractImageURL("nan")                              // ""
func ExtractImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return ""
	}

	u := raw
	if strings.Contains(raw, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
				u = src
			}
		}
	}
	if u == raw {
		if m := srcDouble.FindStringSubmatch(raw); m != nil {
			u = html.UnescapeString(m[1])
		} else if m := srcSingle.FindStringSubmatch(raw); m != nil {
			u = html.UnescapeString(m[1])
		}
	}

	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if len(u) < 5 || strings.EqualFold(u, "nan") || strings.ContainsAny(u, "<>\"' \t\n") {
		return ""
	}
	return u
}
