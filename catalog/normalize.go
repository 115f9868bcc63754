package catalog

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// markupPattern matches the tags and entities the catalog actually emits.
// A bare "<" or an unknown <Token> is ordinary text.
var markupPattern = regexp.MustCompile(`(?i)</?(p|br|b|i|em|strong|li|ul|ol|div|a|span)\b[^<>]*>|&(amp|lt|gt|quot|apos|nbsp|#\d+);`)

// NormalizeText strips HTML markup from catalog text. Text without markup
// is returned unchanged.
func NormalizeText(text string) string {
	if !markupPattern.MatchString(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	// Block breaks would otherwise glue adjacent sentences together.
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return strings.TrimSpace(doc.Text())
}
