// Package htmltext derives plain text from the HTML content of statuses.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// Extract strips markup from an HTML fragment and returns its plain text.
// <br> and <p> produce line breaks so post structure survives; every other
// tag is discarded. Leading and trailing whitespace is trimmed.
func Extract(fragment string) string {
	if fragment == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what we have.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p":
				b.WriteByte('\n')
			}
		}
	}
}
