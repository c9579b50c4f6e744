// Package markdown renders the small markdown documents shown in the web
// viewer.
package markdown

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	// Legends contain user supplied channel prefixes.
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "span", "table")
	return p
}

// RenderToHTML converts markdown to sanitized HTML.
func RenderToHTML(md string) string {
	unsafeHTML := blackfriday.Run(
		[]byte(md),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	)
	return string(policy.SanitizeBytes(unsafeHTML))
}

// EscapeCell makes s safe to place inside a markdown table cell.
func EscapeCell(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '|', '\\', '`', '*', '_', '[', ']', '<', '>':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
