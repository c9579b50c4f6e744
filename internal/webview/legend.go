package webview

import (
	"fmt"
	"strings"

	"swotrace/internal/config"
	"swotrace/pkg/markdown"
)

// Legend renders the table of configured channels shown above the feed.
func Legend(channels []config.Channel) string {
	var b strings.Builder
	b.WriteString("## Channels\n\n")
	b.WriteString("| Channel | Prefix | Sinks |\n")
	b.WriteString("|---|---|---|\n")
	for _, ch := range channels {
		prefix := markdown.EscapeCell(ch.Prefix)
		if strings.TrimSpace(prefix) == "" {
			prefix = "(none)"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", ch.ID, prefix, strings.Join(ch.Sinks, ", "))
	}
	return markdown.RenderToHTML(b.String())
}
