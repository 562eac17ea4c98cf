package htmltab

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags force a line break when stripping markup, so that the pipe-row
// scan still sees one table row per line.
var blockTags = map[string]struct{}{
	"br": {}, "p": {}, "div": {}, "tr": {}, "li": {}, "pre": {},
}

// StripTags reduces an HTML document to its text content, one line per block
// element. Unparseable input is returned as-is; the caller's row scan will
// simply find nothing.
func StripTags(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}
	var sb strings.Builder
	writeText(&sb, doc)
	return sb.String()
}

func writeText(sb *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode {
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if _, block := blockTags[n.Data]; block {
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
}
