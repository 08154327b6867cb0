package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	emphasisRe   = regexp.MustCompile(`\*+`)
	leadEscapeRe = regexp.MustCompile("(?m)^[ \t]*[\\\\`]")
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// normalizeText flattens a message body selection to plain text. Anchor text
// survives, link targets and emphasis markup do not; <br> becomes a newline.
func normalizeText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		flattenNode(n, &b)
	}

	text := b.String()
	text = emphasisRe.ReplaceAllString(text, "")
	text = leadEscapeRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func flattenNode(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteString("\n")
			return
		}
	case html.CommentNode:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(c, b)
	}
}
