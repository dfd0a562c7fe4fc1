package htmltext

import (
	"strings"

	xhtml "golang.org/x/net/html"
)

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "svg": true, "iframe": true, "button": true,
}

// block elements are separated by newlines.
var block = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "tr": true, "table": true,
	"blockquote": true, "pre": true, "br": true, "hr": true, "dd": true, "dt": true,
}

func isMainRegion(n *xhtml.Node) bool {
	if n.Type != xhtml.ElementNode {
		return false
	}
	if n.Data == "main" || n.Data == "article" {
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key == "role" && attr.Val == "main" {
			return true
		}
	}
	return false
}

func collectText(n *xhtml.Node, b *strings.Builder) {
	switch n.Type {
	case xhtml.TextNode:
		b.WriteString(n.Data)
		return
	case xhtml.ElementNode:
		if skipped[n.Data] {
			return
		}
		if block[n.Data] {
			b.WriteString("\n")
			defer b.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// walk visits nodes depth-first until visit returns false.
func walk(n *xhtml.Node, visit func(*xhtml.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func findFirst(root *xhtml.Node, match func(*xhtml.Node) bool) *xhtml.Node {
	var found *xhtml.Node
	walk(root, func(n *xhtml.Node) bool {
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func textOf(n *xhtml.Node) string {
	var b strings.Builder
	walk(n, func(c *xhtml.Node) bool {
		if c.Type == xhtml.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
