// Package htmltext turns HTML into plain text.
package htmltext

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses an HTML document or fragment into a node tree.
func Parse(s string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// RemoveParagraphsWithPrefix detaches every <p> whose text starts with prefix
// and returns how many were removed.
func RemoveParagraphsWithPrefix(root *html.Node, prefix string) int {
	var matched []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			if strings.HasPrefix(Text(n), prefix) {
				matched = append(matched, n)
				return false
			}
		}
		return true
	})

	for _, n := range matched {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(matched)
}

// Text concatenates every text node below n, in document order, without
// adding separators. Script and style content is skipped.
func Text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch c.Type {
		case html.ElementNode:
			return !skipped(c)
		case html.TextNode:
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// FromString parses s and returns its inline text.
func FromString(s string) (string, error) {
	doc, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Text(doc), nil
}

func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return true
	}
	return false
}

// walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
