package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\r\n\f]+`)
	trailingWS   = regexp.MustCompile(`[ \t]+\n`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Thead: true, atom.Tbody: true,
	atom.Tfoot: true, atom.Tr: true, atom.Ul: true, atom.Title: true,
}

// whitespace-only text directly inside these is layout noise
var structural = map[atom.Atom]bool{
	atom.Table: true, atom.Thead: true, atom.Tbody: true, atom.Tfoot: true,
	atom.Tr: true, atom.Ul: true, atom.Ol: true, atom.Dl: true,
	atom.Html: true, atom.Head: true, atom.Body: true,
}

// BlockText renders n as readable plain text: block elements start on new
// lines, table cells are tab separated, whitespace outside <pre> collapses.
func BlockText(n *html.Node) string {
	w := &blockWriter{}
	w.node(n, false)
	out := trailingWS.ReplaceAllString(w.b.String(), "\n")
	out = blankLineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out) + "\n"
}

// BlockTextString parses s and renders it with BlockText.
func BlockTextString(s string) (string, error) {
	doc, err := Parse(s)
	if err != nil {
		return "", err
	}
	return BlockText(doc), nil
}

type blockWriter struct {
	b strings.Builder
}

func (w *blockWriter) newline() {
	s := w.b.String()
	if len(s) == 0 || strings.HasSuffix(s, "\n") {
		return
	}
	w.b.WriteByte('\n')
}

func (w *blockWriter) paragraphBreak() {
	w.newline()
	if !strings.HasSuffix(w.b.String(), "\n\n") && w.b.Len() > 0 {
		w.b.WriteByte('\n')
	}
}

func (w *blockWriter) node(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			w.b.WriteString(n.Data)
			return
		}
		if n.Parent != nil && structural[n.Parent.DataAtom] && strings.TrimSpace(n.Data) == "" {
			return
		}
		text := spaceRun.ReplaceAllString(n.Data, " ")
		if s := w.b.String(); s == "" || strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\t") {
			text = strings.TrimLeft(text, " ")
		}
		w.b.WriteString(text)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipped(n) {
			return
		}
		switch n.DataAtom {
		case atom.Br:
			w.b.WriteByte('\n')
			return
		case atom.Hr:
			w.paragraphBreak()
			w.b.WriteString("----")
			w.paragraphBreak()
			return
		case atom.Td, atom.Th:
			if n.PrevSibling != nil && hasPrevCell(n) {
				w.b.WriteByte('\t')
			}
		case atom.Li:
			w.newline()
			w.b.WriteString("- ")
		}
		if n.DataAtom == atom.Pre {
			pre = true
		}
		if blockElements[n.DataAtom] && n.DataAtom != atom.Li {
			if isParagraphLike(n.DataAtom) {
				w.paragraphBreak()
			} else {
				w.newline()
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c, pre)
	}

	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		if isParagraphLike(n.DataAtom) {
			w.paragraphBreak()
		} else {
			w.newline()
		}
	}
}

func hasPrevCell(n *html.Node) bool {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && (s.DataAtom == atom.Td || s.DataAtom == atom.Th) {
			return true
		}
	}
	return false
}

func isParagraphLike(a atom.Atom) bool {
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Table, atom.Pre, atom.Blockquote, atom.Ul, atom.Ol:
		return true
	}
	return false
}
