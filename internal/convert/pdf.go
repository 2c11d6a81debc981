package convert

import (
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/felo/eml2doc/internal/htmltext"
	"github.com/felo/eml2doc/internal/render"
)

const (
	pdfLineHeight = 5.0
	pdfCellPad    = 1.5
	pdfBodyFont   = 10.0
)

var headingSizes = map[atom.Atom]float64{
	atom.H1: 18, atom.H2: 14, atom.H3: 12, atom.H4: 11, atom.H5: 10, atom.H6: 10,
}

type pdfConverter struct{}

func (pdfConverter) Format() Format { return PDF }

func (pdfConverter) Convert(doc *render.Document, w io.Writer) error {
	root, err := htmltext.Parse(doc.Content)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("eml2doc", true)
	pdf.SetCreationDate(latest(doc.Sections))
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()

	r := &pdfWriter{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		links:  make(map[string]int),
		left:   left,
		width:  pageW - left - right,
		bottom: pageH - bottom,
	}
	r.setBodyFont()
	r.block(root)

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// latest returns the newest message date so output is reproducible.
func latest(sections []render.Section) time.Time {
	var t time.Time
	for _, s := range sections {
		if s.SentAt.After(t) {
			t = s.SentAt
		}
	}
	if t.IsZero() {
		t = time.Unix(0, 0).UTC()
	}
	return t
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	links  map[string]int
	left   float64
	width  float64
	bottom float64
}

func (r *pdfWriter) setBodyFont() {
	r.pdf.SetFont("Helvetica", "", pdfBodyFont)
	r.pdf.SetTextColor(0, 0, 0)
}

// link returns the internal link for an anchor, creating it on first use.
func (r *pdfWriter) link(anchor string) int {
	if id, ok := r.links[anchor]; ok {
		return id
	}
	id := r.pdf.AddLink()
	r.links[anchor] = id
	return id
}

func (r *pdfWriter) block(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if text := collapse(c.Data); text != "" {
				r.paragraph(text)
			}
		case html.ElementNode:
			r.element(c)
		}
	}
}

func (r *pdfWriter) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		r.heading(n)
	case atom.P, atom.Blockquote:
		if text := collapse(htmltext.Text(n)); text != "" {
			r.paragraph(text)
		}
	case atom.Pre:
		r.pdf.SetFont("Courier", "", 9)
		r.pdf.MultiCell(r.width, pdfLineHeight-0.5, r.tr(htmltext.Text(n)), "", "L", false)
		r.pdf.Ln(2)
		r.setBodyFont()
	case atom.Li:
		if text := collapse(htmltext.Text(n)); text != "" {
			r.paragraph("- " + text)
		}
	case atom.Table:
		r.table(n)
	case atom.Hr:
		y := r.pdf.GetY() + 1
		r.pdf.Line(r.left, y, r.left+r.width, y)
		r.pdf.Ln(3)
	case atom.Br:
		r.pdf.Ln(pdfLineHeight)
	default:
		r.block(n)
	}
}

func (r *pdfWriter) heading(n *html.Node) {
	if id := attr(n, "id"); id != "" {
		r.pdf.SetLink(r.link(id), -1, -1)
	}
	size := headingSizes[n.DataAtom]
	r.pdf.SetFont("Helvetica", "B", size)
	r.pdf.SetTextColor(0x2c, 0x3e, 0x50)
	r.pdf.MultiCell(r.width, size*0.5, r.tr(collapse(htmltext.Text(n))), "", "L", false)
	r.pdf.Ln(2)
	r.setBodyFont()
}

func (r *pdfWriter) paragraph(text string) {
	r.pdf.MultiCell(r.width, pdfLineHeight, r.tr(text), "", "L", false)
	r.pdf.Ln(2)
}

type pdfCell struct {
	text   string
	header bool
	anchor string
}

func (r *pdfWriter) table(n *html.Node) {
	var rows [][]pdfCell
	walkRows(n, func(tr *html.Node) {
		var row []pdfCell
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			row = append(row, pdfCell{
				text:   r.tr(collapse(htmltext.Text(c))),
				header: c.DataAtom == atom.Th,
				anchor: innerAnchor(c),
			})
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return
	}

	widths := r.columnWidths(rows)
	for _, row := range rows {
		r.row(row, widths)
	}
	r.pdf.Ln(4)
}

func (r *pdfWriter) columnWidths(rows [][]pdfCell) []float64 {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	weights := make([]float64, cols)
	for _, row := range rows {
		for i, c := range row {
			l := float64(len(c.text))
			if l > weights[i] {
				weights[i] = l
			}
		}
	}
	var total float64
	for i := range weights {
		if weights[i] < 4 {
			weights[i] = 4
		}
		if weights[i] > 40 {
			weights[i] = 40
		}
		total += weights[i]
	}
	widths := make([]float64, cols)
	for i := range weights {
		widths[i] = r.width * weights[i] / total
	}
	return widths
}

func (r *pdfWriter) row(row []pdfCell, widths []float64) {
	height := pdfLineHeight
	lines := make([][]string, len(row))
	for i, c := range row {
		if c.header {
			r.pdf.SetFont("Helvetica", "B", pdfBodyFont)
		}
		lines[i] = r.wrap(c.text, widths[i]-2*pdfCellPad)
		r.setBodyFont()
		if h := float64(len(lines[i])) * pdfLineHeight; h > height {
			height = h
		}
	}
	height += pdfCellPad

	if r.pdf.GetY()+height > r.bottom {
		r.pdf.AddPage()
	}

	x, y := r.left, r.pdf.GetY()
	for i, c := range row {
		w := widths[i]
		if c.header {
			r.pdf.SetFillColor(0x34, 0x98, 0xdb)
			r.pdf.SetTextColor(255, 255, 255)
			r.pdf.SetFont("Helvetica", "B", pdfBodyFont)
			r.pdf.Rect(x, y, w, height, "FD")
		} else {
			r.pdf.Rect(x, y, w, height, "D")
			if c.anchor != "" {
				r.pdf.SetTextColor(0x34, 0x98, 0xdb)
			}
		}
		for j, line := range lines[i] {
			r.pdf.SetXY(x+pdfCellPad, y+pdfCellPad/2+float64(j)*pdfLineHeight)
			r.pdf.CellFormat(w-2*pdfCellPad, pdfLineHeight, line, "", 0, "L", false, 0, "")
		}
		if c.anchor != "" {
			r.pdf.Link(x, y, w, height, r.link(c.anchor))
		}
		r.setBodyFont()
		x += w
	}
	r.pdf.SetXY(r.left, y+height)
}

// wrap breaks translated text into lines no wider than w in the current font.
func (r *pdfWriter) wrap(text string, w float64) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if r.pdf.GetStringWidth(candidate) <= w {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		for r.pdf.GetStringWidth(word) > w && len(word) > 1 {
			cut := len(word) - 1
			for cut > 1 && r.pdf.GetStringWidth(word[:cut]) > w {
				cut--
			}
			lines = append(lines, word[:cut])
			word = word[cut:]
		}
		line = word
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}

func walkRows(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Tr:
			fn(c)
		case atom.Thead, atom.Tbody, atom.Tfoot:
			walkRows(c, fn)
		}
	}
}

// innerAnchor returns the target of the first in-document link below n.
func innerAnchor(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.A {
			if href := attr(c, "href"); strings.HasPrefix(href, "#") {
				return strings.TrimPrefix(href, "#")
			}
		}
		if a := innerAnchor(c); a != "" {
			return a
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
