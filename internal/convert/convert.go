// Package convert writes an aggregated document in one of the supported
// output formats.
package convert

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/felo/eml2doc/internal/render"
)

// Format names an output format.
type Format string

const (
	HTML     Format = "html"
	Markdown Format = "markdown"
	PDF      Format = "pdf"
	Text     Format = "txt"
	JSON     Format = "json"
)

// Ext returns the file extension, without the dot.
func (f Format) Ext() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// MediaType returns the Content-Type a document in this format is served with.
func (f Format) MediaType() string {
	switch f {
	case HTML:
		return "text/html; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	case PDF:
		return "application/pdf"
	case Text:
		return "text/plain; charset=utf-8"
	case JSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// Converter writes doc to w.
type Converter interface {
	Format() Format
	Convert(doc *render.Document, w io.Writer) error
}

// ConversionError reports a failure producing one format.
type ConversionError struct {
	Format Format
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert to %s: %v", e.Format, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

var converters = map[Format]Converter{
	HTML:     htmlConverter{},
	Markdown: markdownConverter{},
	PDF:      pdfConverter{},
	Text:     textConverter{},
	JSON:     jsonConverter{},
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "md" {
		f = Markdown
	}
	if _, ok := converters[f]; !ok {
		return "", fmt.Errorf("unknown output format %q (want one of %s)", s, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the supported formats.
func Names() []string {
	names := make([]string, 0, len(converters))
	for f := range converters {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// For returns the converter for f.
func For(f Format) (Converter, error) {
	c, ok := converters[f]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", f)
	}
	return c, nil
}

// Write converts doc with the converter for f. Failures are *ConversionError.
func Write(f Format, doc *render.Document, w io.Writer) error {
	c, err := For(f)
	if err != nil {
		return &ConversionError{Format: f, Err: err}
	}
	if err := c.Convert(doc, w); err != nil {
		return &ConversionError{Format: f, Err: err}
	}
	return nil
}

type htmlConverter struct{}

func (htmlConverter) Format() Format { return HTML }

func (htmlConverter) Convert(doc *render.Document, w io.Writer) error {
	_, err := io.WriteString(w, doc.HTML)
	return err
}
