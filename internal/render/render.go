// Package render composes extracted messages into one standalone HTML
// document with an index table and an anchored section per message.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/extract"
	"github.com/felo/eml2doc/internal/parser"
)

//go:embed templates/document.html
var templateFS embed.FS

var tmpl = template.Must(template.ParseFS(templateFS, "templates/document.html"))

// DateLayout formats section and index dates.
const DateLayout = "2006-01-02 15:04:05"

// DefaultTitle is the <title> of aggregated documents.
const DefaultTitle = "Combined Emails"

// Entry pairs a message with the name of the file it came from.
type Entry struct {
	Source  string
	Message *extract.Message
}

// Section is one message inside a Document.
type Section struct {
	Position    int
	Anchor      string
	Date        string
	SentAt      time.Time
	Source      string
	Subject     string
	From        string
	MessageID   string
	Attachments []attachments.Descriptor
	ReplyCount  int
	Body        template.HTML
}

// Document is the aggregated output.
type Document struct {
	Title    string
	Sections []Section
	Content  string // index and sections, without the page shell
	HTML     string // complete standalone page
}

// FormatError reports a message whose date cannot be parsed.
type FormatError struct {
	Source string
	Value  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: invalid date %q: %v", e.Source, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Anchor returns the in-document link target for a 1-based position.
func Anchor(position int) string {
	return fmt.Sprintf("email-%d", position)
}

// Aggregate renders entries, in order, into one document.
func Aggregate(entries []Entry) (*Document, error) {
	return AggregateTitled(DefaultTitle, entries)
}

// AggregateTitled is Aggregate with a custom page title.
func AggregateTitled(title string, entries []Entry) (*Document, error) {
	sections := make([]Section, 0, len(entries))
	for i, e := range entries {
		m := e.Message
		sentAt, err := parser.ParseDate(m.Date)
		if err != nil {
			return nil, &FormatError{Source: e.Source, Value: m.Date, Err: err}
		}

		pos := i + 1
		sections = append(sections, Section{
			Position:    pos,
			Anchor:      Anchor(pos),
			Date:        sentAt.Format(DateLayout),
			SentAt:      sentAt,
			Source:      e.Source,
			Subject:     m.Subject,
			From:        m.From,
			MessageID:   m.MessageID,
			Attachments: m.Attachments,
			ReplyCount:  m.ReplyCount,
			// Body was sanitized by the extractor.
			Body: template.HTML(m.Body),
		})
	}

	var content bytes.Buffer
	if err := tmpl.ExecuteTemplate(&content, "content", sections); err != nil {
		return nil, fmt.Errorf("failed to render index: %w", err)
	}

	var page bytes.Buffer
	err := tmpl.ExecuteTemplate(&page, "document", struct {
		Title   string
		Content template.HTML
	}{title, template.HTML(content.String())})
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}

	return &Document{
		Title:    title,
		Sections: sections,
		Content:  content.String(),
		HTML:     page.String(),
	}, nil
}
