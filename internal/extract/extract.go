package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/htmltext"
	"github.com/felo/eml2doc/internal/parser"
	"github.com/felo/eml2doc/internal/redact"
)

// ConfidentialityMarker starts the footer paragraph dropped from HTML parts.
const ConfidentialityMarker = "CONFIDENTIALITY: This email and any accompa"

var replyMarker = regexp.MustCompile(`(?i)wrote:`)

// Message is the extracted, redacted form of one mail message.
type Message struct {
	Source      string
	Date        string    // raw Date header
	SentAt      time.Time // zero when Date does not parse
	From        string
	Subject     string
	MessageID   string
	Attachments []attachments.Descriptor
	Body        string // rendered, sanitized HTML fragment
	Text        string // redacted content, newline joined
	ReplyCount  int
}

// Extractor turns mail messages into Messages. It is safe for concurrent use.
type Extractor struct {
	redactor *redact.Redactor
	store    *attachments.Store
	md       goldmark.Markdown
	policy   *bluemonday.Policy
}

// New returns an Extractor writing attachments into store.
// A nil redactor means redact.Default().
func New(redactor *redact.Redactor, store *attachments.Store) *Extractor {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Extractor{
		redactor: redactor,
		store:    store,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// ExtractFile extracts the message stored at path.
func (x *Extractor) ExtractFile(path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return x.Extract(path, f)
}

// Extract reads one message from r. source names it in errors.
// Nothing is returned, and no attachment is written, unless every part decodes.
func (x *Extractor) Extract(source string, r io.Reader) (*Message, error) {
	parsed, err := parser.ParseEML(r)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			return nil, &ParseError{Source: source, Err: perr}
		}
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	var content []string
	var pending []attachments.File

	for _, part := range parsed.Parts {
		switch part.Kind {
		case parser.KindAttachment:
			if part.DecodeErr != nil {
				return nil, &DecodeError{Source: source, Part: part.Index, MediaType: part.MediaType, Err: part.DecodeErr}
			}
			pending = append(pending, attachments.File{Name: part.Filename, Data: part.Body})
		case parser.KindPlainText:
			text, err := decodeText(source, part)
			if err != nil {
				return nil, err
			}
			content = append(content, x.redactor.Apply(text))
		case parser.KindHTML:
			raw, err := decodeText(source, part)
			if err != nil {
				return nil, err
			}
			text, err := x.htmlToText(raw)
			if err != nil {
				return nil, &DecodeError{Source: source, Part: part.Index, MediaType: part.MediaType, Err: err}
			}
			content = append(content, x.redactor.Apply(text))
		}
	}

	descriptors, err := x.store.SaveAll(pending)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	// A notice can straddle two parts.
	joined := x.redactor.Apply(strings.Join(content, "\n"))
	h := parsed.Header

	msg := &Message{
		Source:      source,
		Date:        h.Date,
		From:        h.From,
		Subject:     h.Subject,
		MessageID:   h.MessageID,
		Attachments: descriptors,
		Text:        joined,
		ReplyCount:  len(replyMarker.FindAllStringIndex(joined, -1)),
	}
	if t, err := parser.ParseDate(h.Date); err == nil {
		msg.SentAt = t
	}

	body, err := x.render(msg, joined)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to render body: %w", source, err)
	}
	msg.Body = body

	return msg, nil
}

func (x *Extractor) htmlToText(raw string) (string, error) {
	doc, err := htmltext.Parse(raw)
	if err != nil {
		return "", err
	}
	htmltext.RemoveParagraphsWithPrefix(doc, ConfidentialityMarker)
	return htmltext.Text(doc), nil
}

// render builds the Markdown document and converts it to sanitized HTML.
func (x *Extractor) render(msg *Message, content string) (string, error) {
	var md strings.Builder
	md.WriteString("# Email Details\n\n| Field | Value |\n|-------|-------|\n")
	writeRow(&md, "From", msg.From)
	writeRow(&md, "Subject", msg.Subject)
	writeRow(&md, "Date", msg.Date)
	writeRow(&md, "Message-ID", msg.MessageID)
	if len(msg.Attachments) > 0 {
		labels := make([]string, len(msg.Attachments))
		for i, d := range msg.Attachments {
			labels[i] = d.String()
		}
		writeRow(&md, "Attachments", strings.Join(labels, ", "))
	}
	md.WriteString("\n\n## Email Body\n\n")
	md.WriteString(content)

	var buf bytes.Buffer
	if err := x.md.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}
	return x.policy.Sanitize(buf.String()), nil
}

func writeRow(b *strings.Builder, field, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", field, escapeCell(value))
}

var cellEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "|", `\|`, "#", `\#`, "!", `\!`, "~", `\~`, "&", `\&`,
	"\r\n", " ", "\n", " ", "\r", " ",
)

// escapeCell makes a header value render verbatim inside a table cell.
func escapeCell(s string) string {
	return cellEscaper.Replace(s)
}

func decodeText(source string, part parser.Part) (string, error) {
	if part.DecodeErr != nil {
		return "", &DecodeError{Source: source, Part: part.Index, MediaType: part.MediaType, Err: part.DecodeErr}
	}
	if !utf8.Valid(part.Body) {
		return "", &DecodeError{Source: source, Part: part.Index, MediaType: part.MediaType, Err: errors.New("payload is not valid UTF-8")}
	}
	return strings.ReplaceAll(string(part.Body), "\r\n", "\n"), nil
}
