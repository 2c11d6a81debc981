package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/extract"
	"github.com/felo/eml2doc/internal/render"
)

const rawMessage = "From: Alice <alice@example.com>\r\n" +
	"Subject: Budget review\r\n" +
	"Date: Mon, 02 Jan 2023 15:04:05 +0000\r\n" +
	"Message-ID: <budget@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello team\n\nThis is a PRIVATE message to you for informational purpose.\n\nBob wrote:\n> numbers attached"

func sampleDocument(t *testing.T) *render.Document {
	t.Helper()
	x := extract.New(nil, attachments.NewStore(t.TempDir(), attachments.Overwrite))
	msg, err := x.Extract("budget.eml", strings.NewReader(rawMessage))
	require.NoError(t, err)

	doc, err := render.Aggregate([]render.Entry{{Source: "budget.eml", Message: msg}})
	require.NoError(t, err)
	return doc
}

func convertString(t *testing.T, f Format, doc *render.Document) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(f, doc, &buf))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"html", "pdf", "markdown", "txt", "json", "MD", " Html "} {
		_, err := ParseFormat(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseFormat("docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "html, json, markdown, pdf, txt")
}

func TestFormat_Ext(t *testing.T) {
	assert.Equal(t, "md", Markdown.Ext())
	assert.Equal(t, "txt", Text.Ext())
	assert.Equal(t, "html", HTML.Ext())
}

func TestFormat_MediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", PDF.MediaType())
	assert.Equal(t, "text/markdown; charset=utf-8", Markdown.MediaType())
	assert.Equal(t, "application/octet-stream", Format("docx").MediaType())
}

func TestConvert_HTML(t *testing.T) {
	doc := sampleDocument(t)

	out := convertString(t, HTML, doc)

	assert.Equal(t, doc.HTML, out)
}

func TestConvert_Text(t *testing.T) {
	out := convertString(t, Text, sampleDocument(t))

	assert.Contains(t, out, "From\tAlice <alice@example.com>\n")
	assert.Contains(t, out, "Subject\tBudget review\n")
	assert.Contains(t, out, "Date\tMon, 02 Jan 2023 15:04:05 +0000\n")
	assert.Contains(t, out, "Message-ID\t<budget@example.com>\n")
	assert.Contains(t, out, "Hello team")
	assert.Contains(t, out, "numbers attached")
	assert.NotContains(t, out, "PRIVATE")
	assert.NotContains(t, out, "<p>")
	assert.Contains(t, out, "1\t2023-01-02 15:04:05\tBudget review\tbudget.eml\t1\n")
	assert.Contains(t, out, "1. Email from 2023-01-02 15:04:05")
}

func TestConvert_Markdown(t *testing.T) {
	out := convertString(t, Markdown, sampleDocument(t))

	assert.Contains(t, out, "# Email Index")
	assert.Contains(t, out, "(#email-1)")
	assert.Contains(t, out, `<a id="email-1"></a>`)
	assert.Contains(t, out, "## 1. Email from 2023-01-02 15:04:05")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Budget review")
	assert.NotContains(t, out, "PRIVATE")
}

func TestConvert_JSON(t *testing.T) {
	out := convertString(t, JSON, sampleDocument(t))

	var got JSONDocument
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Emails, 1)

	e := got.Emails[0]
	assert.Equal(t, 1, e.Position)
	assert.Equal(t, "email-1", e.Anchor)
	assert.Equal(t, "2023-01-02 15:04:05", e.Date)
	assert.Equal(t, "budget.eml", e.Source)
	assert.Equal(t, "Budget review", e.Subject)
	assert.Equal(t, "Alice <alice@example.com>", e.From)
	assert.Equal(t, "<budget@example.com>", e.MessageID)
	assert.Equal(t, 1, e.ReplyCount)
	assert.Empty(t, e.Attachments)
	assert.Contains(t, e.Body, "Hello team")
	assert.NotContains(t, e.Body, "PRIVATE")
}

func TestConvert_JSONAttachments(t *testing.T) {
	doc := &render.Document{Sections: []render.Section{{
		Position:    1,
		Anchor:      "email-1",
		Attachments: []attachments.Descriptor{{Filename: "a.pdf", Size: 2048}},
	}}}

	out := convertString(t, JSON, doc)

	assert.Contains(t, out, `"filename": "a.pdf"`)
	assert.Contains(t, out, `"sizeLabel": "2.00 KB"`)
}

func TestConvert_PDF(t *testing.T) {
	out := convertString(t, PDF, sampleDocument(t))

	assert.True(t, strings.HasPrefix(out, "%PDF-"))
	assert.Contains(t, out, "%%EOF")
}

func TestConvert_PDFManyMessages(t *testing.T) {
	x := extract.New(nil, attachments.NewStore(t.TempDir(), attachments.Overwrite))
	var entries []render.Entry
	for i := 0; i < 30; i++ {
		msg, err := x.Extract("m.eml", strings.NewReader(rawMessage))
		require.NoError(t, err)
		entries = append(entries, render.Entry{Source: "m.eml", Message: msg})
	}
	doc, err := render.Aggregate(entries)
	require.NoError(t, err)

	out := convertString(t, PDF, doc)

	assert.True(t, strings.HasPrefix(out, "%PDF-"))
	assert.Greater(t, strings.Count(out, "/Type /Page\n"), 1)
}

func TestConvert_PDFNonLatinText(t *testing.T) {
	raw := strings.Replace(rawMessage, "Hello team", "Привет, команда. 你好. Café", 1)
	x := extract.New(nil, attachments.NewStore(t.TempDir(), attachments.Overwrite))
	msg, err := x.Extract("intl.eml", strings.NewReader(raw))
	require.NoError(t, err)
	doc, err := render.Aggregate([]render.Entry{{Source: "intl.eml", Message: msg}})
	require.NoError(t, err)

	out := convertString(t, PDF, doc)

	assert.True(t, strings.HasPrefix(out, "%PDF-"), "text outside cp1252 does not fail the document")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_ConversionError(t *testing.T) {
	err := Write(HTML, sampleDocument(t), failingWriter{})

	var cerr *ConversionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, HTML, cerr.Format)
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(Format("docx"), sampleDocument(t), &bytes.Buffer{})

	var cerr *ConversionError
	assert.True(t, errors.As(err, &cerr))
}
