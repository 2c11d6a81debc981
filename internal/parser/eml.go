package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

var foldedLine = regexp.MustCompile(`\r?\n([ \t])`)

// ParseEMLFile parses an .eml file
func ParseEMLFile(filePath string) (*Message, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ParseEML(f)
}

// ParseEML parses a message from a reader. Only input that cannot be read as
// a header block followed by a body yields a *ParseError; part-level decode
// problems are recorded on the part.
func ParseEML(r io.Reader) (*Message, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return nil, &ParseError{Err: errors.New("empty input")}
	}

	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	msg := &Message{Size: int64(buf.Len())}
	msg.Header = readHeader(mail.Header{Header: message.Header{Header: h}})
	if err := msg.walk(message.Header{Header: h}, br); err != nil {
		return nil, err
	}

	return msg, nil
}

// walk appends every non-multipart descendant, depth-first. Multipart
// bodies are split raw so each leaf is decoded exactly once.
func (m *Message) walk(h message.Header, body io.Reader) error {
	mediaType, params, _ := h.ContentType()
	mediaType = strings.ToLower(mediaType)

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		mr := textproto.NewMultipartReader(body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return &ParseError{Err: fmt.Errorf("failed to read part: %w", err)}
			}
			if err := m.walk(message.Header{Header: p.Header}, p); err != nil {
				return err
			}
		}
	}

	part := Part{
		Index:       len(m.Parts),
		MediaType:   mediaType,
		Disposition: h.Get("Content-Disposition"),
	}
	if part.MediaType == "" {
		part.MediaType = "text/plain"
	}
	if part.Disposition != "" {
		ah := mail.AttachmentHeader{Header: h}
		if filename, err := ah.Filename(); err == nil {
			part.Filename = filename
		} else if _, dparams, perr := h.ContentDisposition(); perr == nil {
			part.Filename = decodeMIMEWord(dparams["filename"])
		}
	}
	part.Kind = classify(part)

	// Attachments keep their bytes; only the transfer encoding is undone.
	if part.Kind == KindAttachment {
		if _, ok := params["charset"]; ok {
			h = message.Header{Header: h.Header.Copy()}
			delete(params, "charset")
			h.SetContentType(mediaType, params)
		}
	}

	e, err := message.New(h, body)
	decodeErr, err := splitEntityError(e, err)
	if err != nil {
		return &ParseError{Err: fmt.Errorf("failed to read part: %w", err)}
	}
	part.DecodeErr = decodeErr

	data, err := io.ReadAll(e.Body)
	if err != nil && part.DecodeErr == nil {
		part.DecodeErr = fmt.Errorf("failed to read body: %w", err)
	}
	part.Body = data

	m.Parts = append(m.Parts, part)
	return nil
}

func classify(p Part) Kind {
	switch {
	case p.Disposition != "" && p.Filename != "":
		return KindAttachment
	case p.MediaType == "text/plain":
		return KindPlainText
	case p.MediaType == "text/html":
		return KindHTML
	default:
		return KindOther
	}
}

// splitEntityError separates charset and transfer-encoding problems, after
// which go-message still returns a usable entity, from structural failures.
func splitEntityError(e *message.Entity, err error) (decodeErr, fatal error) {
	if err == nil {
		return nil, nil
	}
	if e != nil && (message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)) {
		return err, nil
	}
	return nil, err
}

func readHeader(h mail.Header) Header {
	return Header{
		From:      headerText(h, "From"),
		To:        headerText(h, "To"),
		Subject:   headerText(h, "Subject"),
		Date:      unfold(h.Get("Date")),
		MessageID: unfold(h.Get("Message-Id")),
	}
}

// headerText decodes RFC 2047 words, falling back to the raw value.
func headerText(h mail.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return unfold(v)
	}
	return unfold(decodeMIMEWord(h.Get(key)))
}

func unfold(s string) string {
	return strings.TrimSpace(foldedLine.ReplaceAllString(s, "$1"))
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
