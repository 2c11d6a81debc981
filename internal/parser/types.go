package parser

import "fmt"

// Kind classifies a leaf part of the MIME tree.
type Kind int

const (
	KindPlainText Kind = iota
	KindHTML
	KindAttachment
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindPlainText:
		return "text/plain"
	case KindHTML:
		return "text/html"
	case KindAttachment:
		return "attachment"
	default:
		return "other"
	}
}

// Header holds the header fields the converter uses, decoded to text.
type Header struct {
	From      string
	To        string
	Subject   string
	Date      string // raw mail-date text
	MessageID string
}

// Part is one non-multipart node of the message, in depth-first order.
type Part struct {
	Index       int
	Kind        Kind
	MediaType   string
	Filename    string
	Disposition string
	Body        []byte

	// DecodeErr is set when the payload could not be decoded under its
	// declared transfer encoding or charset. Body then holds what was read.
	DecodeErr error
}

// Message is a parsed mail message.
type Message struct {
	Header Header
	Parts  []Part
	Size   int64 // raw size in bytes
}

// Attachments returns the attachment parts in order.
func (m *Message) Attachments() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Kind == KindAttachment {
			out = append(out, p)
		}
	}
	return out
}

// ParseError reports input that is not a readable mail message.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("not a valid mail message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
