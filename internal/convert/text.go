package convert

import (
	"encoding/json"
	"io"
	"time"

	"github.com/felo/eml2doc/internal/htmltext"
	"github.com/felo/eml2doc/internal/render"
)

type textConverter struct{}

func (textConverter) Format() Format { return Text }

func (textConverter) Convert(doc *render.Document, w io.Writer) error {
	text, err := htmltext.BlockTextString(doc.Content)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

// JSONDocument is the json output.
type JSONDocument struct {
	Emails []JSONEmail `json:"emails"`
}

// JSONEmail is one aggregated message.
type JSONEmail struct {
	Position    int              `json:"position"`
	Anchor      string           `json:"anchor"`
	Date        string           `json:"date"`
	SentAt      time.Time        `json:"sentAt"`
	Source      string           `json:"source"`
	Subject     string           `json:"subject"`
	From        string           `json:"from"`
	MessageID   string           `json:"messageId"`
	Attachments []JSONAttachment `json:"attachments"`
	ReplyCount  int              `json:"replyCount"`
	Body        string           `json:"body"`
}

// JSONAttachment describes an extracted attachment.
type JSONAttachment struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"sizeLabel"`
}

type jsonConverter struct{}

func (jsonConverter) Format() Format { return JSON }

func (jsonConverter) Convert(doc *render.Document, w io.Writer) error {
	out := JSONDocument{Emails: make([]JSONEmail, 0, len(doc.Sections))}
	for _, s := range doc.Sections {
		body, err := htmltext.BlockTextString(string(s.Body))
		if err != nil {
			return err
		}
		atts := make([]JSONAttachment, 0, len(s.Attachments))
		for _, a := range s.Attachments {
			atts = append(atts, JSONAttachment{Filename: a.Filename, Size: a.Size, SizeLabel: a.Label()})
		}
		out.Emails = append(out.Emails, JSONEmail{
			Position:    s.Position,
			Anchor:      s.Anchor,
			Date:        s.Date,
			SentAt:      s.SentAt,
			Source:      s.Source,
			Subject:     s.Subject,
			From:        s.From,
			MessageID:   s.MessageID,
			Attachments: atts,
			ReplyCount:  s.ReplyCount,
			Body:        body,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
