package extract

import "fmt"

// ParseError reports a source that could not be read as a mail message.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeError reports a part whose payload does not decode under its
// declared transfer encoding or charset.
type DecodeError struct {
	Source    string
	Part      int
	MediaType string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode part %d (%s): %v", e.Source, e.Part, e.MediaType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
