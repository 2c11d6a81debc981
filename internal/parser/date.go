package parser

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ParseDate parses an RFC 5322 date header value.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return t, nil
}
