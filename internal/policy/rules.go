package policy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyMessage   = errors.New("message template is empty")
	ErrMessageTooLong = errors.New("message template too long")
)

const defaultMaxMessageLength = 1000

// MessageRules validates campaign message templates before any
// dispatch work is queued.
type MessageRules struct {
	// MaxLength caps the template length in runes. Zero means the
	// default limit.
	MaxLength int
}

// ValidateTemplate rejects templates that are blank or exceed the
// length limit. Unknown placeholders are deliberately not an error:
// whatever the template says is sent verbatim.
func (r MessageRules) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return ErrEmptyMessage
	}

	limit := r.MaxLength
	if limit <= 0 {
		limit = defaultMaxMessageLength
	}
	if count := utf8.RuneCountInString(template); count > limit {
		return fmt.Errorf("%w: %d characters exceed the limit of %d", ErrMessageTooLong, count, limit)
	}
	return nil
}
