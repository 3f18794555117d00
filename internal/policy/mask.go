package policy

import "strings"

// MaskPhone hides the middle of a phone number so logs never carry a
// dialable value. Numbers of six characters or fewer are starred
// entirely.
func MaskPhone(value string) string {
	if len(value) <= 6 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-6) + value[len(value)-2:]
}
