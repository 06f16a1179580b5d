package ics

import (
	"strings"

	ical "github.com/arran4/golang-ical"
)

// lineBreaks maps every line-break form to the single LF that TEXT
// escaping understands. Order matters: CRLF must be matched before CR.
var lineBreaks = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
)

// sanitizeText prepares a value for a TEXT property. Control characters
// other than HTAB and LF cannot be carried by TEXT and are removed.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, lineBreaks.Replace(s))
}

// EscapeText returns s as it appears in a serialized TEXT property.
func EscapeText(s string) string {
	return ical.ToText(sanitizeText(s))
}

// UnescapeText decodes an escaped TEXT value.
func UnescapeText(s string) string {
	return ical.FromText(s)
}
