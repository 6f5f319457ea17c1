package intent

import (
	"strings"
	"unicode"
)

// Text is a message prepared for whole-word keyword matching.
type Text struct {
	padded string
}

// Normalize lower-cases s and turns every non-alphanumeric rune into a single space.
func Normalize(s string) Text {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return Text{padded: b.String()}
}

// Has reports whether keyword occurs as a whole-word sequence.
func (t Text) Has(keyword string) bool {
	k := Normalize(keyword).padded
	if k == " " {
		return false
	}
	return strings.Contains(t.padded, k)
}

// HasAny reports whether any of the keywords occurs.
func (t Text) HasAny(keywords ...string) bool {
	for _, k := range keywords {
		if t.Has(k) {
			return true
		}
	}
	return false
}

// Matches returns the keywords that occur, in table order.
func (t Text) Matches(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if t.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// String returns the normalized text without padding.
func (t Text) String() string { return strings.TrimSpace(t.padded) }
