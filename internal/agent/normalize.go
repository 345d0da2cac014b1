package agent

import (
	"regexp"
	"strings"
	"unicode"
)

// WakeWord is the canonical agent name at the start of a command.
const WakeWord = "lyra"

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	// typos of the wake word seen in real sessions
	wakeTypo = regexp.MustCompile(`(?i)^(?:lyr|lura|lyar|lrya|lyta|lyea|lyra)(?:\s|$)`)
)

// Normalized is one input line after cleanup.
type Normalized struct {
	Original string
	Text     string
	Lower    string
}

// Empty reports whether nothing is left to handle.
func (n Normalized) Empty() bool { return n.Text == "" }

// Normalize strips terminal noise, canonicalizes the wake word and collapses
// whitespace. Applying it to its own Text is a no-op.
func Normalize(raw string) Normalized {
	s := ansiEscape.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if loc := wakeTypo.FindStringIndex(s); loc != nil {
		s = strings.TrimSpace(WakeWord + " " + s[loc[1]:])
	}
	return Normalized{Original: raw, Text: s, Lower: strings.ToLower(s)}
}

// stripWake removes a leading "lyra " from an already normalized text.
func stripWake(text string) string {
	if len(text) >= len(WakeWord) && strings.EqualFold(text[:len(WakeWord)], WakeWord) {
		rest := text[len(WakeWord):]
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' {
			return strings.TrimSpace(rest)
		}
	}
	return text
}

var polishFold = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n", "ó", "o", "ś", "s", "ź", "z", "ż", "z",
)

// Fold lower-cases s and replaces Polish diacritics with ASCII letters. The
// result has the same number of runes as s.
func Fold(s string) string {
	return polishFold.Replace(strings.ToLower(s))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
