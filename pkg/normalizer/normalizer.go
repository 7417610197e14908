// Package normalizer strips adversarial obfuscation from proposal text
// before any detection pattern runs.
//
// Techniques defended against: Unicode homoglyphs and fullwidth forms,
// zero-width characters, HTML entity encoding, base64-encoded instructions,
// word splitting ("i g n o r e"), leetspeak substitution, and whitespace
// noise. When normalization changed anything, the result is the original
// text plus the normalized form so patterns can match against either.
package normalizer

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var zeroWidth = regexp.MustCompile(
	`[\x{200B}\x{200C}\x{200D}\x{200E}\x{200F}\x{FEFF}\x{00AD}\x{2028}\x{2029}\x{180E}\x{2060}]`)

// leetMap decodes common character substitutions. Structural characters
// ('<', '(', '[') are deliberately absent: they carry meaning for the
// HTML-tag and template-delimiter patterns downstream.
var leetMap = map[rune]rune{
	'0': 'o', '1': 'i', '3': 'e', '4': 'a',
	'5': 's', '6': 'g', '7': 't', '8': 'b',
	'@': 'a', '$': 's', '!': 'i', '|': 'i',
	'+': 't',
}

var (
	entityHex     = regexp.MustCompile(`&#x([0-9a-fA-F]+);`)
	entityDecimal = regexp.MustCompile(`&#(\d+);`)
	entityNamed   = regexp.MustCompile(`(?i)&(lt|gt|quot|amp);`)
)

// wordSplitRun matches single alphanumerics separated by space, dot, dash,
// or underscore ("i g n o r e", "i-g-n-o-r-e"). Flanking word characters
// are rejected separately in collapseWordSplits.
var wordSplitRun = regexp.MustCompile(`(?:[a-zA-Z0-9][\s.\-_]){2,}[a-zA-Z0-9]`)

var wordSplitSep = regexp.MustCompile(`[\s.\-_]`)

// b64Candidate matches long base64-looking runs worth a decode attempt.
var b64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

func decodeEntities(s string) string {
	s = entityNamed.ReplaceAllStringFunc(s, func(m string) string {
		switch strings.ToLower(m) {
		case "&lt;":
			return "<"
		case "&gt;":
			return ">"
		case "&quot;":
			return `"`
		}
		return "&"
	})
	s = entityHex.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseInt(entityHex.FindStringSubmatch(m)[1], 16, 32)
		if err != nil || n < 0 || n > utf8.MaxRune {
			return m
		}
		return string(rune(n))
	})
	s = entityDecimal.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseInt(entityDecimal.FindStringSubmatch(m)[1], 10, 32)
		if err != nil || n < 0 || n > utf8.MaxRune {
			return m
		}
		return string(rune(n))
	})
	return s
}

// expandBase64 appends the decoded form after each candidate that decodes
// to readable text. Decoded output is never re-scanned, so a blob whose
// plaintext contains another blob does not cascade.
func expandBase64(s string) string {
	return b64Candidate.ReplaceAllStringFunc(s, func(candidate string) string {
		raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(candidate, "="))
		if err != nil || !utf8.Valid(raw) {
			return candidate
		}
		decoded := string(raw)
		if utf8.RuneCountInString(decoded) <= 4 {
			return candidate
		}
		for _, r := range decoded {
			if !unicode.IsPrint(r) {
				return candidate
			}
		}
		return candidate + " " + decoded
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSepByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v', '.', '-', '_':
		return true
	}
	return false
}

// collapseWordSplits rejoins split characters into words. A run that butts
// against a following word ("i g n o r e instructions" swallows the first
// letter of "instructions") is trimmed back to its last free character, and
// runs glued to a preceding word are left alone entirely.
func collapseWordSplits(s string) string {
	locs := wordSplitRun.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		b.WriteString(s[prev:start])
		prev = end

		// The run is pure ASCII, so byte trimming is safe.
		cStart, cEnd := start, end
		if before, _ := utf8.DecodeLastRuneInString(s[:start]); start > 0 && isWordRune(before) {
			cStart++ // the run began on the tail letter of the previous word
			for cStart < cEnd && isSepByte(s[cStart]) {
				cStart++
			}
		}
		if after, _ := utf8.DecodeRuneInString(s[end:]); end < len(s) && isWordRune(after) {
			cEnd-- // the run swallowed the first letter of the next word
			for cEnd > cStart && isSepByte(s[cEnd-1]) {
				cEnd--
			}
		}
		// Need at least "x y z" worth of alternation to count as a split word.
		if cEnd-cStart >= 5 {
			b.WriteString(s[start:cStart])
			b.WriteString(wordSplitSep.ReplaceAllString(s[cStart:cEnd], ""))
			b.WriteString(s[cEnd:end])
		} else {
			b.WriteString(s[start:end])
		}
	}
	b.WriteString(s[prev:])
	return b.String()
}

func deLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if sub, ok := leetMap[r]; ok {
			return sub
		}
		return r
	}, s)
}

// Normalize returns the canonical form of text for pattern matching.
// If normalization changed the text, the original and the normalized form
// are concatenated with a space so either can match.
func Normalize(text string) string {
	if text == "" {
		return text
	}
	result := norm.NFKC.String(text)
	result = zeroWidth.ReplaceAllString(result, "")
	result = decodeEntities(result)
	result = expandBase64(result)
	result = collapseWordSplits(result)
	result = deLeet(result)
	result = multiSpace.ReplaceAllString(result, " ")
	if result != text {
		return text + " " + result
	}
	return result
}

// NormalizeProposal normalizes both the proposal text and its raw input.
// An empty raw input stays empty.
func NormalizeProposal(text, rawInput string) (string, string) {
	normRaw := ""
	if rawInput != "" {
		normRaw = Normalize(rawInput)
	}
	return Normalize(text), normRaw
}
