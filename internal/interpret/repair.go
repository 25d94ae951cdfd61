package interpret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Repair applies mechanical fixes for the usual ways model JSON goes wrong.
// It never fails and Repair(Repair(s)) == Repair(s).
func Repair(text string) string {
	text = reescapeContent(text)
	text = escapeStrings(text)
	return fixStructure(text)
}

var (
	contentKeyRe = regexp.MustCompile(`"content"\s*:\s*"`)
	// A content value ends at a quote followed by the next file-change key or the
	// end of its file object. Other keys are treated as part of the content, which
	// often holds raw JSON such as package.json.
	contentEndRe = regexp.MustCompile(`^"\s*(?:,\s*"(?:path|action|content|explanation)"\s*:|,?\s*}\s*,?\s*(?:\{|\]|$))`)
)

// reescapeContent rewrites every "content" string value as a canonical JSON string.
// Content values carry arbitrary source code and are the most likely to be broken.
func reescapeContent(text string) string {
	var out strings.Builder
	pos := 0
	for {
		loc := contentKeyRe.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		valStart := pos + loc[1]
		valEnd := findContentEnd(text, valStart)
		if valEnd < 0 {
			break
		}
		out.WriteString(text[pos : valStart-1])
		out.WriteString(marshalString(looseUnescape(text[valStart:valEnd])))
		pos = valEnd + 1
	}
	out.WriteString(text[pos:])
	return out.String()
}

// findContentEnd returns the index of the closing quote of the value starting at start, or -1.
func findContentEnd(text string, start int) int {
	for i := start; i < len(text); i++ {
		if text[i] != '"' || escapedAt(text, i) {
			continue
		}
		if contentEndRe.MatchString(text[i:]) {
			return i
		}
	}
	return -1
}

// escapedAt reports whether text[i] is preceded by an odd run of backslashes.
func escapedAt(text string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && text[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// looseUnescape decodes valid JSON escapes and keeps everything else literally.
func looseUnescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case '"', '\\', '/':
			b.WriteByte(next)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+6 <= len(s) && isHex(s[i+2:i+6]) {
				var r string
				if err := json.Unmarshal([]byte(`"`+s[i:i+6]+`"`), &r); err == nil {
					b.WriteString(r)
					i += 5
					continue
				}
			}
			b.WriteByte(c)
			continue
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// marshalString encodes s as a JSON string without HTML escaping.
func marshalString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimRight(buf.String(), "\n")
}

// escapeStrings walks the text and escapes raw control characters, bare
// backslashes and interior quotes found inside string literals.
func escapeStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '\\':
			if i+1 < len(text) && validEscape(text, i+1) {
				b.WriteByte(c)
				b.WriteByte(text[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		case c == '"':
			if closesString(text, i+1) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func validEscape(text string, i int) bool {
	switch text[i] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		return i+5 <= len(text) && isHex(text[i+1:i+5])
	}
	return false
}

// closesString reports whether a quote whose next byte is at i ends the string:
// it must be followed, after optional whitespace, by a delimiter or the end of input.
func closesString(text string, i int) bool {
	for ; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', ':', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

// fixStructure strips trailing commas and inserts missing commas between
// adjacent objects or arrays. Only bytes outside string literals are touched.
func fixStructure(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				b.WriteByte(text[i+1])
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if next := nextNonSpace(text, i+1); next < len(text) && (text[next] == '}' || text[next] == ']') {
				continue
			}
			b.WriteByte(c)
		case '}', ']':
			b.WriteByte(c)
			next := nextNonSpace(text, i+1)
			if next < len(text) && ((c == '}' && text[next] == '{') || (c == ']' && text[next] == '[')) {
				b.WriteByte(',')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func nextNonSpace(text string, i int) int {
	for ; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return i
		}
	}
	return i
}
