// Package jsonrepair recovers a JSON value from free-text model output.
// Recovery is best effort: each stage is more aggressive than the last, and
// text that survives none of them yields (nil, false) rather than an error.
package jsonrepair

import (
	"strings"

	"github.com/goccy/go-json"
)

// Parse runs the recovery chain: direct parse, Markdown fence stripping, a
// generic repair pass, then extraction of the longest balanced bracketed
// substring.
func Parse(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if value, ok := tryParse(trimmed); ok {
		return value, true
	}

	unfenced := StripFences(trimmed)
	if unfenced != trimmed {
		if value, ok := tryParse(unfenced); ok {
			return value, true
		}
	}

	if value, ok := tryParse(Repair(unfenced)); ok {
		return value, true
	}

	if candidate := ExtractBalanced(unfenced); candidate != "" {
		if value, ok := tryParse(candidate); ok {
			return value, true
		}
		if value, ok := tryParse(Repair(candidate)); ok {
			return value, true
		}
	}

	return nil, false
}

func tryParse(text string) (any, bool) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, false
	}
	return value, true
}

// StripFences removes a Markdown code fence (with an optional language tag)
// around the payload, tolerating prose before the opening fence.
func StripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	rest := text[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		tag := strings.TrimSpace(rest[:newline])
		if isLanguageTag(tag) {
			rest = rest[newline+1:]
		}
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Repair applies a generic, string-aware cleanup: smart quotes are
// normalized, trailing commas before a closer are dropped, and unterminated
// strings, objects and arrays are closed.
func Repair(text string) string {
	var out strings.Builder
	out.Grow(len(text) + 4)

	runes := []rune(text)
	var stack []rune
	inString := false
	escaped := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			out.WriteRune(r)
			continue
		}

		switch r {
		case '“', '”':
			r = '"'
		case '‘', '’':
			r = '\''
		}

		switch r {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, r)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			if next := nextNonSpace(runes, i+1); next == '}' || next == ']' {
				continue
			}
		}
		out.WriteRune(r)
	}

	if inString {
		out.WriteRune('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out.WriteRune('}')
		} else {
			out.WriteRune(']')
		}
	}
	return out.String()
}

func nextNonSpace(runes []rune, from int) rune {
	for i := from; i < len(runes); i++ {
		switch runes[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return runes[i]
		}
	}
	return 0
}

// ExtractBalanced returns the longest balanced {...} or [...] substring,
// skipping brackets that appear inside string literals. Returns "" when the
// text contains no balanced bracketed region.
func ExtractBalanced(text string) string {
	runes := []rune(text)
	longest := ""
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range runes {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidate := string(runes[start : i+1])
				if len(candidate) > len(longest) {
					longest = candidate
				}
			}
		}
	}
	return longest
}
