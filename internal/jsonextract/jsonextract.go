// Package jsonextract pulls the first well-formed top-level JSON object
// out of free text. Language models frequently wrap the JSON they were
// asked for in prose or code fences; every call site that parses model
// output goes through this one extractor.
package jsonextract

import "github.com/tidwall/gjson"

// FirstObject returns the first balanced, valid JSON object found in
// text. The boolean is false when no such object exists.
func FirstObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := matchObject(text, start)
		if !ok {
			// Unclosed from here; an inner brace may still open a
			// balanced object.
			continue
		}
		candidate := text[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, true
		}
		start = end
	}
	return "", false
}

// matchObject scans from the opening brace at start and returns the
// index of its matching close brace, skipping braces inside strings.
func matchObject(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
