package oracle

import "github.com/pkg/errors"

var ErrNoJSON = errors.New("no balanced JSON object in oracle response")

// ExtractJSON returns the first balanced {...} object in text. Braces inside
// JSON string literals are ignored, so fences, prose around the object and
// nested objects are all fine. If an opening brace never closes, the search
// continues at the next one.
func ExtractJSON(text string) (string, error) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		if end := matchObject(text, start); end > 0 {
			return text[start:end], nil
		}
	}
	return "", ErrNoJSON
}

// matchObject returns the index just past the brace closing the one at
// start, or -1.
func matchObject(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
