package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON is returned when no JSON value can be found in a reply.
	ErrNoJSON = errors.New("no JSON found in model reply")

	// ErrNotObject is returned when the reply holds JSON that is not an object.
	ErrNotObject = errors.New("model reply is not a JSON object")
)

var (
	objectPattern    = regexp.MustCompile(`(?s)\{.*\}`)
	codeBlockPattern = regexp.MustCompile("(?s)```(?:python|json)?\\s*\\n?(.*?)\\n?```")
)

// ExtractJSON parses text as JSON, falling back to the widest {...} span
// when the reply wraps the object in prose or a code fence.
func ExtractJSON(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err == nil {
		return v, nil
	}

	match := objectPattern.FindString(text)
	if match == "" {
		return nil, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(match), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return v, nil
}

// ExtractObject is ExtractJSON restricted to objects.
func ExtractObject(text string) (map[string]any, error) {
	v, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, v)
	}
	return obj, nil
}

// ExtractCodeBlocks returns the bodies of all fenced code blocks, optionally
// tagged python or json.
func ExtractCodeBlocks(text string) []string {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// ExtractCode returns the first fenced block, or the trimmed reply when it
// contains none.
func ExtractCode(text string) string {
	if blocks := ExtractCodeBlocks(text); len(blocks) > 0 {
		return strings.TrimSpace(blocks[0]) + "\n"
	}
	return strings.TrimSpace(text) + "\n"
}
