// Package jsonrecovery pulls individually valid JSON objects out of LLM output
// that may be wrapped in markdown, surrounded by prose or cut off mid-object.
//
// The list is located with a tolerant pattern instead of decoding the whole
// document, and each element is found by brace-depth scanning, so one broken
// sibling never costs the others.
package jsonrecovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is the outcome of recovering one list from a text blob
type Result[T any] struct {
	Objects []T // decoded objects that passed validation
	Found   int // candidate objects located inside the list span
	Valid   int // candidates that decoded and passed validation
}

// Recover locates "<listKey>": [ ... ] in text and decodes every element object
// into T. Candidates that fail to decode or fail schema validation are counted in
// Found but skipped. A nil schema accepts every decodable object.
//
// Recover never panics; any unexpected failure yields an empty Result.
func Recover[T any](text, listKey string, schema *jsonschema.Schema) (result Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[JSON Recovery] recovered from panic while parsing %q list: %v", listKey, r)
			result = Result[T]{}
		}
	}()

	candidates := Candidates(text, listKey)
	result.Found = len(candidates)

	for idx, candidate := range candidates {
		doc, err := decodeGeneric(candidate)
		if err != nil {
			log.Printf("[JSON Recovery] candidate %d/%d skipped: invalid JSON (%v)", idx+1, len(candidates), err)
			continue
		}
		if schema != nil {
			if err := schema.Validate(doc); err != nil {
				log.Printf("[JSON Recovery] candidate %d/%d skipped: required fields missing", idx+1, len(candidates))
				continue
			}
		}

		var obj T
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			log.Printf("[JSON Recovery] candidate %d/%d skipped: %v", idx+1, len(candidates), err)
			continue
		}
		result.Objects = append(result.Objects, obj)
	}

	result.Valid = len(result.Objects)
	return result
}

// Candidates returns the raw text of every top-level object inside the list value
// of listKey. An object still open when the text ends is returned as well, so that
// truncated output counts as found even though it cannot decode.
// It returns nil when the key is absent.
func Candidates(text, listKey string) []string {
	text = stripMarkdownFence(text)

	loc := listKeyPattern(listKey).FindStringIndex(text)
	if loc == nil {
		return nil
	}
	span := text[loc[1]:]

	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escaped    bool
	)

scan:
	for i := 0; i < len(span); i++ {
		c := span[i]

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
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, span[start:i+1])
					start = -1
				}
			}
		case ']':
			if depth == 0 {
				break scan
			}
		}
	}

	if depth > 0 && start != -1 {
		candidates = append(candidates, span[start:])
	}

	return candidates
}

// RequiredFieldsSchema compiles a schema requiring each field to be a string
// with at least one non-whitespace character.
func RequiredFieldsSchema(fields ...string) (*jsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		properties[f] = map[string]interface{}{
			"type":    "string",
			"pattern": `\S`,
		}
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":       "object",
		"required":   fields,
		"properties": properties,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}

	schema, err := jsonschema.CompileString("required_fields.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

func listKeyPattern(listKey string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(listKey) + `"\s*:\s*\[`)
}

func decodeGeneric(candidate string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// stripMarkdownFence removes a ```json ... ``` wrapper. The closing fence is
// optional since truncated output rarely has one.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
