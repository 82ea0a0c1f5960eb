package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

const fence = "```"

// ParseLenient recovers a JSON value from free-form model output.
//
// It strips code fences, tries a direct decode, then falls back to the
// balanced {...} or [...] substrings in order of appearance. Numbers are
// kept as json.Number. No field validation happens here.
func ParseLenient(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", common.ErrMalformedOutput)
	}

	candidates := []string{StripCodeFences(text)}
	if inner, ok := fencedBlock(text); ok {
		candidates = append(candidates, inner)
	}
	for _, c := range candidates {
		if v, err := decodeStrict(c); err == nil {
			return v, nil
		}
	}
	for _, c := range candidates {
		for _, sub := range BalancedJSONCandidates(c) {
			if v, err := decodeStrict(sub); err == nil {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: response is not JSON and no JSON object or array could be recovered (%q)",
		common.ErrMalformedOutput, truncate(text, 80))
}

// StripCodeFences removes a leading ``` (with optional language tag) and a trailing ```.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, fence) {
		s = strings.TrimPrefix(s, fence)
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			tag := strings.TrimSpace(s[:nl])
			if tag == "" || isLangTag(tag) {
				s = s[nl+1:]
			}
		} else if strings.HasPrefix(strings.ToLower(s), "json") {
			s = s[len("json"):]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// fencedBlock returns the contents of the first fenced block anywhere in s.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, fence)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return StripCodeFences(fence + rest[:end] + fence), true
}

func isLangTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// BalancedJSONCandidates returns every top-level balanced {...}/[...] span in s,
// honouring string literals and escapes.
func BalancedJSONCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end, ok := matchBalanced(s, i); ok {
			out = append(out, s[i:end+1])
			i = end
		}
	}
	return out
}

func matchBalanced(s string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// decodeStrict decodes exactly one JSON value with nothing but whitespace after it.
func decodeStrict(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
