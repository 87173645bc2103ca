// Package extract turns raw reasoning-service responses into structured
// records, tolerating prose wrappers, code fences, and truncated output.
//
// Parsing is an ordered chain of pure strategies; the first one that yields
// valid JSON matching the caller's shape wins. When every strategy fails the
// caller's zero-valued shape stands, so decoding is total: no input can make
// it panic or return garbage outside the expected shape.
package extract

import (
	"encoding/json"
	"reflect"
	"strings"
)

// strategy extracts one candidate JSON document from raw text.
// marker is a field name that must appear in brace-scanned candidates.
type strategy func(raw, marker string) (string, bool)

// strategies are tried in order; first success wins.
var strategies = []strategy{
	labeledFence,
	anyFence,
	braceScan,
	wholeText,
}

// Decode parses raw reasoning output into out, which must be a non-nil
// pointer. marker names a field expected inside the target object and
// anchors the brace-scan fallback. Returns false when no strategy produced
// a parseable candidate; out is left untouched in that case.
func Decode(raw, marker string, out any) bool {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	for _, s := range strategies {
		candidate, ok := s(raw, marker)
		if !ok {
			continue
		}
		if tryUnmarshal(candidate, rv) {
			return true
		}
	}
	return false
}

// tryUnmarshal decodes into a fresh value first so a mid-decode type error
// cannot leave the caller's value half-filled.
func tryUnmarshal(candidate string, out reflect.Value) bool {
	data := []byte(strings.TrimSpace(candidate))
	if len(data) == 0 || !json.Valid(data) {
		return false
	}
	fresh := reflect.New(out.Type().Elem())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		return false
	}
	out.Elem().Set(fresh.Elem())
	return true
}

// labeledFence extracts the interior of a ```json fenced block.
func labeledFence(raw, _ string) (string, bool) {
	lower := strings.ToLower(raw)
	start := strings.Index(lower, "```json")
	if start < 0 {
		return "", false
	}
	body := raw[start+len("```json"):]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// anyFence extracts the interior of the first fenced block of any label.
// A missing closing fence (truncated output) yields the remainder of the
// text; validity is judged by the caller.
func anyFence(raw, _ string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	body := raw[start+3:]
	// Drop a language tag on the opening fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		first := strings.TrimSpace(body[:nl])
		if first != "" && !strings.ContainsAny(first, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// braceScan finds the first balanced brace-delimited object that mentions
// the marker field. The scan is string-aware so braces inside JSON strings
// do not unbalance it.
func braceScan(raw, marker string) (string, bool) {
	for from := 0; from < len(raw); {
		open := strings.IndexByte(raw[from:], '{')
		if open < 0 {
			return "", false
		}
		open += from
		obj, ok := balancedObject(raw[open:])
		if ok && (marker == "" || strings.Contains(obj, `"`+marker+`"`)) {
			return obj, true
		}
		from = open + 1
	}
	return "", false
}

// balancedObject returns the shortest balanced {...} prefix of s.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// wholeText tries the entire response as-is.
func wholeText(raw, _ string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}

// Clamp01 forces a score into [0, 1] no matter what the raw value claimed.
func Clamp01(v float64) float64 {
	return ClampRange(v, 0, 1)
}

// ClampRange forces v into [lo, hi].
func ClampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
