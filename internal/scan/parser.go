// Package scan implements the scan pipeline: payload extraction from engine
// output, field normalization, opportunity ranking, and the tiered fallback
// controller that always produces a shaped response.
package scan

import (
	"encoding/json"
	"strings"
)

// ExtractPayload pulls the single JSON document out of raw engine output.
// The engine is allowed to interleave human-readable progress lines with
// the structured payload, and may emit the payload on either stream, so the
// extraction is deliberately best-effort:
//
//  1. try the trimmed stdout as-is
//  2. try the first-bracket..last-matching-bracket slice of stdout
//  3. repeat both attempts on stdout+stderr combined
//
// It assumes at most one JSON document per stream and that the document is
// not truncated mid-emission. Returns ok=false when no payload is found;
// it never panics on malformed input.
func ExtractPayload(stdout, stderr string) (json.RawMessage, bool) {
	if payload, ok := extractFrom(stdout); ok {
		return payload, true
	}
	// Some engines log progress to stdout and emit the final JSON to
	// stderr, or vice versa.
	combined := stdout + "\n" + stderr
	return extractFrom(combined)
}

func extractFrom(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	// Direct parse first: the common case is a pure-JSON stream.
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), true
	}

	// Fall back to slicing out the outermost bracketed block.
	slice, ok := bracketSlice(trimmed)
	if !ok {
		return nil, false
	}
	if json.Valid([]byte(slice)) {
		return json.RawMessage(slice), true
	}
	return nil, false
}

// bracketSlice returns the substring from the first '{' or '[' to the last
// occurrence of the matching closer.
func bracketSlice(s string) (string, bool) {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start := objStart
	closer := byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		closer = ']'
	}
	if start == -1 {
		return "", false
	}

	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
