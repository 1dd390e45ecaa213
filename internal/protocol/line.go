// Package protocol implements the line protocol spoken by worker processes.
//
// A worker writes text to stdout, one record per line. A line which is a JSON
// object is a structured event, anything else is opaque text. Decode makes
// that decision exactly once per line, so callers switch on the returned
// variant instead of re-inspecting the content.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Line is either a StructuredEvent or a RawText.
type Line interface {
	line()
}

// StructuredEvent is a line that parsed as a JSON object.
type StructuredEvent struct {
	Fields map[string]any
}

// RawText is any other line, kept byte for byte.
type RawText struct {
	Content string
}

func (StructuredEvent) line() {}
func (RawText) line()         {}

// Decode classifies a single line. It never fails: whatever is not a JSON
// object comes back as RawText with the content unchanged.
func Decode(line string) Line {
	trimmed := bytes.TrimLeft([]byte(line), " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return RawText{Content: line}
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return RawText{Content: line}
	}
	return StructuredEvent{Fields: fields}
}
