// Package recovery extracts structured JSON documents from generative model
// output that may be wrapped in prose or markdown code fences.
package recovery

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stage identifies which extraction attempt produced a document.
type Stage int

const (
	StageNone Stage = iota
	StagePassthrough
	StageDirect
	StageObject
	StageArray
)

func (s Stage) String() string {
	switch s {
	case StagePassthrough:
		return "passthrough"
	case StageDirect:
		return "direct"
	case StageObject:
		return "object"
	case StageArray:
		return "array"
	default:
		return "none"
	}
}

const byteOrderMark = "\uFEFF"

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

// TryParseTripData returns the structured document carried by raw, or nil.
//
// Non-string input, byte slices included, is returned unchanged. Strings are stripped of a BOM,
// surrounding whitespace and one pair of code fences, then parsed directly;
// failing that, the span from the first '{' to the last '}' is parsed, then
// the span from the first '[' to the last ']'. Partial documents are never
// returned.
func TryParseTripData(raw any) any {
	doc, _ := ParseWithStage(raw)
	return doc
}

// ParseWithStage is TryParseTripData that also reports the successful stage.
func ParseWithStage(raw any) (doc any, stage Stage) {
	defer func() {
		if r := recover(); r != nil {
			doc, stage = nil, StageNone
		}
	}()

	var text string
	switch v := raw.(type) {
	case nil:
		return nil, StageNone
	case string:
		text = v
	default:
		return raw, StagePassthrough
	}

	text = strings.TrimSpace(strings.TrimPrefix(text, byteOrderMark))
	if text == "" {
		return nil, StageNone
	}
	text = stripFences(text)

	if v, ok := decode(text); ok {
		return v, StageDirect
	}
	if v, ok := decodeBetween(text, "{", "}"); ok {
		return v, StageObject
	}
	if v, ok := decodeBetween(text, "[", "]"); ok {
		return v, StageArray
	}
	return nil, StageNone
}

// TryParseInto recovers a document from raw and decodes it into dst.
func TryParseInto[T any](raw any, dst *T) bool {
	doc := TryParseTripData(raw)
	if doc == nil {
		return false
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func stripFences(text string) string {
	if loc := leadingFence.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := trailingFence.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return text
}

func decodeBetween(text, open, close string) (any, bool) {
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	return decode(text[start : end+1])
}

func decode(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return v, true
}
