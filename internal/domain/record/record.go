package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Record is the structured representation of a query or a candidate document.
// Only Text is required; every other field is optional and steps degrade
// gracefully when a field they read is absent.
type Record struct {
	ID               string         `json:"id,omitempty"`
	Text             string         `json:"text"`
	Title            string         `json:"title,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Timestamp        *time.Time     `json:"timestamp,omitempty"`
	Boost            *float64       `json:"boost,omitempty"`
	Score            *float64       `json:"score,omitempty"` // upstream retrieval score
	TitleEmbedding   []float32      `json:"title_embedding,omitempty"`
	ContentEmbedding []float32      `json:"content_embedding,omitempty"`
	TitleKeywords    []string       `json:"title_keywords,omitempty"`
	ContentKeywords  []string       `json:"content_keywords,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// HasTag reports whether tag is present (tag order is irrelevant).
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Kind tags the shape a caller supplied.
type Kind int

const (
	// PlainText is a bare text string.
	PlainText Kind = iota + 1
	// Structured is a full Record.
	Structured
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "text"
	case Structured:
		return "record"
	default:
		return "unknown"
	}
}

// Input is a query or candidate as supplied by the caller: either plain text
// or a structured Record. The zero value is invalid.
type Input struct {
	kind Kind
	text string
	rec  Record
}

// Text wraps a bare text string.
func Text(s string) Input { return Input{kind: PlainText, text: s} }

// FromRecord wraps a structured record.
func FromRecord(r Record) Input { return Input{kind: Structured, rec: r} }

// Texts wraps each string as a PlainText input.
func Texts(ss ...string) []Input {
	out := make([]Input, len(ss))
	for i, s := range ss {
		out[i] = Text(s)
	}
	return out
}

// Records wraps each record as a Structured input.
func Records(rs ...Record) []Input {
	out := make([]Input, len(rs))
	for i, r := range rs {
		out[i] = FromRecord(r)
	}
	return out
}

// Kind returns the input variant.
func (in Input) Kind() Kind { return in.kind }

// Normalize returns the uniform Record shape. Plain text becomes a Record with
// only Text set.
func (in Input) Normalize() Record {
	if in.kind == Structured {
		return in.rec
	}
	return Record{Text: in.text}
}

// String returns the input text.
func (in Input) String() string {
	if in.kind == Structured {
		return in.rec.Text
	}
	return in.text
}

// MarshalJSON encodes plain text as a JSON string and records as objects.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.kind == Structured {
		return json.Marshal(in.rec)
	}
	return json.Marshal(in.text)
}

// UnmarshalJSON decodes a JSON string as PlainText and a JSON object as Structured.
func (in *Input) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty input")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode text input: %w", err)
		}
		*in = Text(s)
		return nil
	case '{':
		var r Record
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return fmt.Errorf("decode record input: %w", err)
		}
		*in = FromRecord(r)
		return nil
	default:
		return fmt.Errorf("input must be a string or an object")
	}
}
