package analytics

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type AnswerKind int

const (
	AnswerInvalid AnswerKind = iota
	AnswerNumber
	AnswerText
	AnswerIDList
	AnswerSelections
)

// Selection is one weighted nomination inside a structured sociometric
// answer.
type Selection struct {
	UserID string
	Weight float64
}

// AnswerValue is the tagged variant for the heterogeneous answer shapes a
// response can carry: a scalar rating, free text, a plain list of respondent
// ids, or a structured object with weighted selections. Anything else
// decodes to AnswerInvalid and contributes nothing downstream.
type AnswerValue struct {
	Kind       AnswerKind
	Number     float64
	Text       string
	IDs        []string
	Selections []Selection

	// MalformedItems counts list elements or selection entries that were
	// skipped because they carried no usable respondent identifier.
	MalformedItems int

	empty bool
}

// IsEmpty reports whether the answer counts as unanswered for completeness
// scoring: null, empty string, or empty array.
func (a AnswerValue) IsEmpty() bool {
	return a.empty
}

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	*a = AnswerValue{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		a.empty = true
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		a.Kind = AnswerText
		a.Text = s
		a.empty = s == ""
	case '[':
		a.decodeList(trimmed)
	case '{':
		a.decodeObject(trimmed)
	case 't', 'f':
		// Booleans carry no nomination or rating signal.
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		a.Kind = AnswerNumber
		a.Number = f
	}

	return nil
}

func (a *AnswerValue) decodeList(data []byte) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return
	}

	a.Kind = AnswerIDList
	a.empty = len(items) == 0

	for _, item := range items {
		id, ok := identifierString(item)
		if !ok {
			a.MalformedItems++
			continue
		}
		a.IDs = append(a.IDs, id)
	}
}

func (a *AnswerValue) decodeObject(data []byte) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return
	}

	raw, ok := obj["selections"]
	if !ok {
		return
	}

	items, ok := raw.([]interface{})
	if !ok {
		return
	}

	a.Kind = AnswerSelections

	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			a.MalformedItems++
			continue
		}

		id, ok := identifierString(entry["user_id"])
		if !ok {
			a.MalformedItems++
			continue
		}

		weight := 1.0
		if w, ok := entry["weight"]; ok {
			if n, ok := w.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					weight = f
				}
			}
		}

		a.Selections = append(a.Selections, Selection{UserID: id, Weight: weight})
	}
}

// identifierString canonicalizes a respondent identifier that may arrive as
// a JSON string or number. Fractional numbers and blank strings are
// rejected.
func identifierString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return "", false
	default:
		return "", false
	}
}

// ParseAnswers decodes a response's answers JSON object into the tagged
// variant form. A malformed document yields an empty map rather than an
// error so one bad response cannot abort a batch.
func ParseAnswers(answersJSON string) map[string]AnswerValue {
	answers := make(map[string]AnswerValue)
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return map[string]AnswerValue{}
	}
	return answers
}
