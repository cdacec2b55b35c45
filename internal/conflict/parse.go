package conflict

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ParseError reports a source payload that is not a flat key/value object.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s data: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// nestedKeys are flattened one level so wrapped payloads reconcile like flat ones.
var nestedKeys = []string{"metrics", "details", "data"}

// ParseSource turns an agent payload into a flat map.
// Maps with string keys are used directly. Strings and byte slices are decoded
// as a JSON object; when the text carries prose around the object, the
// outermost braces are tried. Anything else is a ParseError.
func ParseSource(source string, raw any) (map[string]any, error) {
	var m map[string]any
	switch v := raw.(type) {
	case nil:
		return nil, &ParseError{Source: source, Err: errors.New("no data")}
	case map[string]any:
		m = v
	case string:
		parsed, err := decodeObject(v)
		if err != nil {
			return nil, &ParseError{Source: source, Err: err}
		}
		m = parsed
	case []byte:
		parsed, err := decodeObject(string(v))
		if err != nil {
			return nil, &ParseError{Source: source, Err: err}
		}
		m = parsed
	default:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("expected an object, got %T", raw)}
		}
		m = make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
	}
	return flatten(m), nil
}

func decodeObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	var m map[string]any
	err := json.Unmarshal([]byte(text), &m)
	if err == nil && m != nil {
		return m, nil
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var inner map[string]any
		if json.Unmarshal([]byte(text[start:end+1]), &inner) == nil && inner != nil {
			return inner, nil
		}
	}
	if err == nil {
		err = errors.New("expected a JSON object")
	}
	return nil, err
}

// flatten lifts the fields of well-known wrapper objects to the top level.
// Top-level fields win over lifted ones.
func flatten(m map[string]any) map[string]any {
	var lifted map[string]any
	for _, key := range nestedKeys {
		inner, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		if lifted == nil {
			lifted = make(map[string]any, len(m))
			for k, v := range m {
				lifted[k] = v
			}
		}
		delete(lifted, key)
		for k, v := range inner {
			if _, exists := lifted[k]; !exists {
				lifted[k] = v
			}
		}
	}
	if lifted == nil {
		return m
	}
	return lifted
}

// Summary wraps a report with a one-line description for callers that only
// show text.
type Summary struct {
	Summary string  `json:"summary"`
	Details *Report `json:"details,omitempty"`
	Err     error   `json:"-"`
}

// ResolvePayloads parses both payloads and resolves them. Parse failures are
// reported in the summary and never returned as errors.
func ResolvePayloads(fabricRaw, genieRaw any, rule Rule) Summary {
	fabric, err := ParseSource("fabric", fabricRaw)
	if err != nil {
		return Summary{Summary: fmt.Sprintf("Conflict resolution failed: %v", err), Err: err}
	}
	genie, err := ParseSource("genie", genieRaw)
	if err != nil {
		return Summary{Summary: fmt.Sprintf("Conflict resolution failed: %v", err), Err: err}
	}

	report := Resolve(fabric, genie, rule)
	return Summary{
		Summary: fmt.Sprintf("Resolved %d conflicts", report.ConflictCount),
		Details: &report,
	}
}
