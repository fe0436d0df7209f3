package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Shape turns a raw provider body into an Index for the descriptor that
// produced it. A *ProviderError result fails every request the descriptor
// covers.
type Shape interface {
	Index(body []byte, d Descriptor) (*Index, error)
}

// ShapeConfig selects and parameterizes a Shape.
type ShapeConfig struct {
	Kind string // flat, nested, records or series

	// nested, records and series
	ErrorField string

	// nested; series reads its points at Object
	Object string
	Field  string

	// series
	Now func() time.Time

	// records
	PrimaryField   string
	SecondaryField string
	ValuePath      string
}

// Build returns the Shape described by c.
func (c ShapeConfig) Build() (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case "", "flat":
		return FlatShape{}, nil
	case "nested":
		if c.Field == "" {
			return nil, fmt.Errorf("nested shape: field is required")
		}
		return NestedShape{ErrorField: c.ErrorField, Object: c.Object, Field: c.Field}, nil
	case "records":
		if c.PrimaryField == "" || c.ValuePath == "" {
			return nil, fmt.Errorf("records shape: primary field and value path are required")
		}
		return RecordsShape{
			ErrorField:     c.ErrorField,
			PrimaryField:   c.PrimaryField,
			SecondaryField: c.SecondaryField,
			ValuePath:      c.ValuePath,
		}, nil
	case "series":
		if c.Object == "" {
			return nil, fmt.Errorf("series shape: object is required")
		}
		return SeriesShape{ErrorField: c.ErrorField, Object: c.Object, Now: c.Now}, nil
	default:
		return nil, fmt.Errorf("unknown response shape %q", c.Kind)
	}
}

// BuildFor is Build plus a check that the shape can answer the descriptors
// mode produces. Nested and series bodies carry a single value, so they need
// one call per pair.
func (c ShapeConfig) BuildFor(mode Mode) (Shape, error) {
	shape, err := c.Build()
	if err != nil {
		return nil, err
	}
	switch shape.(type) {
	case NestedShape, SeriesShape:
		if mode != ModePair {
			return nil, fmt.Errorf("%s shape needs pair mode, got %s", strings.ToLower(strings.TrimSpace(c.Kind)), mode)
		}
	}
	return shape, nil
}

// FlatShape reads bodies keyed by id, either {"btc": 1} or
// {"btc": {"usd": 1, "eur": 2}}.
type FlatShape struct{}

func (FlatShape) Index(body []byte, _ Descriptor) (*Index, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decoding provider response: %v", err)}
	}
	idx := NewIndex()
	for id, v := range raw {
		if n, ok := number(v); ok {
			idx.Set(id, "", n)
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(v, &inner); err != nil || inner == nil {
			continue
		}
		idx.Touch(id)
		for quote, qv := range inner {
			if n, ok := number(qv); ok {
				idx.Set(id, quote, n)
			}
		}
	}
	return idx, nil
}

// NestedShape reads single-pair bodies where the value sits at
// body[Object][Field], and ErrorField signals a provider failure, e.g.
//
//	{"Realtime Currency Exchange Rate": {"5. Exchange Rate": "1.09"}}
//	{"Error Message": "invalid API key"}
type NestedShape struct {
	ErrorField string
	Object     string
	Field      string
}

func (s NestedShape) Index(body []byte, d Descriptor) (*Index, error) {
	if len(d.Primary) > 1 || len(d.Secondary) > 1 {
		return nil, &ProviderError{Message: singlePair(d)}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decoding provider response: %v", err)}
	}
	if s.ErrorField != "" {
		if msg := text(raw[s.ErrorField]); msg != "" {
			return nil, &ProviderError{Message: msg}
		}
	}

	obj := raw
	if s.Object != "" {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw[s.Object], &inner); err != nil || inner == nil {
			return nil, &ProviderError{Message: missingData(s.Object)}
		}
		obj = inner
	}
	v, ok := number(obj[s.Field])
	if !ok {
		return nil, &ProviderError{Message: missingData(label(s.Field))}
	}

	idx := NewIndex()
	for _, id := range d.Primary {
		if len(d.Secondary) == 0 {
			idx.Set(id, "", v)
		}
		for _, quote := range d.Secondary {
			idx.Set(id, quote, v)
		}
	}
	return idx, nil
}

// RecordsShape reads array bodies with one object per instrument, e.g.
//
//	[{"baseCurrency": "btc", "quoteCurrency": "usd", "topOfBookData": [{"lastPrice": 1}]}]
//
// ValuePath is dot separated; numeric segments index into arrays.
type RecordsShape struct {
	ErrorField     string
	PrimaryField   string
	SecondaryField string
	ValuePath      string
}

func (s RecordsShape) Index(body []byte, _ Descriptor) (*Index, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err == nil && s.ErrorField != "" {
			if msg := text(obj[s.ErrorField]); msg != "" {
				return nil, &ProviderError{Message: msg}
			}
		}
		return nil, &ProviderError{Message: "unexpected provider response: expected an array of records"}
	}

	var records []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decoding provider response: %v", err)}
	}
	idx := NewIndex()
	for _, rec := range records {
		id := text(rec[s.PrimaryField])
		if id == "" {
			continue
		}
		idx.Touch(id)
		quote := ""
		if s.SecondaryField != "" {
			quote = text(rec[s.SecondaryField])
			if quote == "" {
				continue
			}
		}
		if v, ok := number(walk(rec, s.ValuePath)); ok {
			idx.Set(id, quote, v)
		}
	}
	return idx, nil
}

// SeriesShape reads [timestamp_ms, value] points stored at Object, e.g.
//
//	{"result": [[1700000000000, 45.2], [1700003600000, 44.9]]}
//
// The secondary key is a whole number of days: the value picked is the one
// stamped at the start of the current UTC hour, that many days back.
type SeriesShape struct {
	// ErrorField is a dot separated path, e.g. "error.message".
	ErrorField string
	Object     string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s SeriesShape) Index(body []byte, d Descriptor) (*Index, error) {
	if len(d.Primary) != 1 || len(d.Secondary) > 1 {
		return nil, &ProviderError{Message: singlePair(d)}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decoding provider response: %v", err)}
	}
	if s.ErrorField != "" {
		if msg := text(walk(raw, s.ErrorField)); msg != "" {
			return nil, &ProviderError{Message: msg}
		}
	}
	var points [][]json.RawMessage
	if err := json.Unmarshal(walk(raw, s.Object), &points); err != nil || points == nil {
		return nil, &ProviderError{Message: missingData(s.Object)}
	}

	offset, days := "", 0
	if len(d.Secondary) == 1 {
		offset = d.Secondary[0]
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return nil, &ProviderError{Message: fmt.Sprintf("invalid day offset %q", offset)}
		}
		days = n
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now().UTC().Truncate(time.Hour).AddDate(0, 0, -days).UnixMilli()

	for _, p := range points {
		if len(p) < 2 {
			continue
		}
		ts, ok := number(p[0])
		if !ok || int64(ts) != at {
			continue
		}
		if v, ok := number(p[1]); ok {
			idx := NewIndex()
			idx.Set(d.Primary[0], offset, v)
			return idx, nil
		}
	}
	return nil, &ProviderError{Message: "no value for this date"}
}

func singlePair(d Descriptor) string {
	return fmt.Sprintf("response answers a single pair, request carried %d ids and %d quotes", len(d.Primary), len(d.Secondary))
}

// walk follows a dot separated path through objects and arrays.
func walk(rec map[string]json.RawMessage, path string) json.RawMessage {
	segs := strings.Split(path, ".")
	cur, ok := rec[segs[0]]
	if !ok {
		return nil
	}
	for _, seg := range segs[1:] {
		if i, err := strconv.Atoi(seg); err == nil {
			var arr []json.RawMessage
			if json.Unmarshal(cur, &arr) != nil || i < 0 || i >= len(arr) {
				return nil
			}
			cur = arr[i]
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(cur, &obj) != nil {
			return nil
		}
		if cur, ok = obj[seg]; !ok {
			return nil
		}
	}
	return cur
}

// number accepts JSON numbers and numeric strings; null and anything else
// are reported as absent.
func number(raw json.RawMessage) (float64, bool) {
	s := bytes.TrimSpace(raw)
	if len(s) == 0 || bytes.Equal(s, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(s, &f); err == nil {
		return f, true
	}
	var str string
	if err := json.Unmarshal(s, &str); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// text returns a JSON string value, or the raw JSON of any other non-null
// value.
func text(raw json.RawMessage) string {
	s := bytes.TrimSpace(raw)
	if len(s) == 0 || bytes.Equal(s, []byte("null")) {
		return ""
	}
	var str string
	if err := json.Unmarshal(s, &str); err == nil {
		return strings.TrimSpace(str)
	}
	return string(s)
}

// label strips an ordinal prefix such as "5. " from a field name.
func label(field string) string {
	if i := strings.Index(field, ". "); i > 0 {
		if _, err := strconv.Atoi(field[:i]); err == nil {
			return field[i+2:]
		}
	}
	return field
}

func missingData(what string) string {
	return fmt.Sprintf("There was a problem getting the '%s' data from the source", what)
}
