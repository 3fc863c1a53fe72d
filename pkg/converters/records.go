package converters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind classifies a JSON scalar.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindOther
)

// Record is one JSON object with its keys in document order. encoding/json
// maps lose key order, and the order of metadata columns is significant.
type Record struct {
	Keys   []string
	Values map[string]json.RawMessage
}

// DecodeRecords decodes a JSON array of objects.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	records := make([]Record, 0)
	for dec.More() {
		rec, err := decodeRecord(dec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeRecord(dec *json.Decoder) (Record, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return Record{}, err
	}
	rec := Record{Values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("failed to read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, fmt.Errorf("failed to read value of %q: %w", key, err)
		}
		if _, seen := rec.Values[key]; !seen {
			rec.Keys = append(rec.Keys, key)
		}
		rec.Values[key] = raw
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("expected %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Columns returns the union of record keys in first-seen order.
func Columns(records []Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for _, k := range r.Keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// Scalar returns the text form of a JSON value and its kind. Strings are
// unquoted and numbers keep their literal spelling.
func Scalar(raw json.RawMessage) (string, Kind) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", KindNull
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return string(b), KindOther
		}
		return s, KindString
	case 't', 'f':
		return string(b), KindBool
	case '{', '[':
		return string(b), KindOther
	default:
		return string(b), KindNumber
	}
}

// Number parses a JSON number value.
func Number(raw json.RawMessage) (float64, bool) {
	text, kind := Scalar(raw)
	if kind != KindNumber {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
