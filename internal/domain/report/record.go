// Package report decodes upstream conjunction reports into domain messages.
//
// Upstream feeds encode ids and numbers inconsistently (JSON numbers,
// quoted strings, empty strings, null). Decoding never fails a batch on a
// single bad field: numeric fields are coerced and the coercion is logged.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Value is a loosely typed JSON scalar. It keeps the textual form of
// numbers and strings and remembers whether the field was present at all.
type Value struct {
	raw     string
	present bool
}

// Str returns a string Value.
func Str(s string) Value { return Value{raw: s, present: true} }

// Num returns a numeric Value.
func Num(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'g', -1, 64), present: true}
}

// UnmarshalJSON accepts numbers, strings and null. Other JSON types are
// kept verbatim so that numeric parsing reports them later.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*v = Value{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*v = Value{raw: string(b), present: true}
			return nil
		}
		*v = Value{raw: s, present: true}
	default:
		*v = Value{raw: string(b), present: true}
	}
	return nil
}

// MarshalJSON writes the value as a JSON string, or null when absent.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

// String returns the trimmed textual form; empty when absent.
func (v Value) String() string { return strings.TrimSpace(v.raw) }

// Present reports whether the field was set to a non-null value.
func (v Value) Present() bool { return v.present }

// Empty reports whether the field is absent or blank.
func (v Value) Empty() bool { return v.String() == "" }

// Record mirrors one upstream CDM row. Only the fields the forecaster needs
// are decoded.
type Record struct {
	CDMID             Value `json:"CDM_ID"`
	PrimaryID         Value `json:"SAT_1_ID"`
	SecondaryID       Value `json:"SAT_2_ID"`
	PrimaryObjectType Value `json:"SAT1_OBJECT_TYPE"`
	TCA               Value `json:"TCA"`
	Created           Value `json:"CREATED"`
	Probability       Value `json:"PC"`
	MissDistance      Value `json:"MIN_RNG"`
}

// DecodeJSON reads a report feed. The root may be a list of records or an
// object that holds the list under some key; a lone object is treated as a
// single record.
func DecodeJSON(r io.Reader) ([]Record, error) {
	var root json.RawMessage
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	root = bytes.TrimSpace(root)
	if len(root) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrDecode)
	}

	switch root[0] {
	case '[':
		var recs []Record
		if err := json.Unmarshal(root, &recs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return recs, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(root, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val := bytes.TrimSpace(obj[k])
			if len(val) > 0 && val[0] == '[' {
				var recs []Record
				if err := json.Unmarshal(val, &recs); err != nil {
					return nil, fmt.Errorf("%w: key %q: %v", ErrDecode, k, err)
				}
				return recs, nil
			}
		}
		var rec Record
		if err := json.Unmarshal(root, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return []Record{rec}, nil
	default:
		return nil, fmt.Errorf("%w: root must be a list or an object", ErrDecode)
	}
}
