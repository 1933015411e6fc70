// Package storeval implements the value model and text/raw (de)serialization
// rules used throughout the storage engine: a tagged variant standing in for
// "anything JSON-representable", tolerant parsing of driver-returned text,
// and the raw-byte envelope that lets a text-only backend round-trip bytes.
package storeval

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindBytes
)

// Value is the tagged variant the engine and drivers exchange: null, string,
// number, boolean, object, array, or (raw-path only) an opaque byte slice.
// A Value cannot hold function values, channels, or cyclic references:
// FromAny renders any Go type it does not know as a %v string.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Object map[string]Value
	Array  []Value
	Bytes  []byte
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func BoolValue(b bool) Value                { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value                { return Value{Kind: KindNumber, Number: n} }
func String(s string) Value                 { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value                  { return Value{Kind: KindBytes, Bytes: b} }
func ObjectValue(m map[string]Value) Value  { return Value{Kind: KindObject, Object: m} }
func ArrayValue(a []Value) Value            { return Value{Kind: KindArray, Array: a} }

// IsNull reports whether v is the null value (the zero Value is also null).
func (v Value) IsNull() bool { return v.Kind == KindNull }

// MarshalJSON lets a Value participate as the "custom JSON-serialization
// hook" mentioned in the spec: Stringify calls json.Marshal, and any Value
// already knows how to render itself.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		return []byte(strconv.FormatFloat(v.Number, 'g', -1, 64)), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindObject:
		return json.Marshal(v.Object)
	case KindArray:
		return json.Marshal(v.Array)
	case KindBytes:
		return nil, fmt.Errorf("storeval: %w: raw byte values have no JSON form", ErrNotSerializable)
	default:
		return nil, fmt.Errorf("storeval: %w: unknown kind %d", ErrNotSerializable, v.Kind)
	}
}

// UnmarshalJSON reconstructs a Value from its JSON form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny lifts a plain Go value (as produced by encoding/json.Unmarshal into
// `any`, or handed in directly by a caller) into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case bool:
		return BoolValue(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, val := range t {
			m[k] = FromAny(val)
		}
		return ObjectValue(m)
	case []any:
		a := make([]Value, len(t))
		for i, val := range t {
			a[i] = FromAny(val)
		}
		return ArrayValue(a)
	case map[string]Value:
		return ObjectValue(t)
	case []Value:
		return ArrayValue(t)
	case Value:
		return t
	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", t)}
	}
}

// ToAny lowers a Value back to a plain Go value, the inverse of FromAny for
// the JSON-representable kinds.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindObject:
		m := make(map[string]any, len(v.Object))
		for k, val := range v.Object {
			m[k] = val.ToAny()
		}
		return m
	case KindArray:
		a := make([]any, len(v.Array))
		for i, val := range v.Array {
			a[i] = val.ToAny()
		}
		return a
	}
	return nil
}

// Stringify renders v as text for a driver's text channel. Values with a
// custom JSON hook (anything implementing json.Marshaler) are honored via
// json.Marshal; plain values go through the same path since Value itself
// implements json.Marshaler. A raw (KindBytes) value has no text form and
// fails fast with ErrNotSerializable — callers wanting bytes on the wire use
// EncodeRaw instead.
func Stringify(v Value) (string, error) {
	if v.Kind == KindBytes {
		return "", fmt.Errorf("storeval: %w: use EncodeRaw for byte values", ErrNotSerializable)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("storeval: %w: %v", ErrNotSerializable, err)
	}
	return string(b), nil
}

// TolerantParse is a best-effort text-to-Value decoder: valid JSON parses as
// JSON; a bare primitive literal (true/false/null/integer/float) parses as
// that literal; anything else is returned as the raw string unchanged.
func TolerantParse(text string) Value {
	trimmed := strings.TrimSpace(text)
	switch trimmed {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	case "null":
		return Null
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil && trimmed != "" {
		return Number(float64(n))
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && trimmed != "" && looksNumeric(trimmed) {
		return Number(n)
	}
	var v Value
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		// json.Unmarshal into Value (via FromAny) only succeeds for genuine
		// JSON documents (objects, arrays, quoted strings, or literals
		// already handled above); a bare unquoted word like "hello" is not
		// valid JSON, so it falls through to the raw-string branch below.
		return v
	}
	return String(text)
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '+' || c == '-' {
			if i != 0 {
				return false
			}
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const rawPrefix = "\x00RAW:"

// EncodeRaw emits a tagged text envelope carrying the byte length and a
// base64 body, so a text-only backend still round-trips setRaw/getRaw.
func EncodeRaw(b []byte) string {
	return fmt.Sprintf("%s%d:%s", rawPrefix, len(b), base64.StdEncoding.EncodeToString(b))
}

// DecodeRaw is the inverse of EncodeRaw. Text that isn't a recognized
// envelope is returned as its own UTF-8 bytes unchanged.
func DecodeRaw(text string) []byte {
	if !strings.HasPrefix(text, rawPrefix) {
		return []byte(text)
	}
	rest := text[len(rawPrefix):]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return []byte(text)
	}
	n, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return []byte(text)
	}
	decoded, err := base64.StdEncoding.DecodeString(rest[idx+1:])
	if err != nil || len(decoded) != n {
		return []byte(text)
	}
	return decoded
}
