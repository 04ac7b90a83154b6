package db

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "null":
		return KindNull, true
	case "integer":
		return KindInteger, true
	case "real":
		return KindReal, true
	case "text", "":
		return KindText, true
	case "blob":
		return KindBlob, true
	}
	return KindNull, false
}

// Value is a scalar cell: null, integer, real, text or blob.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func Null() Value { return Value{} }
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }
func Real(f float64) Value { return Value{kind: KindReal, f: f} }
func Text(s string) Value { return Value{kind: KindText, s: s} }
func Blob(b []byte) Value { return Value{kind: KindBlob, b: b} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string { return v.s }
func (v Value) Bytes() []byte { return v.b }

// Arg returns the value in the form database/sql binds.
func (v Value) Arg() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// String renders the value for display. Null renders as NULL.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return base64.StdEncoding.EncodeToString(v.b)
	default:
		return "NULL"
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindReal:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindText:
		return v.s == o.s
	case KindBlob:
		return bytes.Equal(v.b, o.b)
	default:
		return true
	}
}

// ValueOf converts a value scanned from a driver into a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case int64:
		return Integer(t)
	case int:
		return Integer(int64(t))
	case int32:
		return Integer(int64(t))
	case int16:
		return Integer(int64(t))
	case int8:
		return Integer(int64(t))
	case uint8:
		return Integer(int64(t))
	case uint16:
		return Integer(int64(t))
	case uint32:
		return Integer(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Text(strconv.FormatUint(t, 10))
		}
		return Integer(int64(t))
	case bool:
		if t {
			return Integer(1)
		}
		return Integer(0)
	case float64:
		return Real(t)
	case float32:
		return Real(float64(t))
	case string:
		return Text(t)
	case []byte:
		return Blob(append([]byte(nil), t...))
	case time.Time:
		return Text(t.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return Text(t.String())
	default:
		return Text(fmt.Sprint(t))
	}
}

// ParseValue interprets command-line text: "null" is null, integer and
// real literals become numbers, anything else is text.
func ParseValue(s string) Value {
	if strings.EqualFold(s, "null") {
		return Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Real(f)
	}
	return Text(s)
}

// MarshalJSON encodes the value as a JSON scalar; blobs become base64 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInteger:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindReal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("cannot encode %v as JSON", v.f)
		}
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	case KindBlob:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, numbers, strings and booleans (stored as 0/1).
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func fromJSON(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		if t {
			return Integer(1), nil
		}
		return Integer(0), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q", t.String())
		}
		return Real(f), nil
	case string:
		return Text(t), nil
	default:
		return Null(), fmt.Errorf("value must be a scalar, got %T", raw)
	}
}

// TextBytesValueOf is ValueOf for drivers that return character columns
// as []byte: valid UTF-8 becomes Text.
func TextBytesValueOf(x any) Value {
	if b, ok := x.([]byte); ok && utf8.Valid(b) {
		return Text(string(b))
	}
	return ValueOf(x)
}
