package db

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named cell of a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is an ordered set of fields. Its JSON form is an object whose keys
// keep the field order.
type Row []Field

// NewRow builds a row from alternating names and values. Values go
// through ValueOf.
func NewRow(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("db.NewRow: odd number of arguments")
	}
	r := make(Row, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), ValueOf(kv[i+1]))
	}
	return r
}

// Get returns the value of the field called name.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null(), false
}

// Set replaces the field called name, or appends it.
func (r *Row) Set(name string, v Value) {
	for i := range *r {
		if (*r)[i].Name == name {
			(*r)[i].Value = v
			return
		}
	}
	*r = append(*r, Field{Name: name, Value: v})
}

// Names returns the field names in order.
func (r Row) Names() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Name
	}
	return out
}

// Args returns the bind values in field order.
func (r Row) Args() []any {
	out := make([]any, len(r))
	for i, f := range r {
		out[i] = f.Value.Arg()
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order. A repeated key keeps
// its first position and its last value.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a JSON object")
	}

	out := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, err := fromJSON(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out.Set(name, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}
