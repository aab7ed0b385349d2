package types

import "fmt"

// ValueKind tags which variant of Value is populated.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt64
	KindFloat64
	KindText
	KindBlob
)

// Value is the closed sum type every bound parameter and every returned
// cell is modeled as: {Null, Integer(i64), Real(f64), Text(String), Blob([]byte)}.
// It is dialect-neutral; backend adapters translate it to and from their
// driver's native placeholder types.
type Value struct {
	Kind ValueKind
	I    int64
	F    float64
	S    string
	B    []byte
}

func Null() Value              { return Value{Kind: KindNull} }
func Int64(v int64) Value      { return Value{Kind: KindInt64, I: v} }
func Float64(v float64) Value  { return Value{Kind: KindFloat64, F: v} }
func Text(v string) Value      { return Value{Kind: KindText, S: v} }
func Blob(v []byte) Value      { return Value{Kind: KindBlob, B: v} }
func Bool(v bool) Value {
	if v {
		return Int64(1)
	}
	return Int64(0)
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsText returns the value's text representation, converting integers and
// reals the way SQL's implicit casts would. Returns false for NULL or blob.
func (v Value) AsText() (string, bool) {
	switch v.Kind {
	case KindText:
		return v.S, true
	case KindInt64:
		return fmt.Sprintf("%d", v.I), true
	case KindFloat64:
		return fmt.Sprintf("%g", v.F), true
	default:
		return "", false
	}
}

// AsInt64 returns the value's integer representation, accepting text that
// parses cleanly as well as genuine integers.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case KindInt64:
		return v.I, true
	case KindFloat64:
		return int64(v.F), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt64:
		return fmt.Sprintf("%d", v.I)
	case KindFloat64:
		return fmt.Sprintf("%g", v.F)
	case KindText:
		return v.S
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.B))
	default:
		return "?"
	}
}

// Row is a single result row, column-ordered to match Rows.Columns.
type Row []Value

// Rows is the result of a backend Execute call.
type Rows struct {
	Columns []string
	Data    []Row
}

func (r *Rows) Len() int { return len(r.Data) }
