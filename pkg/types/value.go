// Package types holds the data model shared by every engine component:
// context values, workflow definitions, step specs, and execution records
// (spec.md §3).
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind tags a Value's variant. The zero value is ValueNull.
type ValueKind string

const (
	ValueNull      ValueKind = "null"
	ValueBool      ValueKind = "bool"
	ValueInteger   ValueKind = "integer"
	ValueDecimal   ValueKind = "decimal"
	ValueString    ValueKind = "string"
	ValueTimestamp ValueKind = "timestamp"
	ValueList      ValueKind = "list"
	ValueMap       ValueKind = "map"
)

// DefaultWeightPrecision and DefaultCurrencyPrecision are the decimal
// fractional-digit defaults spec.md §4.3 calls out.
const (
	DefaultWeightPrecision   = 10
	DefaultCurrencyPrecision = 4
	WeightSumTolerance       = 1e-6
)

// Value is the tagged-variant context value described in spec.md §3. Exactly
// one of the typed fields is meaningful, selected by Kind. Values are
// immutable once constructed.
type Value struct {
	Kind      ValueKind
	BoolVal   bool
	IntVal    int64
	DecVal    decimal.Decimal
	StrVal    string
	TimeVal   time.Time
	ListVal   []Value
	MapVal    map[string]Value
}

func Null() Value                       { return Value{Kind: ValueNull} }
func Bool(v bool) Value                  { return Value{Kind: ValueBool, BoolVal: v} }
func Integer(v int64) Value              { return Value{Kind: ValueInteger, IntVal: v} }
func Decimal(v decimal.Decimal) Value    { return Value{Kind: ValueDecimal, DecVal: v} }
func String(v string) Value              { return Value{Kind: ValueString, StrVal: v} }
func Timestamp(v time.Time) Value        { return Value{Kind: ValueTimestamp, TimeVal: v} }
func List(v []Value) Value               { return Value{Kind: ValueList, ListVal: v} }
func Map(v map[string]Value) Value       { return Value{Kind: ValueMap, MapVal: v} }

// DecimalFromFloat builds a decimal Value rounded to precision fractional
// digits, per spec.md §4.3's declared-precision numerics.
func DecimalFromFloat(f float64, precision int32) Value {
	return Decimal(decimal.NewFromFloat(f).Round(precision))
}

// IsNull reports whether v is the null variant.
func (v Value) IsNull() bool { return v.Kind == ValueNull || v.Kind == "" }

// Equal performs a structural, variant-aware comparison. Decimal comparisons
// use decimal.Decimal.Equal (exact), not float epsilon comparison.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNull:
		return true
	case ValueBool:
		return v.BoolVal == other.BoolVal
	case ValueInteger:
		return v.IntVal == other.IntVal
	case ValueDecimal:
		return v.DecVal.Equal(other.DecVal)
	case ValueString:
		return v.StrVal == other.StrVal
	case ValueTimestamp:
		return v.TimeVal.Equal(other.TimeVal)
	case ValueList:
		if len(v.ListVal) != len(other.ListVal) {
			return false
		}
		for i := range v.ListVal {
			if !v.ListVal[i].Equal(other.ListVal[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.MapVal) != len(other.MapVal) {
			return false
		}
		for k, mv := range v.MapVal {
			ov, ok := other.MapVal[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// wireValue is the JSON-on-the-wire shape: {"kind": "...", "value": ...}.
type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	kind := v.Kind
	if kind == "" {
		kind = ValueNull
	}
	var raw interface{}
	switch kind {
	case ValueNull:
		raw = nil
	case ValueBool:
		raw = v.BoolVal
	case ValueInteger:
		raw = v.IntVal
	case ValueDecimal:
		raw = v.DecVal.String()
	case ValueString:
		raw = v.StrVal
	case ValueTimestamp:
		raw = v.TimeVal.Format(time.RFC3339Nano)
	case ValueList:
		raw = v.ListVal
	case ValueMap:
		raw = v.MapVal
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: kind, Value: encoded})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := w.Kind
	if kind == "" {
		kind = ValueNull
	}
	switch kind {
	case ValueNull:
		*v = Null()
	case ValueBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case ValueInteger:
		var i int64
		if err := json.Unmarshal(w.Value, &i); err != nil {
			return err
		}
		*v = Integer(i)
	case ValueDecimal:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("types: invalid decimal value %q: %w", s, err)
		}
		*v = Decimal(d)
	case ValueString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case ValueTimestamp:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("types: invalid timestamp value %q: %w", s, err)
		}
		*v = Timestamp(t)
	case ValueList:
		var l []Value
		if err := json.Unmarshal(w.Value, &l); err != nil {
			return err
		}
		*v = List(l)
	case ValueMap:
		var m map[string]Value
		if err := json.Unmarshal(w.Value, &m); err != nil {
			return err
		}
		*v = Map(m)
	default:
		return fmt.Errorf("types: unknown value kind %q", kind)
	}
	return nil
}

// Delta is the set of key->value changes a step emits (spec.md GLOSSARY).
type Delta map[string]Value

// CloneData returns a deep-enough copy of data for use as a read-through
// snapshot: callers may read freely without racing the store's own mutation
// of its backing map.
func CloneData(data map[string]Value) map[string]Value {
	out := make(map[string]Value, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
