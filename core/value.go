package core

import (
	"fmt"
	"strconv"
)

// ValueKind is the SQL type of a materialized column.
type ValueKind int

const (
	// KindNull marks an absent value.
	KindNull ValueKind = iota
	// KindBool is a boolean column.
	KindBool
	// KindInt is an integer column.
	KindInt
	// KindText is a text column.
	KindText
)

// Value is a nullable scalar. The zero Value is NULL.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	s    string
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind returns the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsText returns the text payload.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// Equal compares two values with IS NOT DISTINCT FROM semantics:
// NULL equals NULL, and NULL never equals a non-NULL value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	default:
		return v.s == o.s
	}
}

// SQL returns the value as a database/sql argument.
func (v Value) SQL() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindText:
		return v.s
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindText:
		return strconv.Quote(v.s)
	}
	return "NULL"
}

// ColumnSpec describes one materialized column.
type ColumnSpec struct {
	Name string
	Kind ValueKind
}

// Materialized column names.
const (
	ColSupportsWindows  = "mat_supports_windows"
	ColSupportsMac      = "mat_supports_mac"
	ColSupportsLinux    = "mat_supports_linux"
	ColInitialPrice     = "mat_initial_price"
	ColFinalPrice       = "mat_final_price"
	ColDiscountPercent  = "mat_discount_percent"
	ColCurrency         = "mat_currency"
	ColAchievementCount = "mat_achievement_count"
	ColPCOSMin          = "mat_pc_os_min"
	ColPCProcessorMin   = "mat_pc_processor_min"
	ColPCMemoryMin      = "mat_pc_memory_min"
	ColPCGraphicsMin    = "mat_pc_graphics_min"
	ColPCOSRec          = "mat_pc_os_rec"
	ColPCProcessorRec   = "mat_pc_processor_rec"
	ColPCMemoryRec      = "mat_pc_memory_rec"
	ColPCGraphicsRec    = "mat_pc_graphics_rec"
)

// MaterializedColumns lists every materialized column in schema order.
var MaterializedColumns = []ColumnSpec{
	{ColSupportsWindows, KindBool},
	{ColSupportsMac, KindBool},
	{ColSupportsLinux, KindBool},
	{ColInitialPrice, KindInt},
	{ColFinalPrice, KindInt},
	{ColDiscountPercent, KindInt},
	{ColCurrency, KindText},
	{ColAchievementCount, KindInt},
	{ColPCOSMin, KindText},
	{ColPCProcessorMin, KindText},
	{ColPCMemoryMin, KindText},
	{ColPCGraphicsMin, KindText},
	{ColPCOSRec, KindText},
	{ColPCProcessorRec, KindText},
	{ColPCMemoryRec, KindText},
	{ColPCGraphicsRec, KindText},
}

// PriceColumns are the columns a free application must leave NULL.
var PriceColumns = []string{ColInitialPrice, ColFinalPrice, ColDiscountPercent, ColCurrency}

// ColumnKind returns the declared kind of a materialized column.
func ColumnKind(name string) (ValueKind, error) {
	for _, c := range MaterializedColumns {
		if c.Name == name {
			return c.Kind, nil
		}
	}
	return KindNull, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
}
