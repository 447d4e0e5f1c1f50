package bytecode

import (
	"fmt"
	"math"
	"strconv"

	"nilox/intern"
)

// ValueKind tags the variant held by a Value.
type ValueKind byte

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindFunction
)

// Value is Lox's tagged value type: Nil, Bool, Number, an interned String
// id, or a shared Function handle. Values are copyable by tag; strings and
// functions are shared by handle (an interned id, or a pointer) so copies
// never duplicate payload.
type Value struct {
	Kind ValueKind

	boolean  bool
	number   float64
	stringID uint32
	fn       *Function
}

// Nil is the canonical nil value.
var Nil = Value{Kind: KindNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, boolean: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{Kind: KindNumber, number: n} }

// String wraps an already-interned string id.
func String(id uint32) Value { return Value{Kind: KindString, stringID: id} }

// Fn wraps a shared Function handle.
func Fn(fn *Function) Value { return Value{Kind: KindFunction, fn: fn} }

// AsBool returns the boolean payload; only meaningful when Kind == KindBool.
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns the float64 payload; only meaningful when Kind == KindNumber.
func (v Value) AsNumber() float64 { return v.number }

// AsStringID returns the interned string id payload; only meaningful when
// Kind == KindString.
func (v Value) AsStringID() uint32 { return v.stringID }

// AsFunction returns the Function handle; only meaningful when
// Kind == KindFunction.
func (v Value) AsFunction() *Function { return v.fn }

// IsFalsey reports whether v is nil or false: every other value,
// including the number 0 and the empty string, is truthy.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.boolean
	default:
		return false
	}
}

// numberEpsilon is the tolerance used for Number equality. This
// deliberately deviates from IEEE 754 equality (NaN interactions are
// undefined by this comparison) -- see spec.md §9's open question on
// number equality, preserved rather than corrected.
const numberEpsilon = 1e-9

// Equal implements Value's structural equality: mixed variants are never
// equal, numbers compare within numberEpsilon, strings compare by interned
// id, functions compare by handle identity.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber:
		return math.Abs(v.number-other.number) < numberEpsilon
	case KindString:
		return v.stringID == other.stringID
	case KindFunction:
		return v.fn == other.fn
	default:
		return false
	}
}

// Format renders v in Lox's canonical textual form: "nil", "true"/"false",
// a number without redundant trailing zeros, string contents, or
// "<fn NAME>". Resolving a String or Function's name requires the
// interner used to produce it.
func (v Value) Format(interner *intern.Table) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case KindString:
		text, _ := interner.Resolve(v.stringID)
		return text
	case KindFunction:
		if v.fn.Name == "" {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", v.fn.Name)
	default:
		return ""
	}
}
