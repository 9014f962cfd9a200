package vm

import "github.com/jclassvm/jclassvm/pkg/jerr"

// Kind tags a Value's native-width cell (SPEC_FULL.md §3.1).
type Kind int

const (
	KindByte Kind = iota
	KindShort
	KindInt
	KindLong
	KindChar
	KindFloat
	KindDouble
	KindReturnAddress
	// KindVoid is a dedicated case distinct from any numeric zero, resolving
	// the Void/Integer(0) conflation the source carried.
	KindVoid
	// KindRef is an opaque reference: ldc'd String/Class/MethodHandle/
	// MethodType/Dynamic constants, String ConstantValues, and the nil of
	// aconst_null and of object/array static fields; there is no object heap.
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindChar:
		return "char"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindReturnAddress:
		return "returnAddress"
	case KindVoid:
		return "void"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Value is the tagged union manipulated by the operand stack, locals, and
// StaticData. Exactly one of the numeric fields is meaningful, selected by
// Kind.
type Value struct {
	Kind Kind

	Int    int32 // Byte, Short, Int, Char, ReturnAddress
	Long   int64
	Float  float32
	Double float64
	Ref    interface{} // opaque payload for KindRef (e.g. resolved string text)
}

func ByteValue(v int32) Value   { return Value{Kind: KindByte, Int: v} }
func ShortValue(v int32) Value  { return Value{Kind: KindShort, Int: v} }
func IntValue(v int32) Value    { return Value{Kind: KindInt, Int: v} }
func CharValue(v int32) Value   { return Value{Kind: KindChar, Int: v} }
func LongValue(v int64) Value   { return Value{Kind: KindLong, Long: v} }
func FloatValue(v float32) Value { return Value{Kind: KindFloat, Float: v} }
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, Double: v} }
func VoidValue() Value          { return Value{Kind: KindVoid} }
func RefValue(v interface{}) Value { return Value{Kind: KindRef, Ref: v} }
func ReturnAddressValue(pc int32) Value {
	return Value{Kind: KindReturnAddress, Int: pc}
}

// asInt requires Kind to be one of the int-shaped kinds and returns its
// 32-bit payload, or WrongValueKind.
func (v Value) asInt() (int32, error) {
	switch v.Kind {
	case KindByte, KindShort, KindInt, KindChar:
		return v.Int, nil
	default:
		return 0, jerr.New(jerr.WrongValueKind, "expected an int-shaped value, got %s", v.Kind)
	}
}

func (v Value) asLong() (int64, error) {
	if v.Kind != KindLong {
		return 0, jerr.New(jerr.WrongValueKind, "expected long, got %s", v.Kind)
	}
	return v.Long, nil
}

func (v Value) asFloat() (float32, error) {
	if v.Kind != KindFloat {
		return 0, jerr.New(jerr.WrongValueKind, "expected float, got %s", v.Kind)
	}
	return v.Float, nil
}

func (v Value) asDouble() (float64, error) {
	if v.Kind != KindDouble {
		return 0, jerr.New(jerr.WrongValueKind, "expected double, got %s", v.Kind)
	}
	return v.Double, nil
}

// IsWide reports whether this value occupies two local-variable slots.
func (v Value) IsWide() bool {
	return v.Kind == KindLong || v.Kind == KindDouble
}
