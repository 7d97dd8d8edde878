package ast

import "fmt"

// TypeKind discriminates the tagged TypeInfo union (spec.md §3).
type TypeKind int

const (
	TypeUnknown TypeKind = iota
	TypeVoid
	TypeByte
	TypeWord
	TypeBool
	TypeString
	TypeArray
	TypeFunction
	TypeEnum
)

func (k TypeKind) String() string {
	switch k {
	case TypeUnknown:
		return "unknown"
	case TypeVoid:
		return "void"
	case TypeByte:
		return "byte"
	case TypeWord:
		return "word"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeFunction:
		return "function"
	case TypeEnum:
		return "enum"
	default:
		return "?"
	}
}

// TypeInfo is the tagged type descriptor every expression and declaration is
// annotated with by the type checker (C6). Implementations must be
// comparable by value for the primitive kinds; Array/Function/Enum carry
// structural data compared via Identical.
type TypeInfo interface {
	// Kind returns the tag of this type.
	Kind() TypeKind
	// Size returns the size in bytes this type occupies in a frame slot or
	// global allocation.
	Size() int
	// Identical reports whether other denotes exactly the same type (same
	// kind and structural attributes). See spec.md §4.2.
	Identical(other TypeInfo) bool
	String() string
}

// ---------------------------------------------------------------------------
// Primitive types. These are singletons: the canonical table exposed by the
// Type System component (spec.md §4.2) hands these same instances out so
// identity comparison is cheap, though Identical is still the correct way to
// compare since callers may construct equivalent values independently.
// ---------------------------------------------------------------------------

type primitiveType struct {
	kind TypeKind
	size int
}

func (p primitiveType) Kind() TypeKind { return p.kind }
func (p primitiveType) Size() int      { return p.size }

func (p primitiveType) Identical(other TypeInfo) bool {
	return other != nil && other.Kind() == p.kind
}

func (p primitiveType) String() string { return p.kind.String() }

var (
	// Unknown is assigned to expressions the checker could not resolve,
	// e.g. after a prior error, so downstream checks can proceed without
	// cascading spurious diagnostics.
	Unknown TypeInfo = primitiveType{TypeUnknown, 0}
	Void    TypeInfo = primitiveType{TypeVoid, 0}
	Byte    TypeInfo = primitiveType{TypeByte, 1}
	Word    TypeInfo = primitiveType{TypeWord, 2}
	Bool    TypeInfo = primitiveType{TypeBool, 1}
	// String is a pointer-sized reference into a read-only string table; it
	// occupies one word of frame storage (an address), same as a pointer.
	String TypeInfo = primitiveType{TypeString, 2}
)

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// ArrayType represents array<T> (dynamic length, Length == nil) or
// array<T, N> (fixed length).
type ArrayType struct {
	Element TypeInfo
	Length  *int // nil denotes a dynamic-length array.
}

// NewFixedArrayType constructs array<element, length>.
func NewFixedArrayType(element TypeInfo, length int) *ArrayType {
	l := length
	return &ArrayType{Element: element, Length: &l}
}

// NewDynamicArrayType constructs array<element> with unspecified length.
func NewDynamicArrayType(element TypeInfo) *ArrayType {
	return &ArrayType{Element: element, Length: nil}
}

// Kind implements TypeInfo.
func (a *ArrayType) Kind() TypeKind { return TypeArray }

// Size implements TypeInfo. A dynamic-length array has no statically known
// size; callers must check IsDynamic first.
func (a *ArrayType) Size() int {
	if a.Length == nil {
		return 0
	}
	return *a.Length * a.Element.Size()
}

// IsDynamic reports whether this array has no fixed length.
func (a *ArrayType) IsDynamic() bool { return a.Length == nil }

// Identical implements TypeInfo: identical iff element type is identical and
// both have the same fixed length (spec.md §4.2).
func (a *ArrayType) Identical(other TypeInfo) bool {
	o, ok := other.(*ArrayType)
	if !ok || !a.Element.Identical(o.Element) {
		return false
	}
	if a.Length == nil || o.Length == nil {
		return a.Length == nil && o.Length == nil
	}
	return *a.Length == *o.Length
}

func (a *ArrayType) String() string {
	if a.Length == nil {
		return fmt.Sprintf("array<%s>", a.Element)
	}
	return fmt.Sprintf("array<%s, %d>", a.Element, *a.Length)
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// FunctionType describes a callable's signature.
type FunctionType struct {
	ParameterTypes []TypeInfo
	ParameterNames []string // optional; len 0 if not tracked.
	ReturnType     TypeInfo
}

// Kind implements TypeInfo.
func (f *FunctionType) Kind() TypeKind { return TypeFunction }

// Size implements TypeInfo. Functions have no frame storage of their own;
// calls lower to direct jumps to a fixed label.
func (f *FunctionType) Size() int { return 0 }

// Identical implements TypeInfo: identical iff parameter-type sequence and
// return type are identical (spec.md §4.2).
func (f *FunctionType) Identical(other TypeInfo) bool {
	o, ok := other.(*FunctionType)
	if !ok || len(f.ParameterTypes) != len(o.ParameterTypes) || !f.ReturnType.Identical(o.ReturnType) {
		return false
	}
	for i, p := range f.ParameterTypes {
		if !p.Identical(o.ParameterTypes[i]) {
			return false
		}
	}
	return true
}

func (f *FunctionType) String() string {
	return fmt.Sprintf("function(%d params) %s", len(f.ParameterTypes), f.ReturnType)
}

// ---------------------------------------------------------------------------
// Enum
// ---------------------------------------------------------------------------

// EnumType describes a named set of byte-valued constant members.
type EnumType struct {
	Name    string
	Members map[string]int
	// Order preserves declaration order for deterministic iteration (e.g.
	// source-map output, diagnostics).
	Order []string
}

// Kind implements TypeInfo.
func (e *EnumType) Kind() TypeKind { return TypeEnum }

// Size implements TypeInfo: enum members fit in a byte (spec.md §4.6).
func (e *EnumType) Size() int { return 1 }

// Identical implements TypeInfo: two enum types are identical iff they are
// the same declared type (compared by name, since Blend65 has no
// structural enum aliasing).
func (e *EnumType) Identical(other TypeInfo) bool {
	o, ok := other.(*EnumType)
	return ok && o.Name == e.Name
}

func (e *EnumType) String() string { return fmt.Sprintf("enum %s", e.Name) }

// ---------------------------------------------------------------------------
// Compatibility relation (spec.md §4.2)
// ---------------------------------------------------------------------------

// Compatibility classifies the relationship between a value of type `from`
// being used where a value of type `to` is expected.
type Compatibility int

const (
	// Identical means from and to denote exactly the same type.
	Identical Compatibility = iota
	// Compatible means from can be assigned to to without an explicit
	// conversion (e.g. Byte widening to Word).
	Compatible
	// RequiresConversion means an explicit conversion is needed (e.g. Word
	// narrowing to Byte).
	RequiresConversion
	// Incompatible means no assignment or implicit conversion exists.
	Incompatible
)

func (c Compatibility) String() string {
	switch c {
	case Identical:
		return "Identical"
	case Compatible:
		return "Compatible"
	case RequiresConversion:
		return "RequiresConversion"
	default:
		return "Incompatible"
	}
}

// CheckCompatibility implements the exhaustive compatibility table from
// spec.md §4.2.
func CheckCompatibility(from, to TypeInfo) Compatibility {
	if from == nil || to == nil {
		return Incompatible
	}
	if from.Identical(to) {
		return Identical
	}

	switch f := from.(type) {
	case primitiveType:
		t, ok := to.(primitiveType)
		if !ok {
			return Incompatible
		}
		switch {
		case f.kind == TypeByte && t.kind == TypeWord:
			// Widening is always safe.
			return Compatible
		case f.kind == TypeWord && t.kind == TypeByte:
			// Narrowing requires an explicit cast.
			return RequiresConversion
		case f.kind == TypeBool || t.kind == TypeBool:
			// Bool is isolated: integers are not truthy.
			return Incompatible
		default:
			return Incompatible
		}
	case *ArrayType:
		t, ok := to.(*ArrayType)
		if !ok || !f.Element.Identical(t.Element) {
			return Incompatible
		}
		switch {
		case f.Length != nil && t.Length != nil && *f.Length != *t.Length:
			// Mismatched fixed lengths are incompatible, never convertible.
			return Incompatible
		case f.Length != nil && t.Length == nil:
			// A fixed-length array is compatible with a dynamic array of the
			// same element type, never the reverse.
			return Compatible
		default:
			return Incompatible
		}
	case *FunctionType:
		return Incompatible
	case *EnumType:
		return Incompatible
	default:
		return Incompatible
	}
}

// IsNumeric reports whether t is Byte or Word.
func IsNumeric(t TypeInfo) bool {
	return t != nil && (t.Kind() == TypeByte || t.Kind() == TypeWord)
}

// WidestNumeric returns the larger of two numeric types per the "Numeric
// mixing rule" in spec.md §4.2: when two numeric operands differ, the
// result is the larger (Word).
func WidestNumeric(a, b TypeInfo) TypeInfo {
	if a.Kind() == TypeWord || b.Kind() == TypeWord {
		return Word
	}
	return Byte
}
