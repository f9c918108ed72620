package bus

import "strconv"

// VariantKind tags the representation held by a Variant.
type VariantKind int

const (
	VariantNone VariantKind = iota
	VariantInt
	VariantDouble
	VariantString
)

func (k VariantKind) String() string {
	switch k {
	case VariantNone:
		return "none"
	case VariantInt:
		return "int"
	case VariantDouble:
		return "double"
	case VariantString:
		return "string"
	}
	return "VariantKind(" + strconv.Itoa(int(k)) + ")"
}

// Variant holds one value pulled out of a string/variant dictionary.
// The zero value is none.
type Variant struct {
	kind VariantKind
	i    int
	d    float64
	s    string
}

func NoneVariant() Variant             { return Variant{} }
func IntVariant(i int) Variant         { return Variant{kind: VariantInt, i: i} }
func DoubleVariant(d float64) Variant  { return Variant{kind: VariantDouble, d: d} }
func StringVariant(s string) Variant   { return Variant{kind: VariantString, s: s} }
func (v Variant) Kind() VariantKind    { return v.kind }
func (v Variant) IsNone() bool         { return v.kind == VariantNone }
func (v Variant) IsInt() bool          { return v.kind == VariantInt }
func (v Variant) IsDouble() bool       { return v.kind == VariantDouble }
func (v Variant) IsString() bool       { return v.kind == VariantString }
func (v *Variant) SetInt(i int)        { *v = IntVariant(i) }
func (v *Variant) SetDouble(d float64) { *v = DoubleVariant(d) }
func (v *Variant) SetString(s string)  { *v = StringVariant(s) }

// Int returns the integer value. Doubles are truncated toward zero; strings
// and none yield 0.
func (v Variant) Int() int {
	switch v.kind {
	case VariantInt:
		return v.i
	case VariantDouble:
		return int(v.d)
	}
	return 0
}

// Double returns the floating point value. Ints widen exactly; strings and
// none yield 0.
func (v Variant) Double() float64 {
	switch v.kind {
	case VariantInt:
		return float64(v.i)
	case VariantDouble:
		return v.d
	}
	return 0
}

// Str returns the string value, or "" for any other kind.
func (v Variant) Str() string {
	if v.kind == VariantString {
		return v.s
	}
	return ""
}

// VariantVisitor receives the value held by a Variant, one method per kind.
type VariantVisitor interface {
	VisitNone()
	VisitInt(int)
	VisitDouble(float64)
	VisitString(string)
}

// Visit dispatches v to the visitor method matching its kind.
func (v Variant) Visit(visitor VariantVisitor) {
	switch v.kind {
	case VariantInt:
		visitor.VisitInt(v.i)
	case VariantDouble:
		visitor.VisitDouble(v.d)
	case VariantString:
		visitor.VisitString(v.s)
	default:
		visitor.VisitNone()
	}
}

// Interface returns the held value as a plain Go value (nil for none).
func (v Variant) Interface() any {
	switch v.kind {
	case VariantInt:
		return v.i
	case VariantDouble:
		return v.d
	case VariantString:
		return v.s
	}
	return nil
}

// String renders the value for diagnostics.
func (v Variant) String() string {
	switch v.kind {
	case VariantInt:
		return strconv.Itoa(v.i)
	case VariantDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case VariantString:
		return strconv.Quote(v.s)
	}
	return "<none>"
}
