package bus

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/godbus/dbus/v5"
)

// Kind is a wire type code as it appears in a D-Bus signature.
type Kind byte

const (
	KindInvalid    Kind = 0
	KindByte       Kind = 'y'
	KindBoolean    Kind = 'b'
	KindInt16      Kind = 'n'
	KindUint16     Kind = 'q'
	KindInt32      Kind = 'i'
	KindUint32     Kind = 'u'
	KindInt64      Kind = 'x'
	KindUint64     Kind = 't'
	KindDouble     Kind = 'd'
	KindString     Kind = 's'
	KindObjectPath Kind = 'o'
	KindSignature  Kind = 'g'
	KindUnixFD     Kind = 'h'
	KindArray      Kind = 'a'
	KindStruct     Kind = 'r'
	KindDictEntry  Kind = 'e'
	KindVariant    Kind = 'v'
)

func (k Kind) String() string {
	if k == KindInvalid {
		return "invalid"
	}
	return string(rune(k))
}

// IsContainer reports whether arguments of this kind carry inner arguments.
func (k Kind) IsContainer() bool {
	switch k {
	case KindArray, KindStruct, KindDictEntry, KindVariant:
		return true
	}
	return false
}

// Arg is one self-typed wire argument. Scalar kinds carry Value; container
// kinds carry their inner arguments in Elems. A dict entry always has two
// elems (key, value) and a variant exactly one.
type Arg struct {
	Kind  Kind
	Value any
	Elems []Arg
}

// Scalar constructors, mostly useful for fakes.

func Bool(v bool) Arg          { return Arg{Kind: KindBoolean, Value: v} }
func Byte(v byte) Arg          { return Arg{Kind: KindByte, Value: v} }
func Int16(v int16) Arg        { return Arg{Kind: KindInt16, Value: v} }
func Uint16(v uint16) Arg      { return Arg{Kind: KindUint16, Value: v} }
func Int32(v int32) Arg        { return Arg{Kind: KindInt32, Value: v} }
func Uint32(v uint32) Arg      { return Arg{Kind: KindUint32, Value: v} }
func Double(v float64) Arg     { return Arg{Kind: KindDouble, Value: v} }
func String(v string) Arg      { return Arg{Kind: KindString, Value: v} }
func ObjectPath(v string) Arg  { return Arg{Kind: KindObjectPath, Value: v} }
func Signature(v string) Arg   { return Arg{Kind: KindSignature, Value: v} }
func Array(elems ...Arg) Arg   { return Arg{Kind: KindArray, Elems: elems} }
func Struct(fields ...Arg) Arg { return Arg{Kind: KindStruct, Elems: fields} }
func Wrap(inner Arg) Arg       { return Arg{Kind: KindVariant, Elems: []Arg{inner}} }

// DictEntry builds a dict entry from a key and its value slot.
func DictEntry(key, value Arg) Arg {
	return Arg{Kind: KindDictEntry, Elems: []Arg{key, value}}
}

// ArgsOf converts a body decoded by the transport library into wire arguments.
func ArgsOf(body []any) []Arg {
	out := make([]Arg, 0, len(body))
	for _, v := range body {
		out = append(out, argOf(v))
	}
	return out
}

// argOf recovers the wire kind of a godbus value. godbus decodes structs as
// []interface{} and every other array as a typed slice, so the two never
// collide.
func argOf(v any) Arg {
	switch x := v.(type) {
	case Arg:
		return x
	case bool:
		return Bool(x)
	case byte:
		return Byte(x)
	case int16:
		return Int16(x)
	case uint16:
		return Uint16(x)
	case int32:
		return Int32(x)
	case uint32:
		return Uint32(x)
	case int64:
		return Arg{Kind: KindInt64, Value: x}
	case uint64:
		return Arg{Kind: KindUint64, Value: x}
	case float64:
		return Double(x)
	case string:
		return String(x)
	case dbus.ObjectPath:
		return ObjectPath(string(x))
	case dbus.Signature:
		return Signature(x.String())
	case dbus.UnixFDIndex:
		return Arg{Kind: KindUnixFD, Value: uint32(x)}
	case dbus.UnixFD:
		return Arg{Kind: KindUnixFD, Value: uint32(x)}
	case dbus.Variant:
		return Wrap(argOf(x.Value()))
	case []any:
		fields := make([]Arg, 0, len(x))
		for _, f := range x {
			fields = append(fields, argOf(f))
		}
		return Struct(fields...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]Arg, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems = append(elems, argOf(rv.Index(i).Interface()))
		}
		return Array(elems...)
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		elems := make([]Arg, 0, len(keys))
		for _, k := range keys {
			elems = append(elems, DictEntry(argOf(k.Interface()), argOf(rv.MapIndex(k).Interface())))
		}
		return Array(elems...)
	case reflect.Ptr:
		if !rv.IsNil() {
			return argOf(rv.Elem().Interface())
		}
	}
	return Arg{Kind: KindInvalid, Value: v}
}
