package bus

import (
	"github.com/sirupsen/logrus"
)

// State describes where a Message cursor stands.
type State int

const (
	Readable State = iota
	Exhausted
	Mismatched
)

func (s State) String() string {
	switch s {
	case Readable:
		return "readable"
	case Exhausted:
		return "exhausted"
	case Mismatched:
		return "mismatched"
	}
	return "unknown"
}

// Message is a read cursor over the arguments of one bus message, or over
// the inner arguments of one container.
//
// Reads never fail loudly: a read past the end or of the wrong kind returns
// the documented sentinel and leaves the cursor in place. All read methods
// are safe on a nil *Message, which behaves as an exhausted cursor.
type Message struct {
	args       []Arg
	pos        int
	mismatched bool
	log        logrus.FieldLogger
}

// NewMessage returns a cursor positioned at the first of args.
func NewMessage(args ...Arg) *Message {
	return newMessage(args, nil)
}

func newMessage(args []Arg, log logrus.FieldLogger) *Message {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Message{args: args, log: log}
}

// State reports whether the next read can yield a value.
func (m *Message) State() State {
	switch {
	case m == nil:
		return Exhausted
	case m.mismatched:
		return Mismatched
	case m.pos >= len(m.args):
		return Exhausted
	}
	return Readable
}

// Kind peeks the wire kind at the cursor, KindInvalid when exhausted.
func (m *Message) Kind() Kind {
	if m == nil || m.pos >= len(m.args) {
		return KindInvalid
	}
	return m.args[m.pos].Kind
}

// Remaining returns the number of arguments not yet consumed.
func (m *Message) Remaining() int {
	if m == nil {
		return 0
	}
	return len(m.args) - m.pos
}

// Args returns the unread arguments without consuming them.
func (m *Message) Args() []Arg {
	if m == nil {
		return nil
	}
	return m.args[m.pos:]
}

// take consumes the argument at the cursor when its kind is accepted.
func (m *Message) take(accept ...Kind) (Arg, bool) {
	if m == nil || m.pos >= len(m.args) {
		return Arg{}, false
	}
	a := m.args[m.pos]
	for _, k := range accept {
		if a.Kind == k {
			m.pos++
			m.mismatched = false
			return a, true
		}
	}
	m.mismatched = true
	return a, false
}

// ReadDouble returns the double at the cursor, or -1 otherwise.
func (m *Message) ReadDouble() float64 {
	a, ok := m.take(KindDouble)
	if !ok {
		return -1.0
	}
	d, _ := a.Value.(float64)
	return d
}

// ReadString accepts string and object path arguments; "" otherwise.
func (m *Message) ReadString() string {
	a, ok := m.take(KindString, KindObjectPath)
	if !ok {
		return ""
	}
	return stringValue(a.Value)
}

// ReadBoolean returns the boolean at the cursor, or false otherwise.
func (m *Message) ReadBoolean() bool {
	a, ok := m.take(KindBoolean)
	if !ok {
		return false
	}
	b, _ := a.Value.(bool)
	return b
}

// ReadInt widens byte, int16, uint16, int32 and uint32 arguments into a
// signed 32-bit integer. A uint32 above 2^31-1 wraps to a negative value.
// Any other kind, or exhaustion, yields -1.
func (m *Message) ReadInt() int {
	a, ok := m.take(KindByte, KindInt16, KindUint16, KindInt32, KindUint32)
	if !ok {
		if a.Kind != KindInvalid {
			m.log.WithField("type", a.Kind.String()).Warn("bus: failed to read int")
		}
		return -1
	}
	i, ok := intValue(a.Value)
	if !ok {
		return -1
	}
	return i
}

// ReadArray returns a cursor over the array at the cursor, or nil.
func (m *Message) ReadArray() *Message {
	return m.recurse(KindArray)
}

// ReadStruct returns a cursor over the struct at the cursor, or nil.
func (m *Message) ReadStruct() *Message {
	return m.recurse(KindStruct)
}

// ReadDict returns a cursor over the dict entry at the cursor, or nil.
func (m *Message) ReadDict() *Message {
	return m.recurse(KindDictEntry)
}

// recurse hands out an independent child cursor. The parent moves past the
// whole container whether or not the child is ever read.
func (m *Message) recurse(kind Kind) *Message {
	a, ok := m.take(kind)
	if !ok {
		return nil
	}
	return newMessage(a.Elems, m.log)
}

// ReadStringVariantDictionary decodes an a{sv} shaped array into a map.
// Value slots holding a string, object path or signature become string
// variants; 16/32-bit integers and booleans become int variants; doubles
// become double variants. Entries of other kinds are skipped. A later entry
// overwrites an earlier one with the same key. When the cursor is not at an
// array the map is empty and the cursor does not move.
func (m *Message) ReadStringVariantDictionary() map[string]Variant {
	ret := make(map[string]Variant)
	a, ok := m.take(KindArray)
	if !ok {
		return ret
	}
	for _, entry := range a.Elems {
		if entry.Kind != KindDictEntry {
			break
		}
		if len(entry.Elems) != 2 {
			continue
		}
		key := stringValue(entry.Elems[0].Value)
		slot := entry.Elems[1]
		if slot.Kind == KindVariant && len(slot.Elems) == 1 {
			slot = slot.Elems[0]
		}
		v, ok := variantOf(slot)
		if !ok {
			m.log.WithFields(logrus.Fields{"key": key, "type": slot.Kind.String()}).
				Warn("bus: unknown dict variant type")
			continue
		}
		ret[key] = v
	}
	return ret
}

func variantOf(a Arg) (Variant, bool) {
	switch a.Kind {
	case KindString, KindObjectPath, KindSignature:
		return StringVariant(stringValue(a.Value)), true
	case KindInt16, KindUint16, KindInt32, KindUint32:
		i, ok := intValue(a.Value)
		return IntVariant(i), ok
	case KindDouble:
		d, ok := a.Value.(float64)
		return DoubleVariant(d), ok
	case KindBoolean:
		b, ok := a.Value.(bool)
		if b {
			return IntVariant(1), ok
		}
		return IntVariant(0), ok
	}
	return Variant{}, false
}

func intValue(v any) (int, bool) {
	switch x := v.(type) {
	case byte:
		return int(x), true
	case int16:
		return int(x), true
	case uint16:
		return int(x), true
	case int32:
		return int(x), true
	case uint32:
		return int(int32(x)), true
	}
	return 0, false
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case interface{ String() string }:
		return x.String()
	}
	return ""
}
