// Package collapsekey models the typed collapse-field value of a
// document. The key is a tagged union of bytes and int64 payloads; two
// keys are equal only when both tag and payload match.
package collapsekey

import "strconv"

// Kind tags the typed payload of a collapse key.
type Kind uint8

// Key kinds. None marks a document without a collapse value; such
// documents form their own singleton group and are never merged.
const (
	None Kind = iota
	Bytes
	Int64
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Bytes:
		return "bytes"
	case Int64:
		return "int64"
	default:
		return "none"
	}
}

// Key is the collapse-field value of one document. The zero value is
// the absent key.
type Key struct {
	kind Kind
	str  string
	num  int64
}

// FromBytes creates a bytes-tagged key. The payload is copied.
func FromBytes(b []byte) Key {
	return Key{kind: Bytes, str: string(b)}
}

// FromString creates a bytes-tagged key from a string payload.
func FromString(s string) Key {
	return Key{kind: Bytes, str: s}
}

// FromInt64 creates an int64-tagged key.
func FromInt64(v int64) Key {
	return Key{kind: Int64, num: v}
}

// Absent creates a key for a document with no collapse value.
func Absent() Key { return Key{} }

// Kind returns the key tag.
func (k Key) Kind() Kind { return k.kind }

// IsAbsent reports whether the document has no collapse value.
func (k Key) IsAbsent() bool { return k.kind == None }

// Bytes returns the bytes payload. Only meaningful for Bytes keys.
func (k Key) Bytes() []byte { return []byte(k.str) }

// Str returns the bytes payload as a string.
func (k Key) Str() string { return k.str }

// Int64 returns the int64 payload. Only meaningful for Int64 keys.
func (k Key) Int64() int64 { return k.num }

// String renders the payload for metadata and error messages.
func (k Key) String() string {
	switch k.kind {
	case Bytes:
		return k.str
	case Int64:
		return strconv.FormatInt(k.num, 10)
	default:
		return "<absent>"
	}
}
