package tree

import "fmt"

// valueType tags the property scalar union: string, integer, boolean, 128-bit UUID, or
// raw-byte blob.
type valueType int

const (
	typeString valueType = iota
	typeInt
	typeBool
	typeUUID
	typeBytes
)

// Value is a tagged union over the property scalar set. It is intentionally small and
// copyable; Node stores Values by value, not by pointer.
type Value struct {
	typ   valueType
	str   string
	num   int64
	boo   bool
	bytes []byte
}

// String wraps a UTF-8 string property.
func String(s string) Value { return Value{typ: typeString, str: s} }

// Int wraps an integer property (rssi, last_seen, handles, max_pdu_size, ...).
func Int(i int64) Value { return Value{typ: typeInt, num: i} }

// Bool wraps a boolean property (is_connected, should_start, ...).
func Bool(b bool) Value { return Value{typ: typeBool, boo: b} }

// UUID wraps a 128-bit UUID property, stored canonically (see uuid.go Canonical).
func UUID(s string) Value { return Value{typ: typeUUID, str: Canonical(s)} }

// Bytes wraps a raw byte-blob property (characteristic values).
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{typ: typeBytes, bytes: cp}
}

// IsZero reports whether v is the zero Value (as returned when a property is absent).
func (v Value) IsZero() bool {
	return v.typ == typeString && v.str == "" && v.num == 0 && !v.boo && v.bytes == nil
}

// AsString returns the string form of v regardless of its underlying type, which is
// convenient for logging and display; AsStringOK is the typed accessor.
func (v Value) AsString() string {
	switch v.typ {
	case typeString, typeUUID:
		return v.str
	case typeInt:
		return fmt.Sprintf("%d", v.num)
	case typeBool:
		return fmt.Sprintf("%t", v.boo)
	case typeBytes:
		return fmt.Sprintf("% x", v.bytes)
	default:
		return ""
	}
}

// AsStringOK returns the typed string value and whether v actually holds one.
func (v Value) AsStringOK() (string, bool) {
	if v.typ != typeString {
		return "", false
	}
	return v.str, true
}

// AsIntOK returns the typed integer value and whether v actually holds one.
func (v Value) AsIntOK() (int64, bool) {
	if v.typ != typeInt {
		return 0, false
	}
	return v.num, true
}

// AsBoolOK returns the typed boolean value and whether v actually holds one.
func (v Value) AsBoolOK() (bool, bool) {
	if v.typ != typeBool {
		return false, false
	}
	return v.boo, true
}

// AsUUIDOK returns the typed, canonical UUID string and whether v actually holds one.
func (v Value) AsUUIDOK() (string, bool) {
	if v.typ != typeUUID {
		return "", false
	}
	return v.str, true
}

// AsBytesOK returns the typed byte blob and whether v actually holds one. The returned
// slice is a defensive copy; callers may keep it.
func (v Value) AsBytesOK() ([]byte, bool) {
	if v.typ != typeBytes {
		return nil, false
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp, true
}
