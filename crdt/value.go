package crdt

import "fmt"

// Constants

// Value kinds of the closed register value family.
const (
	ValueString ValueKind = iota + 1
	ValueBool
)

// Structs

// ValueKind tags which member of the value family a
// Value carries.
type ValueKind uint8

// Value is the tagged scalar stored inside a multi-value
// register. The family is closed on purpose: the merge
// algebra only ever needs to move values around, never
// interpret them, so an open interface type would buy
// nothing but runtime surprises on the wire.
type Value struct {
	Kind ValueKind `msgpack:"k"`
	Str  string    `msgpack:"s"`
	Bool bool      `msgpack:"b"`
}

// Functions

// String wraps a string into a register value.
func String(s string) Value {
	return Value{Kind: ValueString, Str: s}
}

// Bool wraps a bool into a register value.
func Bool(b bool) Value {
	return Value{Kind: ValueBool, Bool: b}
}

// Render returns a human-readable form of the value.
func (v Value) Render() string {

	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return fmt.Sprintf("<unknown kind %d>", v.Kind)
	}
}
