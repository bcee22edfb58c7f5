// Package model defines the data structures used throughout the application.
package model

import "time"

// Kind identifies which column of a property row carries its value.
type Kind string

const (
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
)

// Value is a typed property value. Exactly one of Str, Bool or Int is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Bool bool
	Int  int64
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }

// Equal reports whether v and o have the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	}
	return false
}

// Properties holds a node's named values.
type Properties map[string]Value

// Node is one record of the hierarchical store, addressed by Path
// (e.g. "/userPreferences/alice").
//
// Owner is the account with exclusive control over the node's subtree.
// It is empty for records only server-side flows may touch.
type Node struct {
	ID         string
	Path       string
	Owner      string
	CreatedBy  string
	CreatedAt  time.Time
	Properties Properties
}

// StringProp returns the named string property and whether it was present.
func (n *Node) StringProp(name string) (string, bool) {
	v, ok := n.Properties[name]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// BoolProp returns the named boolean property, false when absent.
func (n *Node) BoolProp(name string) bool {
	v, ok := n.Properties[name]
	return ok && v.Kind == KindBool && v.Bool
}

// IntProp returns the named integer property and whether it was present.
func (n *Node) IntProp(name string) (int64, bool) {
	v, ok := n.Properties[name]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}
