// Package schema declares the JSON shapes the generator must produce and
// converts them into the generator's and JSON Schema's representations.
package schema

// Kind is the JSON type of a Node.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
)

const (
	SuffixEN = "_en"
	SuffixUR = "_ur"
)

// Node describes one value of the output document. Nodes are assembled once
// at package init and must not be modified afterwards.
type Node struct {
	Kind        Kind
	Description string
	Fields      []Field
	Items       *Node
	Enum        []string

	// Default replaces an absent or mistyped value. UrduDefault does the same
	// for the _ur variant of a bilingual field.
	Default     interface{}
	HasDefault  bool
	UrduDefault interface{}

	// Bilingual string or string-array nodes are emitted as name_en/name_ur
	// pairs; the plain name is kept as an alias of the English value.
	Bilingual bool

	Min, Max           *float64
	MinItems, MaxItems *int
}

// Field is a named property of an object node.
type Field struct {
	Name     string
	Node     *Node
	Required bool
}

// Keys returns the document keys used for f: the English and Urdu variants
// plus the alias for bilingual fields, or just the name.
func (f Field) Keys() (en, ur, alias string) {
	if f.Node.Bilingual {
		return f.Name + SuffixEN, f.Name + SuffixUR, f.Name
	}
	return f.Name, "", ""
}

func Object(description string, fields ...Field) *Node {
	return &Node{Kind: KindObject, Description: description, Fields: fields}
}

// Prop declares a required property.
func Prop(name string, n *Node) Field {
	return Field{Name: name, Node: n, Required: true}
}

func Optional(name string, n *Node) Field {
	return Field{Name: name, Node: n}
}

func String(description string) *Node {
	return &Node{Kind: KindString, Description: description}
}

// Text is a bilingual string.
func Text(description string) *Node {
	return &Node{Kind: KindString, Description: description, Bilingual: true}
}

// TextList is a bilingual list of strings.
func TextList(description string) *Node {
	return &Node{Kind: KindArray, Description: description, Items: String(""), Bilingual: true}
}

func Number(description string) *Node {
	return &Node{Kind: KindNumber, Description: description}
}

func Integer(description string) *Node {
	return &Node{Kind: KindInteger, Description: description}
}

func Boolean(description string) *Node {
	return &Node{Kind: KindBoolean, Description: description}
}

// Enum is a string restricted to values. Without an explicit default the
// first value is used.
func Enum(description string, values ...string) *Node {
	return &Node{Kind: KindEnum, Description: description, Enum: values}
}

func Array(description string, items *Node) *Node {
	return &Node{Kind: KindArray, Description: description, Items: items}
}

func (n *Node) WithDefault(v interface{}) *Node {
	n.Default = v
	n.HasDefault = true
	return n
}

func (n *Node) WithUrduDefault(v interface{}) *Node {
	n.UrduDefault = v
	return n
}

func (n *Node) WithRange(min, max float64) *Node {
	n.Min, n.Max = &min, &max
	return n
}

func (n *Node) WithLength(min, max int) *Node {
	n.MinItems, n.MaxItems = &min, &max
	return n
}

// Field looks up a property of an object node by name.
func (n *Node) Field(name string) (Field, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ZeroValue is the default used when neither the model nor Default supplies
// a value. Objects are filled by the normalizer, not here.
func (n *Node) ZeroValue() interface{} {
	if n.HasDefault {
		return n.Default
	}
	switch n.Kind {
	case KindString:
		return ""
	case KindEnum:
		if len(n.Enum) > 0 {
			return n.Enum[0]
		}
		return ""
	case KindNumber, KindInteger:
		if n.Min != nil && *n.Min > 0 {
			return *n.Min
		}
		return float64(0)
	case KindBoolean:
		return false
	case KindArray:
		return []interface{}{}
	case KindObject:
		return map[string]interface{}{}
	default:
		return nil
	}
}

// HasEnumValue reports whether v is one of the declared values.
func (n *Node) HasEnumValue(v string) bool {
	for _, e := range n.Enum {
		if e == v {
			return true
		}
	}
	return false
}
