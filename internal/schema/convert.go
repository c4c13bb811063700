package schema

import (
	"google.golang.org/genai"
)

// ToGenai converts n into the structured-output schema of the genai SDK.
// Bilingual fields become required name_en/name_ur string (or string array)
// properties; the alias is not requested from the model.
func ToGenai(n *Node) *genai.Schema {
	s := &genai.Schema{Description: n.Description}

	switch n.Kind {
	case KindObject:
		s.Type = genai.TypeObject
		s.Properties = make(map[string]*genai.Schema, len(n.Fields))
		for _, f := range n.Fields {
			if f.Node.Bilingual {
				en, ur, _ := f.Keys()
				s.Properties[en] = ToGenai(monolingual(f.Node, "English"))
				s.Properties[ur] = ToGenai(monolingual(f.Node, "Urdu in native Nastaliq script"))
				s.PropertyOrdering = append(s.PropertyOrdering, en, ur)
				if f.Required {
					s.Required = append(s.Required, en, ur)
				}
				continue
			}
			s.Properties[f.Name] = ToGenai(f.Node)
			s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
			if f.Required {
				s.Required = append(s.Required, f.Name)
			}
		}
	case KindArray:
		s.Type = genai.TypeArray
		if n.Items != nil {
			s.Items = ToGenai(n.Items)
		}
		if n.MinItems != nil {
			s.MinItems = genai.Ptr(int64(*n.MinItems))
		}
		if n.MaxItems != nil {
			s.MaxItems = genai.Ptr(int64(*n.MaxItems))
		}
	case KindString:
		s.Type = genai.TypeString
	case KindEnum:
		s.Type = genai.TypeString
		s.Format = "enum"
		s.Enum = append([]string(nil), n.Enum...)
	case KindNumber:
		s.Type = genai.TypeNumber
		s.Minimum, s.Maximum = n.Min, n.Max
	case KindInteger:
		s.Type = genai.TypeInteger
		s.Minimum, s.Maximum = n.Min, n.Max
	case KindBoolean:
		s.Type = genai.TypeBoolean
	}
	return s
}

// ToJSONSchema converts n into a draft-07 JSON Schema document describing the
// normalized output, aliases included.
func ToJSONSchema(n *Node) map[string]interface{} {
	doc := jsonSchema(n)
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"
	return doc
}

func jsonSchema(n *Node) map[string]interface{} {
	s := map[string]interface{}{}
	if n.Description != "" {
		s["description"] = n.Description
	}

	switch n.Kind {
	case KindObject:
		props := map[string]interface{}{}
		var required []interface{}
		for _, f := range n.Fields {
			if f.Node.Bilingual {
				en, ur, alias := f.Keys()
				props[en] = jsonSchema(monolingual(f.Node, "English"))
				props[ur] = jsonSchema(monolingual(f.Node, "Urdu"))
				props[alias] = jsonSchema(monolingual(f.Node, "alias of "+en))
				if f.Required {
					required = append(required, en, ur)
				}
				continue
			}
			props[f.Name] = jsonSchema(f.Node)
			if f.Required {
				required = append(required, f.Name)
			}
		}
		s["type"] = "object"
		s["properties"] = props
		if len(required) > 0 {
			s["required"] = required
		}
	case KindArray:
		s["type"] = "array"
		if n.Items != nil {
			s["items"] = jsonSchema(n.Items)
		}
		if n.MinItems != nil {
			s["minItems"] = *n.MinItems
		}
		if n.MaxItems != nil {
			s["maxItems"] = *n.MaxItems
		}
	case KindString:
		s["type"] = "string"
	case KindEnum:
		s["type"] = "string"
		values := make([]interface{}, len(n.Enum))
		for i, v := range n.Enum {
			values[i] = v
		}
		s["enum"] = values
	case KindNumber, KindInteger:
		s["type"] = string(n.Kind)
		if n.Min != nil {
			s["minimum"] = *n.Min
		}
		if n.Max != nil {
			s["maximum"] = *n.Max
		}
	case KindBoolean:
		s["type"] = "boolean"
	}
	return s
}

// monolingual returns a copy of a bilingual node describing one variant.
func monolingual(n *Node, language string) *Node {
	cp := *n
	cp.Bilingual = false
	if cp.Description != "" {
		cp.Description = cp.Description + " (" + language + ")"
	} else {
		cp.Description = language
	}
	return &cp
}
