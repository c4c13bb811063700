package normalize

import (
	"math"
	"strconv"
	"strings"

	"agri-pipeline/internal/schema"
)

// fillObject returns a copy of in holding exactly the fields of node and the
// number of leaf values that came from the model.
func fillObject(node *schema.Node, in map[string]interface{}) (map[string]interface{}, int) {
	out := make(map[string]interface{}, len(node.Fields))
	supplied := 0

	for _, f := range node.Fields {
		if f.Node.Bilingual {
			supplied += fillBilingual(f, in, out)
			continue
		}
		value, n, _ := fillValue(f.Node, in[f.Name])
		out[f.Name] = value
		supplied += n
	}
	return out, supplied
}

func fillBilingual(f schema.Field, in, out map[string]interface{}) int {
	enKey, urKey, alias := f.Keys()
	isList := f.Node.Kind == schema.KindArray

	en, enCount := bilingualValue(in[enKey], isList)
	if enCount == 0 {
		en, enCount = bilingualValue(in[alias], isList)
	}
	ur, urCount := bilingualValue(in[urKey], isList)

	switch {
	case enCount > 0 && urCount > 0:
	case enCount > 0:
		ur = placeholderLike(en, UrduFallback)
	case urCount > 0:
		en = placeholderLike(ur, EnglishFallback)
	default:
		en = bilingualDefault(f.Node.Default, f.Node.HasDefault, isList)
		ur = bilingualDefault(f.Node.UrduDefault, f.Node.UrduDefault != nil, isList)
	}

	out[enKey] = en
	out[urKey] = ur
	out[alias] = en
	return enCount + urCount
}

// bilingualValue extracts a non-empty string, or the non-empty strings of a
// list, and how many were found.
func bilingualValue(v interface{}, isList bool) (interface{}, int) {
	if !isList {
		s, ok := asString(v)
		if !ok || strings.TrimSpace(s) == "" {
			return "", 0
		}
		return strings.TrimSpace(s), 1
	}

	items, ok := v.([]interface{})
	if !ok {
		if s, ok := asString(v); ok && strings.TrimSpace(s) != "" {
			return []interface{}{strings.TrimSpace(s)}, 1
		}
		return []interface{}{}, 0
	}
	list := make([]interface{}, 0, len(items))
	for _, item := range items {
		if s, ok := asString(item); ok && strings.TrimSpace(s) != "" {
			list = append(list, strings.TrimSpace(s))
		}
	}
	return list, len(list)
}

// placeholderLike returns text, or a list of text as long as other.
func placeholderLike(other interface{}, text string) interface{} {
	list, ok := other.([]interface{})
	if !ok {
		return text
	}
	out := make([]interface{}, len(list))
	for i := range out {
		out[i] = text
	}
	return out
}

func bilingualDefault(def interface{}, has, isList bool) interface{} {
	if has {
		if s, ok := def.([]string); ok {
			out := make([]interface{}, len(s))
			for i, v := range s {
				out[i] = v
			}
			return out
		}
		return def
	}
	if isList {
		return []interface{}{}
	}
	return ""
}

// fillValue coerces v to node's kind. ok is false when v was absent or could
// not be used, in which case the node's default is returned.
func fillValue(node *schema.Node, v interface{}) (value interface{}, supplied int, ok bool) {
	switch node.Kind {
	case schema.KindObject:
		m, isMap := v.(map[string]interface{})
		if !isMap {
			filled, _ := fillObject(node, map[string]interface{}{})
			return filled, 0, false
		}
		filled, n := fillObject(node, m)
		return filled, n, true

	case schema.KindArray:
		items, isList := v.([]interface{})
		if !isList {
			return defaultArray(node), 0, false
		}
		out := make([]interface{}, 0, len(items))
		total := 0
		for _, item := range items {
			if node.Items == nil {
				continue
			}
			filled, n, itemOK := fillValue(node.Items, item)
			if !itemOK {
				continue
			}
			out = append(out, filled)
			total += n
		}
		return out, total, true

	case schema.KindString:
		s, isString := asString(v)
		if !isString || strings.TrimSpace(s) == "" {
			return node.ZeroValue(), 0, false
		}
		return strings.TrimSpace(s), 1, true

	case schema.KindEnum:
		s, isString := asString(v)
		s = strings.TrimSpace(s)
		if !isString || s == "" {
			return node.ZeroValue(), 0, false
		}
		if node.HasEnumValue(s) {
			return s, 1, true
		}
		for _, allowed := range node.Enum {
			if strings.EqualFold(allowed, s) {
				return allowed, 1, true
			}
		}
		return s, 1, true

	case schema.KindNumber, schema.KindInteger:
		f, isNumber := asNumber(v)
		if !isNumber {
			return node.ZeroValue(), 0, false
		}
		if node.Kind == schema.KindInteger {
			f = math.Round(f)
		}
		return clamp(node, f), 1, true

	case schema.KindBoolean:
		switch b := v.(type) {
		case bool:
			return b, 1, true
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, 1, true
			}
		}
		return node.ZeroValue(), 0, false
	}
	return node.ZeroValue(), 0, false
}

func defaultArray(node *schema.Node) interface{} {
	if node.HasDefault {
		return node.Default
	}
	return []interface{}{}
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func asNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, true
	}
	return f, true
}

func clamp(node *schema.Node, f float64) float64 {
	if math.IsInf(f, 1) && node.Max == nil {
		return 0
	}
	if math.IsInf(f, -1) && node.Min == nil {
		return 0
	}
	if node.Min != nil && f < *node.Min {
		f = *node.Min
	}
	if node.Max != nil && f > *node.Max {
		f = *node.Max
	}
	return f
}
