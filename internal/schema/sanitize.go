// Package schema normalizes JSON-Schema-ish tool parameter schemas to the
// restricted dialect the Gemini API accepts: no $ref, no constraint
// keywords, no nullable variants, no sibling type next to anyOf/oneOf.
package schema

// Keywords the provider rejects. Dropped wherever they appear.
var droppedKeywords = map[string]struct{}{
	"additionalProperties": {},
	"$schema":              {},
	"$id":                  {},
	"examples":             {},
	"default":              {},
	"title":                {},
	"id":                   {},
	"minLength":            {},
	"maxLength":            {},
	"minimum":              {},
	"maximum":              {},
	"multipleOf":           {},
	"pattern":              {},
	"format":               {},
	"minItems":             {},
	"maxItems":             {},
	"uniqueItems":          {},
	"minProperties":        {},
	"maxProperties":        {},
	"if":                   {},
	"then":                 {},
	"else":                 {},
	"not":                  {},
	"dependentRequired":    {},
	"dependentSchemas":     {},
	"patternProperties":    {},
}

// Sanitize rewrites a tool parameter schema into the provider dialect.
// Pure and idempotent; never fails — unknown input passes through minus
// the forbidden keywords.
func Sanitize(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	defs := collectDefs(schema)
	out := sanitizeNode(schema, defs, nil)
	return ensureObjectShape(out)
}

// collectDefs gathers local definitions from $defs and definitions so
// $ref targets can be inlined.
func collectDefs(root map[string]interface{}) map[string]map[string]interface{} {
	defs := make(map[string]map[string]interface{})
	for _, key := range []string{"$defs", "definitions"} {
		if raw, ok := root[key].(map[string]interface{}); ok {
			for name, def := range raw {
				if m, ok := def.(map[string]interface{}); ok {
					defs[name] = m
				}
			}
		}
	}
	return defs
}

func sanitizeNode(node map[string]interface{}, defs map[string]map[string]interface{}, refStack []string) map[string]interface{} {
	// Local $ref: inline the target. Cycles and unresolvable refs collapse
	// to an empty object schema keeping only the description.
	if ref, ok := node["$ref"].(string); ok {
		return resolveRef(node, ref, defs, refStack)
	}

	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		if _, drop := droppedKeywords[k]; drop {
			continue
		}
		if k == "$defs" || k == "definitions" {
			continue
		}
		out[k] = v
	}

	// const → enum
	if cv, ok := out["const"]; ok {
		delete(out, "const")
		out["enum"] = []interface{}{cv}
	}

	// Recurse into properties and items.
	if props, ok := out["properties"].(map[string]interface{}); ok {
		cleaned := make(map[string]interface{}, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]interface{}); ok {
				cleaned[name] = sanitizeNode(m, defs, refStack)
			} else {
				cleaned[name] = prop
			}
		}
		out["properties"] = cleaned
	}
	if items, ok := out["items"].(map[string]interface{}); ok {
		out["items"] = sanitizeNode(items, defs, refStack)
	}

	// Union handling: strip nullables, unwrap singletons, flatten literal
	// unions, and drop any sibling type next to a surviving union.
	for _, key := range []string{"anyOf", "oneOf"} {
		raw, ok := out[key].([]interface{})
		if !ok {
			continue
		}
		var variants []map[string]interface{}
		for _, v := range raw {
			m, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			m = sanitizeNode(m, defs, refStack)
			if isNullVariant(m) {
				continue
			}
			variants = append(variants, m)
		}

		switch {
		case len(variants) == 0:
			delete(out, key)
		case len(variants) == 1:
			delete(out, key)
			out = unwrapVariant(out, variants[0])
		default:
			if flat, ok := flattenLiteralUnion(variants); ok {
				delete(out, key)
				out = unwrapVariant(out, flat)
			} else {
				list := make([]interface{}, len(variants))
				for i, v := range variants {
					list[i] = v
				}
				out[key] = list
				delete(out, "type")
			}
		}
	}

	normalizeTypeArray(out)
	return out
}

func resolveRef(node map[string]interface{}, ref string, defs map[string]map[string]interface{}, refStack []string) map[string]interface{} {
	name := ""
	switch {
	case len(ref) > len("#/$defs/") && ref[:len("#/$defs/")] == "#/$defs/":
		name = ref[len("#/$defs/"):]
	case len(ref) > len("#/definitions/") && ref[:len("#/definitions/")] == "#/definitions/":
		name = ref[len("#/definitions/"):]
	}

	fallback := map[string]interface{}{}
	if desc, ok := node["description"].(string); ok && desc != "" {
		fallback["description"] = desc
	}

	target, ok := defs[name]
	if name == "" || !ok {
		return fallback
	}
	for _, seen := range refStack {
		if seen == name {
			return fallback // cycle
		}
	}

	resolved := sanitizeNode(target, defs, append(refStack, name))
	// The referencing site's description wins over the definition's.
	if desc, ok := node["description"].(string); ok && desc != "" {
		resolved = cloneMap(resolved)
		resolved["description"] = desc
	}
	return resolved
}

// unwrapVariant merges a single remaining union variant into its parent,
// preserving the parent description.
func unwrapVariant(parent, variant map[string]interface{}) map[string]interface{} {
	out := cloneMap(parent)
	for k, v := range variant {
		out[k] = v
	}
	if desc, ok := parent["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out
}

// flattenLiteralUnion collapses a union whose variants are all
// single-value enums of a common scalar type into one enum schema.
func flattenLiteralUnion(variants []map[string]interface{}) (map[string]interface{}, bool) {
	commonType := ""
	var values []interface{}
	seen := make(map[interface{}]struct{})

	for _, v := range variants {
		t, _ := v["type"].(string)
		enum, ok := v["enum"].([]interface{})
		if t == "" || !ok || len(enum) == 0 {
			return nil, false
		}
		if commonType == "" {
			commonType = t
		} else if t != commonType {
			return nil, false
		}
		for _, e := range enum {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			values = append(values, e)
		}
	}

	return map[string]interface{}{"type": commonType, "enum": values}, true
}

// normalizeTypeArray reduces type arrays: null entries are removed and
// single-element arrays become scalars.
func normalizeTypeArray(node map[string]interface{}) {
	arr, ok := node["type"].([]interface{})
	if !ok {
		return
	}
	var kept []interface{}
	for _, t := range arr {
		if s, ok := t.(string); ok && s == "null" {
			continue
		}
		kept = append(kept, t)
	}
	switch len(kept) {
	case 0:
		delete(node, "type")
	case 1:
		node["type"] = kept[0]
	default:
		node["type"] = kept
	}
}

// ensureObjectShape forces the top level into {type:"object", properties,
// required?}. A union of object variants is merged: union of property
// keys, intersection of required.
func ensureObjectShape(node map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"anyOf", "oneOf"} {
		raw, ok := node[key].([]interface{})
		if !ok {
			continue
		}
		var variants []map[string]interface{}
		for _, v := range raw {
			if m, ok := v.(map[string]interface{}); ok && isObjectSchema(m) {
				variants = append(variants, m)
			}
		}
		if len(variants) == 0 || len(variants) != len(raw) {
			continue
		}
		merged := mergeObjectVariants(variants)
		if desc, ok := node["description"].(string); ok && desc != "" {
			merged["description"] = desc
		}
		return merged
	}

	if isObjectSchema(node) {
		out := cloneMap(node)
		out["type"] = "object"
		if _, ok := out["properties"].(map[string]interface{}); !ok {
			out["properties"] = map[string]interface{}{}
		}
		return out
	}

	// A stray scalar or array top level cannot carry tool parameters;
	// collapse it to an empty object schema, keeping the description.
	out := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	if desc, ok := node["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out
}

func isObjectSchema(m map[string]interface{}) bool {
	if t, ok := m["type"].(string); ok && t == "object" {
		return true
	}
	_, hasProps := m["properties"].(map[string]interface{})
	return hasProps
}

// mergeObjectVariants merges object union variants: properties are
// unioned (per-property enums merged when types match), required is the
// intersection across all variants.
func mergeObjectVariants(variants []map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{})
	for _, v := range variants {
		vp, _ := v["properties"].(map[string]interface{})
		for name, p := range vp {
			pm, ok := p.(map[string]interface{})
			if !ok {
				props[name] = p
				continue
			}
			existing, ok := props[name].(map[string]interface{})
			if !ok {
				props[name] = cloneMap(pm)
				continue
			}
			props[name] = mergeProperty(existing, pm)
		}
	}

	required := requiredSet(variants[0])
	for _, v := range variants[1:] {
		next := requiredSet(v)
		for name := range required {
			if _, ok := next[name]; !ok {
				delete(required, name)
			}
		}
	}

	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		var list []interface{}
		// Preserve the first variant's declaration order.
		if first, ok := variants[0]["required"].([]interface{}); ok {
			for _, r := range first {
				if s, ok := r.(string); ok {
					if _, keep := required[s]; keep {
						list = append(list, s)
					}
				}
			}
		}
		out["required"] = list
	}
	return out
}

// mergeProperty reconciles two declarations of the same property: enums
// are unioned when the scalar types agree, otherwise the first wins.
func mergeProperty(a, b map[string]interface{}) map[string]interface{} {
	ta, _ := a["type"].(string)
	tb, _ := b["type"].(string)
	if ta != tb || ta == "" {
		return a
	}
	ea, aok := a["enum"].([]interface{})
	eb, bok := b["enum"].([]interface{})
	if !aok && !bok {
		return a
	}
	out := cloneMap(a)
	seen := make(map[interface{}]struct{})
	var merged []interface{}
	for _, e := range append(append([]interface{}{}, ea...), eb...) {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		merged = append(merged, e)
	}
	out["enum"] = merged
	return out
}

func requiredSet(v map[string]interface{}) map[string]struct{} {
	set := make(map[string]struct{})
	if raw, ok := v["required"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isNullVariant(m map[string]interface{}) bool {
	if t, ok := m["type"].(string); ok && t == "null" {
		return true
	}
	if enum, ok := m["enum"].([]interface{}); ok && len(enum) == 1 && enum[0] == nil {
		return true
	}
	return false
}
