package schema

// Representation is a JSON object sent to an `_entities` query: the
// `__typename` of the entity plus its key fields, per spec.md GLOSSARY.
// Small helpers here mirror the original implementation's value_ext.rs
// (`get_field` and friends over a generic JSON value) adapted to Go's
// `map[string]interface{}` representation of decoded JSON.
type Representation = map[string]interface{}

// GetField reads a (possibly nested) field out of a decoded JSON object,
// returning (nil, false) if any segment is missing or not an object.
func GetField(obj map[string]interface{}, path ...string) (interface{}, bool) {
	var cur interface{} = obj
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringField reads a string field, returning "" if absent or not a
// string.
func StringField(obj map[string]interface{}, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
