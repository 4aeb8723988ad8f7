package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/invopop/jsonschema"
)

// ReflectSchema builds the JSON schema advertised to the model from a Go
// struct. Fields without omitempty are required and additional properties are
// rejected. Definitions are inlined; only self-referential types keep a
// "$ref" into "$defs", so recursive inputs such as trees stay finite.
// Descriptions come from `jsonschema_description` or `jsonschema:"description=..."` tags.
func ReflectSchema(v any) map[string]any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)

	data, err := json.Marshal(s)
	if err != nil {
		return ObjectSchema(nil)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return ObjectSchema(nil)
	}

	defs, _ := m["$defs"].(map[string]any)
	delete(m, "$schema")
	delete(m, "$id")
	delete(m, "$defs")

	in := &inliner{defs: defs, used: map[string]any{}}
	m, _ = in.inline(m, nil).(map[string]any)
	if m == nil {
		return ObjectSchema(nil)
	}
	if len(in.used) > 0 {
		m["$defs"] = in.used
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return m
}

// inliner replaces "$ref" nodes with the referenced definition unless the
// definition is already being expanded further up, which marks a cycle.
type inliner struct {
	defs map[string]any
	used map[string]any
}

func (in *inliner) inline(node any, stack []string) any {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			name, ok := defName(ref)
			def, found := in.defs[name].(map[string]any)
			if ok && found {
				if contains(stack, name) {
					in.use(name, stack)
					return map[string]any{"$ref": "#/$defs/" + name}
				}
				next := append(append([]string(nil), stack...), name)
				out := in.inline(def, next).(map[string]any)
				for k, v := range n {
					if k != "$ref" {
						out[k] = in.inline(v, stack)
					}
				}
				return out
			}
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = in.inline(v, stack)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = in.inline(v, stack)
		}
		return out
	default:
		return node
	}
}

// use records a recursive definition, expanded with itself on the stack.
func (in *inliner) use(name string, stack []string) {
	if _, ok := in.used[name]; ok {
		return
	}
	in.used[name] = map[string]any{}
	def, _ := in.defs[name].(map[string]any)
	in.used[name] = in.inline(def, []string{name})
}

func defName(ref string) (string, bool) {
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if name, ok := strings.CutPrefix(ref, prefix); ok {
			return name, true
		}
	}
	return "", false
}

// ObjectSchema returns a minimal object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// DecodeInput decodes a raw tool input into generic JSON values, preserving
// numbers as json.Number. An empty input decodes to an empty object.
func DecodeInput(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateInput decodes raw and checks it against schema. The decoded value
// is returned when it conforms; otherwise the error is a *core.ValidationErrors
// listing every failure with its dotted field path. References of the form
// "#/$defs/<name>" resolve against schema itself.
func ValidateInput(raw json.RawMessage, schema map[string]any) (any, error) {
	v, err := DecodeInput(raw)
	if err != nil {
		errs := &core.ValidationErrors{}
		errs.Add("", fmt.Sprintf("Invalid JSON: %v", err))
		return nil, errs
	}
	w := &walker{root: schema, errs: &core.ValidationErrors{}}
	w.value(v, schema, nil)
	if err := w.errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return v, nil
}

// maxRefHops bounds chains of references that point at other references.
const maxRefHops = 32

// walker validates one value against a schema tree rooted at root.
type walker struct {
	root map[string]any
	errs *core.ValidationErrors
}

// resolve follows "$ref" nodes to their target schema.
func (w *walker) resolve(schema map[string]any, path []string) (map[string]any, bool) {
	for hops := 0; ; hops++ {
		ref, ok := schema["$ref"].(string)
		if !ok {
			return schema, true
		}
		if hops == maxRefHops {
			w.errs.Add(joinPath(path), "Unresolvable schema reference "+ref)
			return nil, false
		}
		var next map[string]any
		if ref == "#" {
			next = w.root
		} else if name, ok := defName(ref); ok {
			defs, _ := w.root["$defs"].(map[string]any)
			if defs == nil {
				defs, _ = w.root["definitions"].(map[string]any)
			}
			next, _ = defs[name].(map[string]any)
		}
		if next == nil {
			w.errs.Add(joinPath(path), "Unresolvable schema reference "+ref)
			return nil, false
		}
		schema = next
	}
}

func joinPath(path []string) string { return strings.Join(path, ".") }

func child(path []string, seg string) []string {
	p := make([]string, len(path), len(path)+1)
	copy(p, path)
	return append(p, seg)
}

func (w *walker) value(v any, schema map[string]any, path []string) {
	if schema == nil {
		return
	}
	schema, ok := w.resolve(schema, path)
	if !ok {
		return
	}

	if anyOf, ok := schema["anyOf"].([]any); ok && len(anyOf) > 0 {
		w.anyOf(v, anyOf, path)
		return
	}
	if oneOf, ok := schema["oneOf"].([]any); ok && len(oneOf) > 0 {
		w.anyOf(v, oneOf, path)
		return
	}

	if n, ok := v.(json.Number); ok {
		if _, err := n.Float64(); err != nil {
			w.errs.Add(joinPath(path), "Number out of range")
			return
		}
	}

	types := schemaTypes(schema["type"])
	if len(types) > 0 {
		if v == nil {
			if !contains(types, "null") {
				w.errs.Add(joinPath(path), fmt.Sprintf("Expected %s, received null", strings.Join(types, " | ")))
			}
			return
		}
		if !matchesAny(v, types) {
			w.errs.Add(joinPath(path), fmt.Sprintf("Expected %s, received %s", strings.Join(types, " | "), jsonType(v)))
			return
		}
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		validateEnum(v, enum, path, w.errs)
	}
	if c, ok := schema["const"]; ok && !equalJSON(v, c) {
		w.errs.Add(joinPath(path), fmt.Sprintf("Invalid literal value, expected %s", render(c)))
	}

	switch val := v.(type) {
	case map[string]any:
		w.object(val, schema, path)
	case []any:
		w.array(val, schema, path)
	case string:
		validateString(val, schema, path, w.errs)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			validateNumber(f, schema, path, w.errs)
		}
	case float64:
		validateNumber(val, schema, path, w.errs)
	case int:
		validateNumber(float64(val), schema, path, w.errs)
	}
}

func (w *walker) anyOf(v any, options []any, path []string) {
	for _, o := range options {
		sub, ok := o.(map[string]any)
		if !ok {
			continue
		}
		trial := &walker{root: w.root, errs: &core.ValidationErrors{}}
		trial.value(v, sub, path)
		if trial.errs.Len() == 0 {
			return
		}
	}
	w.errs.Add(joinPath(path), "Invalid input")
}

func (w *walker) object(obj map[string]any, schema map[string]any, path []string) {
	props, _ := schema["properties"].(map[string]any)

	for _, name := range stringList(schema["required"]) {
		if _, ok := obj[name]; !ok {
			w.errs.Add(joinPath(child(path, name)), "Required")
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var unknown []string
	for _, k := range keys {
		ps, ok := props[k].(map[string]any)
		if !ok {
			if _, declared := props[k]; !declared {
				unknown = append(unknown, k)
			}
			continue
		}
		w.value(obj[k], ps, child(path, k))
	}

	if ap, ok := schema["additionalProperties"].(bool); ok && !ap && len(unknown) > 0 {
		w.errs.Add(joinPath(path), fmt.Sprintf("Unrecognized key(s) in object: '%s'", strings.Join(unknown, "', '")))
	}
}

func (w *walker) array(arr []any, schema map[string]any, path []string) {
	if n, ok := number(schema["minItems"]); ok && float64(len(arr)) < n {
		w.errs.Add(joinPath(path), fmt.Sprintf("Array must contain at least %d element(s)", int(n)))
	}
	if n, ok := number(schema["maxItems"]); ok && float64(len(arr)) > n {
		w.errs.Add(joinPath(path), fmt.Sprintf("Array must contain at most %d element(s)", int(n)))
	}
	items, ok := schema["items"].(map[string]any)
	if !ok {
		return
	}
	for i, item := range arr {
		w.value(item, items, child(path, strconv.Itoa(i)))
	}
}

func validateString(s string, schema map[string]any, path []string, errs *core.ValidationErrors) {
	length := len([]rune(s))
	if n, ok := number(schema["minLength"]); ok && float64(length) < n {
		errs.Add(joinPath(path), fmt.Sprintf("String must contain at least %d character(s)", int(n)))
	}
	if n, ok := number(schema["maxLength"]); ok && float64(length) > n {
		errs.Add(joinPath(path), fmt.Sprintf("String must contain at most %d character(s)", int(n)))
	}
	if p, ok := schema["pattern"].(string); ok && p != "" {
		re, err := regexp.Compile(p)
		if err == nil && !re.MatchString(s) {
			errs.Add(joinPath(path), fmt.Sprintf("String must match pattern %s", p))
		}
	}
}

func validateNumber(f float64, schema map[string]any, path []string, errs *core.ValidationErrors) {
	if n, ok := number(schema["minimum"]); ok && f < n {
		errs.Add(joinPath(path), fmt.Sprintf("Number must be greater than or equal to %v", n))
	}
	if n, ok := number(schema["maximum"]); ok && f > n {
		errs.Add(joinPath(path), fmt.Sprintf("Number must be less than or equal to %v", n))
	}
	if n, ok := number(schema["exclusiveMinimum"]); ok && f <= n {
		errs.Add(joinPath(path), fmt.Sprintf("Number must be greater than %v", n))
	}
	if n, ok := number(schema["exclusiveMaximum"]); ok && f >= n {
		errs.Add(joinPath(path), fmt.Sprintf("Number must be less than %v", n))
	}
}

func validateEnum(v any, enum []any, path []string, errs *core.ValidationErrors) {
	for _, e := range enum {
		if equalJSON(v, e) {
			return
		}
	}
	opts := make([]string, len(enum))
	for i, e := range enum {
		opts[i] = render(e)
	}
	errs.Add(joinPath(path), fmt.Sprintf("Invalid enum value. Expected %s, received %s", strings.Join(opts, " | "), render(v)))
}

func schemaTypes(t any) []string {
	switch tt := t.(type) {
	case string:
		return []string{tt}
	case []string:
		return tt
	case []any:
		return stringList(tt)
	}
	return nil
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func matchesAny(v any, types []string) bool {
	for _, t := range types {
		if isValidType(v, t) {
			return true
		}
	}
	return false
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		f, ok := number(value)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := number(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if f, ok := number(v); ok {
		if f == math.Trunc(f) {
			return "integer"
		}
		return "number"
	}
	if _, ok := v.(json.Number); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func equalJSON(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return render(a) == render(b)
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
