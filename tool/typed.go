package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator returns the shared validator. Field names in errors use
// the json tag so reported paths match what the model sent.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Typed is a tool whose input is a Go struct T. The struct is the single
// source of truth: its reflected JSON schema is advertised to the model, and
// the same declaration (plus optional `validate` tags) checks the input the
// model sends back.
type Typed[T any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(tc *core.ToolContext, in T) (core.ToolAction, error)
}

// New constructs a typed tool.
//
// Example:
//
//	type addInput struct {
//	  A float64 `json:"a"`
//	  B float64 `json:"b"`
//	}
//
//	add := tool.New("add", "Add two numbers", func(tc *core.ToolContext, in addInput) (core.ToolAction, error) {
//	  return core.Result(fmt.Sprint(in.A + in.B)), nil
//	})
func New[T any](name, description string, fn func(tc *core.ToolContext, in T) (core.ToolAction, error)) *Typed[T] {
	var zero T
	return &Typed[T]{
		name:        name,
		description: description,
		schema:      util.ReflectSchema(&zero),
		fn:          fn,
	}
}

// Name returns the unique tool name.
func (t *Typed[T]) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *Typed[T]) Description() string { return t.description }

// InputSchema returns the schema reflected from T.
func (t *Typed[T]) InputSchema() map[string]any { return t.schema }

// Parse validates raw against the schema, decodes it into T and applies the
// struct's validate tags.
func (t *Typed[T]) Parse(raw json.RawMessage) (any, error) {
	return ParseInto[T](raw, t.schema)
}

// Execute invokes the wrapped function with the parsed input.
func (t *Typed[T]) Execute(tc *core.ToolContext, input any) (core.ToolAction, error) {
	in, ok := input.(T)
	if !ok {
		return nil, fmt.Errorf("tool %s: unexpected input type %T", t.name, input)
	}
	return t.fn(tc, in)
}

// ParseInto validates raw against schema and decodes it into a T.
func ParseInto[T any](raw json.RawMessage, schema map[string]any) (T, error) {
	var out T
	if _, err := util.ValidateInput(raw, schema); err != nil {
		return out, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, decodeError(err)
		}
	}
	if err := validateStruct(&out); err != nil {
		return out, err
	}
	return out, nil
}

// decodeError reports a decoding failure the schema let through, e.g. 2.0
// for an int field, at the field path the model used.
func decodeError(err error) error {
	errs := &core.ValidationErrors{}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		errs.Add(typeErr.Field, fmt.Sprintf("Expected %s, received %s", goKind(typeErr.Type), typeErr.Value))
		return errs
	}
	errs.Add("", err.Error())
	return errs
}

func goKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	default:
		return t.String()
	}
}

func validateStruct(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs := &core.ValidationErrors{}
		errs.Add("", err.Error())
		return errs
	}

	errs := &core.ValidationErrors{}
	for _, fe := range fieldErrs {
		errs.Add(fieldPath(fe.Namespace()), ruleMessage(fe))
	}
	return errs
}

// fieldPath drops the root struct name from a validator namespace and turns
// index brackets into dotted segments: "in.items[2].name" becomes "items.2.name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min", "gte":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of [%s]", fe.Param())
	case "email":
		return "Invalid email"
	case "url":
		return "Invalid url"
	}
	if fe.Param() != "" {
		return fmt.Sprintf("Failed on the '%s=%s' rule", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("Failed on the '%s' rule", fe.Tag())
}
