package util

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Field describes one argument of a struct-typed tool input.
type Field struct {
	Name        string       // Wire name (json tag or Go name)
	Index       int          // Struct field index
	Type        reflect.Type // Declared Go type
	Required    bool         // Neither a pointer nor tagged omitempty
	Description string
}

// StructFields lists the exported fields of a struct type in declaration
// order. Descriptions come from the jsonschema reflector (jsonschema tags) and
// fall back to a plain `description` tag.
func StructFields(t reflect.Type) ([]Field, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type %s is not a struct", t)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	reflected := reflector.ReflectFromType(t)

	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}

		jsonTag := sf.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := sf.Name
		if jsonTag != "" {
			if head := strings.Split(jsonTag, ",")[0]; head != "" {
				name = head
			}
		}

		desc := sf.Tag.Get("description")
		if reflected != nil && reflected.Properties != nil {
			if prop, ok := reflected.Properties.Get(name); ok && prop != nil && prop.Description != "" {
				desc = prop.Description
			}
		}

		fields = append(fields, Field{
			Name:        name,
			Index:       i,
			Type:        sf.Type,
			Required:    !hasOmitEmpty(jsonTag) && !isPointer(sf.Type),
			Description: desc,
		})
	}

	return fields, nil
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}
