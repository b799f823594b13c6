package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// ValidateArgs checks args against an object schema. The first violation
// is returned as a ValidationError naming the offending field path.
func ValidateArgs(schema *genai.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateObject("", schema, args)
}

func validateObject(path string, schema *genai.Schema, obj map[string]any) error {
	for _, name := range schema.Required {
		v, ok := obj[name]
		if !ok || v == nil {
			return NewValidationError(join(path, name), "required field is missing")
		}
	}

	// Deterministic order keeps error messages stable.
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		v := obj[name]
		if v == nil {
			continue
		}
		if err := validateValue(join(path, name), prop, v); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, schema *genai.Schema, v any) error {
	if len(schema.AnyOf) > 0 {
		for _, alt := range schema.AnyOf {
			if validateValue(path, alt, v) == nil {
				return nil
			}
		}
		kinds := make([]string, len(schema.AnyOf))
		for i, alt := range schema.AnyOf {
			kinds[i] = strings.ToLower(string(alt.Type))
		}
		return NewValidationError(path, "must be one of types "+strings.Join(kinds, ", "))
	}

	switch schema.Type {
	case genai.TypeString:
		s, ok := v.(string)
		if !ok {
			return NewValidationError(path, "must be a string")
		}
		if len(schema.Enum) > 0 && !contains(schema.Enum, s) {
			return NewValidationError(path, "must be one of "+strings.Join(schema.Enum, ", "))
		}
	case genai.TypeInteger:
		f, ok := number(v)
		if !ok || f != math.Trunc(f) {
			return NewValidationError(path, "must be an integer")
		}
		if err := checkRange(path, schema, f); err != nil {
			return err
		}
	case genai.TypeNumber:
		f, ok := number(v)
		if !ok {
			return NewValidationError(path, "must be a number")
		}
		if err := checkRange(path, schema, f); err != nil {
			return err
		}
	case genai.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return NewValidationError(path, "must be a boolean")
		}
	case genai.TypeArray:
		items, ok := v.([]any)
		if !ok {
			return NewValidationError(path, "must be an array")
		}
		if schema.MinItems != nil && int64(len(items)) < *schema.MinItems {
			return NewValidationError(path, fmt.Sprintf("must contain at least %d items", *schema.MinItems))
		}
		if schema.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), schema.Items, item); err != nil {
					return err
				}
			}
		}
	case genai.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return NewValidationError(path, "must be an object")
		}
		if len(schema.Properties) > 0 || len(schema.Required) > 0 {
			return validateObject(path, schema, obj)
		}
	}
	return nil
}

func checkRange(path string, schema *genai.Schema, f float64) error {
	if schema.Minimum != nil && f < *schema.Minimum {
		return NewValidationError(path, fmt.Sprintf("must be >= %v", *schema.Minimum))
	}
	if schema.Maximum != nil && f > *schema.Maximum {
		return NewValidationError(path, fmt.Sprintf("must be <= %v", *schema.Maximum))
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
