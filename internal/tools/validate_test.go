package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestValidateArgs(t *testing.T) {
	schema := object(map[string]*genai.Schema{
		"name":    stringProp("name"),
		"ratio":   {Type: genai.TypeNumber, Maximum: ptr(1.0)},
		"enabled": boolProp("flag"),
		"tags": {
			Type:     genai.TypeArray,
			MinItems: ptr(int64(1)),
			Items:    &genai.Schema{Type: genai.TypeString},
		},
		"size": object(map[string]*genai.Schema{
			"width": intProp("w", ptr(64.0)),
		}, "width"),
		"value": {AnyOf: []*genai.Schema{{Type: genai.TypeString}, {Type: genai.TypeNumber}}},
	}, "name")

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"valid", map[string]any{"name": "x", "ratio": 0.5, "enabled": true, "tags": []any{"a"}, "size": map[string]any{"width": 512.0}, "value": 3.0}, ""},
		{"null optional", map[string]any{"name": "x", "ratio": nil}, ""},
		{"unknown field ignored", map[string]any{"name": "x", "other": 1}, ""},
		{"missing", map[string]any{}, "name: required field is missing"},
		{"null required", map[string]any{"name": nil}, "name: required field is missing"},
		{"string type", map[string]any{"name": 5.0}, "name: must be a string"},
		{"number type", map[string]any{"name": "x", "ratio": "half"}, "ratio: must be a number"},
		{"maximum", map[string]any{"name": "x", "ratio": 1.5}, "ratio: must be <= 1"},
		{"boolean", map[string]any{"name": "x", "enabled": "yes"}, "enabled: must be a boolean"},
		{"array type", map[string]any{"name": "x", "tags": "a"}, "tags: must be an array"},
		{"min items", map[string]any{"name": "x", "tags": []any{}}, "tags: must contain at least 1 items"},
		{"item type", map[string]any{"name": "x", "tags": []any{"a", 2.0}}, "tags[1]: must be a string"},
		{"object type", map[string]any{"name": "x", "size": 512.0}, "size: must be an object"},
		{"nested required", map[string]any{"name": "x", "size": map[string]any{}}, "size.width: required field is missing"},
		{"nested minimum", map[string]any{"name": "x", "size": map[string]any{"width": 8.0}}, "size.width: must be >= 64"},
		{"any of", map[string]any{"name": "x", "value": true}, "value: must be one of types string, number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(schema, tt.args)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
			var ve ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidateArgsNilSchema(t *testing.T) {
	assert.NoError(t, ValidateArgs(nil, map[string]any{"x": 1}))
}
