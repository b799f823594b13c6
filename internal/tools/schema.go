package tools

import "google.golang.org/genai"

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	if props == nil {
		props = map[string]*genai.Schema{}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func stringProp(desc string, enum ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc, Enum: enum}
}

func intProp(desc string, min *float64) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc, Minimum: min}
}

func boolProp(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func ptr[T any](v T) *T { return &v }
