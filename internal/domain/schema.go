package domain

import "encoding/json"

// SchemaType enumerates the JSON types a response schema can constrain.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeInteger SchemaType = "integer"
	TypeString  SchemaType = "string"
)

// Schema is a provider-neutral response schema tree.
// Transports translate it into their native representation.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	// PropertyOrder keeps a stable field order; Gemini honours it in generated output.
	PropertyOrder []string
	Required      []string
	Items         *Schema
	Minimum       *float64
	Maximum       *float64
}

// BatchResultSchema describes {"articles":[{"index","categoryId","summary"}]}.
func BatchResultSchema(categories int) *Schema {
	lo, hi := 1.0, float64(categories)
	article := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"index": {
				Type:        TypeInteger,
				Description: "The exact index the article was given in the request.",
			},
			"categoryId": {
				Type:        TypeInteger,
				Description: "Category number.",
				Minimum:     &lo,
				Maximum:     &hi,
			},
			"summary": {
				Type:        TypeString,
				Description: "Short summary with personal information masked.",
			},
		},
		PropertyOrder: []string{"index", "categoryId", "summary"},
		Required:      []string{"index", "categoryId", "summary"},
	}
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"articles": {Type: TypeArray, Items: article},
		},
		PropertyOrder: []string{"articles"},
		Required:      []string{"articles"},
	}
}

// JSONSchema renders the tree as strict JSON Schema (every object closed, every
// property required). Numeric bounds are left out; not every provider accepts them.
func (s *Schema) JSONSchema() json.RawMessage {
	data, _ := json.Marshal(s.jsonSchemaNode())
	return data
}

func (s *Schema) jsonSchemaNode() map[string]any {
	node := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		node["description"] = s.Description
	}
	switch s.Type {
	case TypeObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.jsonSchemaNode()
		}
		node["properties"] = props
		node["required"] = s.orderedKeys()
		node["additionalProperties"] = false
	case TypeArray:
		if s.Items != nil {
			node["items"] = s.Items.jsonSchemaNode()
		}
	}
	return node
}

func (s *Schema) orderedKeys() []string {
	if len(s.PropertyOrder) == len(s.Properties) {
		return append([]string(nil), s.PropertyOrder...)
	}
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	return keys
}
