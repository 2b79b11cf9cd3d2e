package tools

import "slices"

// Property is a JSON Schema property definition.
type Property map[string]any

// Schema is the input schema of a tool: an object with named properties.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	if properties == nil {
		properties = map[string]Property{}
	}
	return Schema{Properties: properties, Required: required}
}

// StringProperty creates a string property with a description.
func StringProperty(description string) Property {
	return Property{"type": "string", "description": description}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) Property {
	return Property{"type": "string", "description": description, "enum": values}
}

// IntegerProperty creates an integer property bounded to [min, max].
func IntegerProperty(description string, min, max int) Property {
	return Property{"type": "integer", "description": description, "minimum": min, "maximum": max}
}

// WithThought returns a copy of schema with a "thought" property, which the
// model uses to state why it is calling the tool.
func WithThought(schema Schema) Schema {
	props := make(map[string]Property, len(schema.Properties)+1)
	for k, v := range schema.Properties {
		props[k] = v
	}
	props["thought"] = StringProperty(
		"Your reasoning about why you're using this tool and what you expect to find.",
	)
	return Schema{Properties: props, Required: slices.Clone(schema.Required)}
}
