// Package models holds the wire types shared between the model client, the
// chat engine, and the channel adapters.
package models

import (
	"encoding/json"
	"fmt"
)

// Tool describes a callable function exposed to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the function name, description, and JSON schema of a
// tool definition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewTool builds a function-typed tool definition.
func NewTool(name, description string, parameters map[string]any) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ToolCall is the model's request to invoke a named tool. It is a tagged
// record: Name and Arguments are typed fields, the nested wire shape
// {"function":{"name":...,"arguments":{...}}} exists only at the JSON
// boundary.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

type toolCallWire struct {
	Function toolCallFunctionWire `json:"function"`
}

type toolCallFunctionWire struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MarshalJSON renders the nested function-call wire form.
func (t ToolCall) MarshalJSON() ([]byte, error) {
	args := t.Arguments
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolCallWire{Function: toolCallFunctionWire{
		Name:      t.Name,
		Arguments: raw,
	}})
}

// UnmarshalJSON accepts arguments either as a JSON object or as a
// string-encoded object, which some models emit.
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	var wire toolCallWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Name = wire.Function.Name
	t.Arguments = map[string]any{}
	if len(wire.Function.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(wire.Function.Arguments, &t.Arguments); err == nil {
		return nil
	}
	var encoded string
	if err := json.Unmarshal(wire.Function.Arguments, &encoded); err != nil {
		return fmt.Errorf("tool call %q: undecodable arguments", t.Name)
	}
	if encoded == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &t.Arguments); err != nil {
		return fmt.Errorf("tool call %q: undecodable arguments: %w", t.Name, err)
	}
	return nil
}

// String returns a compact human-readable form for logs.
func (t ToolCall) String() string {
	return fmt.Sprintf("%s(%d args)", t.Name, len(t.Arguments))
}
