package schema

// FunctionCall is the structured payload describing a tool invocation
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToMap renders the call as a generic payload for DataContent
func (f FunctionCall) ToMap() map[string]any {
	return map[string]any{
		"call_id":   f.CallID,
		"name":      f.Name,
		"arguments": f.Arguments,
	}
}

// FunctionCallOutput is the structured payload describing a tool result
type FunctionCallOutput struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// ToMap renders the output as a generic payload for DataContent
func (f FunctionCallOutput) ToMap() map[string]any {
	return map[string]any{
		"call_id": f.CallID,
		"name":    f.Name,
		"output":  f.Output,
	}
}
