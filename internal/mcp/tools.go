package mcp

// ToolDefinition represents a tool exposed to MCP clients
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolTarget defines what a tool operates on
type ToolTarget string

const (
	// TargetGlobal - tool operates system-wide (e.g., sandbox list)
	TargetGlobal ToolTarget = "global"
	// TargetSandbox - tool operates on a specific sandbox
	TargetSandbox ToolTarget = "sandbox"
)

// ToolAccess defines the access level required for a tool
type ToolAccess string

const (
	// AccessRead - read-only operation
	AccessRead ToolAccess = "read"
	// AccessWrite - modifies data
	AccessWrite ToolAccess = "write"
)
