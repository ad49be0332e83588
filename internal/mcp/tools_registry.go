package mcp

// registerAllTools registers all MCP tools with the registry
func (s *Server) registerAllTools(r *Registry) {
	s.registerSandboxTools(r)
	s.registerSessionTools(r)
	s.registerAgentTools(r)
}

func (s *Server) registerSandboxTools(r *Registry) {
	Register(r, ToolDef{
		Name: "sandbox",
		Description: `Manage sandboxes — the container environments where agents execute.

Actions:
  create   — Create and start a sandbox. Optionally pass name and labels.
  list     — List all tracked sandboxes. No parameters required.
  get      — Get sandbox details by sandbox_id.
  release  — Stop and remove a sandbox. Requires sandbox_id.

Sandboxes idle out: any prompt or exec refreshes the activity heartbeat,
and the reaper releases sandboxes idle past the configured TTL.`,
		Target: TargetGlobal,
		Access: AccessWrite,
	}, s.handleSandbox)

	Register(r, ToolDef{
		Name: "run_shell",
		Description: `Execute a shell command inside a sandbox.

Requires sandbox_id and command (string array). Use working_dir to set the
directory and timeout_sec to bound long commands (default: 120 seconds).
Returns stdout, stderr, and exit_code.`,
		Target: TargetSandbox,
		Access: AccessWrite,
	}, s.handleRunShell)
}

func (s *Server) registerSessionTools(r *Registry) {
	Register(r, ToolDef{
		Name: "session",
		Description: `Inspect agent sessions and their recorded turns.

Actions:
  list    — List sessions. Filter by sandbox_id and status (active/completed/failed).
  get     — Get session details, turns, and token usage by session_id.
  delete  — Delete a session and its turns by session_id.`,
		Target: TargetGlobal,
		Access: AccessRead,
	}, s.handleSession)
}

func (s *Server) registerAgentTools(r *Registry) {
	Register(r, ToolDef{
		Name: "prompt",
		Description: `Send a task to an agent running in a sandbox and wait for the result.

Requires sandbox_id and prompt. Pass session_id to continue an existing
session; omit it to start a new one. model ("providerID/modelID"), agent,
and system_prompt are optional. Returns the result text, session_id for
continuation, and token usage.`,
		Target: TargetSandbox,
		Access: AccessWrite,
	}, s.handlePrompt)
}
