package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool input schemas, authored as raw JSON Schema. The same documents are
// advertised to the MCP client and compiled for server-side validation, so
// the contract the client sees is exactly the one enforced.
//
// Some MCP clients validate tool schemas strictly and expect "type": "object"
// even for parameterless tools.
const emptyObjectSchema = `{"type":"object","properties":{},"additionalProperties":false}`

const publishSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "session": {"type": "string", "minLength": 1, "description": "Logical session/task name."},
    "stage": {"type": "integer", "minimum": 0, "description": "Progress stage (e.g. 2)."},
    "total": {"type": "integer", "minimum": 0, "description": "Total stages (e.g. 5)."},
    "status": {
      "type": "string",
      "enum": ["progress", "success", "warning", "error", "info"],
      "description": "Drives default tags/priority."
    },
    "result": {"type": "string", "description": "Short result line."},
    "next": {"type": "string", "description": "Suggested next step."},
    "details": {"type": "string", "description": "Extra multi-line details."},
    "area": {"type": "string", "description": "Work area (becomes a tag: area:<...>)."},
    "repo": {"type": "string", "description": "Repo name (becomes a tag: repo:<...>)."},
    "branch": {"type": "string", "description": "Branch name (becomes a tag: branch:<...>)."},
    "title": {"type": "string", "description": "ntfy title (X-Title)."},
    "message": {"type": "string", "description": "ntfy body/message."},
    "tags": {
      "description": "Comma-separated string or array of tag strings.",
      "anyOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}]
    },
    "priority": {
      "description": "ntfy priority (1-5 or min/low/default/high/max/urgent).",
      "anyOf": [
        {"type": "integer", "minimum": 1, "maximum": 5},
        {"type": "string", "enum": ["1", "2", "3", "4", "5", "min", "low", "default", "high", "max", "urgent"]}
      ]
    },
    "update": {"type": "boolean", "default": true, "description": "When true, sets X-Sequence-ID to update one notification."},
    "sequenceId": {"type": "string", "description": "Explicit X-Sequence-ID (overrides auto-generated)."},
    "topic": {"type": "string", "description": "Override the configured ntfy topic for this call."},
    "markdown": {"type": "boolean", "description": "Enable ntfy markdown rendering (X-Markdown)."},
    "click": {"type": "string", "description": "ntfy click URL (X-Click)."},
    "actions": {"type": "string", "description": "ntfy action buttons (X-Actions)."},
    "icon": {"type": "string", "description": "ntfy icon URL (X-Icon)."},
    "attach": {"type": "string", "description": "ntfy attachment URL (X-Attach)."},
    "filename": {"type": "string", "description": "Filename for attachment (X-Filename)."},
    "email": {"type": "string", "description": "Forward via email (X-Email)."},
    "delay": {"anyOf": [{"type": "string"}, {"type": "number"}], "description": "Delay delivery (X-Delay)."}
  },
  "required": ["session"]
}`

// compileSchema compiles a raw schema document for argument validation.
func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("tools: unmarshal %s schema: %w", name, err)
	}

	url := "ntfy-mcp://schema/" + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("tools: add %s schema resource: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tools: compile %s schema: %w", name, err)
	}
	return compiled, nil
}
