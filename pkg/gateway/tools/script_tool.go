package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxbridge/voxbridge/pkg/gateway/tools/scripts"
)

const (
	ToolGetScriptInfo        = "get_script_info"
	ToolListAvailableScripts = "list_available_scripts"
)

// ScriptInfoTool returns one script descriptor plus a freshly rendered
// guidance block.
type ScriptInfoTool struct {
	Catalog *scripts.Catalog
}

func (t ScriptInfoTool) Name() string { return ToolGetScriptInfo }

func (t ScriptInfoTool) Definition() Definition {
	return Definition{
		Type:        "function",
		Name:        ToolGetScriptInfo,
		Description: "Load an interactive script to guide the conversation",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"script_name": map[string]any{
					"type":        "string",
					"description": "Name of the script to load (e.g., 'blog_writer', 'improv_game')",
				},
			},
			"required": []string{"script_name"},
		},
	}
}

func (t ScriptInfoTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name := strings.TrimSpace(stringArg(args, "script_name"))
	if name == "" {
		return nil, fmt.Errorf("script_name is required")
	}
	d, err := t.Catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"script_name":  name,
		"script":       d,
		"instructions": scripts.Guidance(d),
		"message":      "Loaded script: " + d.Name,
	}, nil
}

// ScriptListTool lists all script names with descriptions.
type ScriptListTool struct {
	Catalog *scripts.Catalog
}

func (t ScriptListTool) Name() string { return ToolListAvailableScripts }

func (t ScriptListTool) Definition() Definition {
	return Definition{
		Type:        "function",
		Name:        ToolListAvailableScripts,
		Description: "List the interactive scripts available for this conversation",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t ScriptListTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	listed, err := t.Catalog.List()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scripts": listed,
		"message": fmt.Sprintf("Found %d available scripts", len(listed)),
	}, nil
}
