package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxbridge/voxbridge/pkg/gateway/tools/fileops"
)

const ToolFileOperation = "file_operation"

// FileOperationTool exposes the workspace document store to the model.
type FileOperationTool struct {
	Store *fileops.Store
}

func (t FileOperationTool) Name() string { return ToolFileOperation }

func (t FileOperationTool) Definition() Definition {
	return Definition{
		Type:        "function",
		Name:        ToolFileOperation,
		Description: "Perform operations on workspace markdown documents",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"enum":        []string{"create", "read", "write", "append", "insert", "replace", "save_as", "list", "backup", "info"},
					"description": "The type of file operation to perform",
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Name of the markdown document to operate on",
					"default":     fileops.DefaultDocument,
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Content for write operations",
				},
				"line_number": map[string]any{
					"type":        "integer",
					"description": "Line number for insert operations (1-indexed)",
				},
				"pattern": map[string]any{
					"type":        "string",
					"description": "Regular expression pattern for replace operations",
				},
				"replacement": map[string]any{
					"type":        "string",
					"description": "Replacement text for replace operations",
				},
			},
			"required": []string{"operation"},
		},
	}
}

func (t FileOperationTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	op := strings.TrimSpace(stringArg(args, "operation"))
	filename := stringArg(args, "filename")
	if filename == "" {
		filename = fileops.DefaultDocument
	}
	content, hasContent := args["content"].(string)

	switch op {
	case "create":
		path, err := t.Store.Create(filename, content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "filepath": path, "message": "Created file: " + filename}, nil
	case "read":
		text, err := t.Store.Read(filename)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "content": text, "message": "Read file: " + filename}, nil
	case "write":
		if !hasContent {
			return nil, fmt.Errorf("content is required for write operation")
		}
		if err := t.Store.Write(filename, content); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "message": "Wrote to file: " + filename}, nil
	case "append":
		if !hasContent {
			return nil, fmt.Errorf("content is required for append operation")
		}
		if err := t.Store.Append(filename, content); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "message": "Appended to file: " + filename}, nil
	case "insert":
		line, ok := intArg(args, "line_number")
		if !hasContent || !ok {
			return nil, fmt.Errorf("content and line_number are required for insert operation")
		}
		if err := t.Store.InsertAt(filename, line, content); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "line_number": line, "message": fmt.Sprintf("Inserted content at line %d in %s", line, filename)}, nil
	case "replace":
		pattern := stringArg(args, "pattern")
		replacement, hasReplacement := args["replacement"].(string)
		if pattern == "" || !hasReplacement {
			return nil, fmt.Errorf("pattern and replacement are required for replace operation")
		}
		count, err := t.Store.Replace(filename, pattern, replacement)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "replacements": count, "message": fmt.Sprintf("Made %d replacements in %s", count, filename)}, nil
	case "save_as":
		path, err := t.Store.SaveAs(fileops.DefaultDocument, filename, content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "filepath": path, "message": "Saved as: " + filename}, nil
	case "list":
		names, err := t.Store.List()
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "files": names, "message": fmt.Sprintf("Found %d markdown documents", len(names))}, nil
	case "backup":
		path, err := t.Store.Backup(filename)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "backup_path": path, "message": "Created backup of " + filename}, nil
	case "info":
		info, err := t.Store.Info(filename)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "file_info": info}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
