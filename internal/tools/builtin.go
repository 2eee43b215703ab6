package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// RegisterBuiltin adds the workspace file tools to the registry.
func RegisterBuiltin(r *Registry, workspace string) error {
	for _, t := range []Tool{
		NewReadFileTool(workspace),
		NewWriteFileTool(workspace),
		NewListFilesTool(workspace),
		NewWebFetchTool(),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewReadFileTool reads a file relative to the workspace.
func NewReadFileTool(workspace string) Tool {
	return NewFuncTool("read_file", "Read a text file from the workspace. Returns the file content.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the workspace root",
				},
			},
			"required": []interface{}{"path"},
		},
		func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
			full, err := resolveWorkspacePath(workspace, stringArg(args, "path"))
			if err != nil {
				return protocol.ErrorResult(callID, err.Error()), nil
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return protocol.ErrorResult(callID, fmt.Sprintf("read: %v", err)), nil
			}
			return protocol.TextResult(callID, string(data)), nil
		})
}

// NewWriteFileTool writes a file relative to the workspace, creating
// parent directories as needed.
func NewWriteFileTool(workspace string) Tool {
	return NewFuncTool("write_file", "Write a text file into the workspace, replacing any existing content.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the workspace root",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content to write",
				},
			},
			"required": []interface{}{"path", "content"},
		},
		func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
			full, err := resolveWorkspacePath(workspace, stringArg(args, "path"))
			if err != nil {
				return protocol.ErrorResult(callID, err.Error()), nil
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return protocol.ErrorResult(callID, fmt.Sprintf("mkdir: %v", err)), nil
			}
			content := stringArg(args, "content")
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return protocol.ErrorResult(callID, fmt.Sprintf("write: %v", err)), nil
			}
			return protocol.TextResult(callID, fmt.Sprintf("wrote %d bytes to %s", len(content), stringArg(args, "path"))), nil
		})
}

// NewListFilesTool lists workspace files under an optional subpath.
func NewListFilesTool(workspace string) Tool {
	return NewFuncTool("list_files", "List files in the workspace, optionally under a subdirectory.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Subdirectory to list; defaults to the workspace root",
				},
			},
		},
		func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
			sub := stringArg(args, "path")
			root := workspace
			if sub != "" {
				full, err := resolveWorkspacePath(workspace, sub)
				if err != nil {
					return protocol.ErrorResult(callID, err.Error()), nil
				}
				root = full
			}
			var names []string
			err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return err
				}
				rel, relErr := filepath.Rel(workspace, path)
				if relErr != nil {
					return relErr
				}
				names = append(names, filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				return protocol.ErrorResult(callID, fmt.Sprintf("list: %v", err)), nil
			}
			sort.Strings(names)
			if len(names) == 0 {
				return protocol.TextResult(callID, "no files"), nil
			}
			return protocol.TextResult(callID, strings.Join(names, "\n")), nil
		})
}

// resolveWorkspacePath keeps tool paths inside the workspace.
func resolveWorkspacePath(workspace, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", p)
	}
	return filepath.Join(workspace, clean), nil
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}
