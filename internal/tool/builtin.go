package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentkit-run/agentkit/internal/core"
)

// RegisterBuiltins adds the small set of filesystem tools every task's
// working directory needs regardless of workspace: read a file, write a
// file, list a directory. Grounded on kadirpekel-hector's
// pkg/tool/filetool package, collapsed from its FunctionTool/jsonschema
// reflection machinery to plain core.ToolHandler closures over workingDir,
// since every invocation already carries its own working directory.
func RegisterBuiltins(c *Catalogue) error {
	tools := []struct {
		descriptor core.ToolDescriptor
		handler    core.ToolHandler
	}{
		{
			descriptor: core.ToolDescriptor{
				Name:        "read_file",
				Description: "Read the contents of a file relative to the task's working directory.",
				InputSchema: core.ToolInputSchema{
					Type: "object",
					Properties: map[string]core.ToolSchemaProperty{
						"path": {Type: "string", Description: "file path relative to the working directory"},
					},
					Required: []string{"path"},
				},
				RiskLevel: core.RiskLow,
			},
			handler: readFileHandler,
		},
		{
			descriptor: core.ToolDescriptor{
				Name:        "write_file",
				Description: "Write content to a file relative to the task's working directory, creating parent directories as needed.",
				InputSchema: core.ToolInputSchema{
					Type: "object",
					Properties: map[string]core.ToolSchemaProperty{
						"path":    {Type: "string", Description: "file path relative to the working directory"},
						"content": {Type: "string", Description: "content to write"},
					},
					Required: []string{"path", "content"},
				},
				RiskLevel:        core.RiskMedium,
				RequiresApproval: true,
			},
			handler: writeFileHandler,
		},
		{
			descriptor: core.ToolDescriptor{
				Name:        "list_dir",
				Description: "List the entries of a directory relative to the task's working directory.",
				InputSchema: core.ToolInputSchema{
					Type: "object",
					Properties: map[string]core.ToolSchemaProperty{
						"path": {Type: "string", Description: "directory path relative to the working directory, defaults to \".\""},
					},
				},
				RiskLevel: core.RiskLow,
			},
			handler: listDirHandler,
		},
	}

	for _, t := range tools {
		if err := c.Register(t.descriptor, t.handler); err != nil {
			return err
		}
	}
	return nil
}

// resolveInWorkingDir rejects any path that escapes workingDir, the same
// guard kadirpekel-hector's filetool.validatePath applies before touching
// disk.
func resolveInWorkingDir(workingDir, path string) (string, error) {
	clean := filepath.Clean(filepath.Join(workingDir, path))
	base, err := filepath.Abs(workingDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return abs, nil
}

func readFileHandler(_ context.Context, inv *core.ToolInvocation, workingDir string) (*core.ToolResult, error) {
	path, _ := inv.Arguments["path"].(string)
	full, err := resolveInWorkingDir(workingDir, path)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	return &core.ToolResult{Output: string(data)}, nil
}

func writeFileHandler(_ context.Context, inv *core.ToolInvocation, workingDir string) (*core.ToolResult, error) {
	path, _ := inv.Arguments["path"].(string)
	content, _ := inv.Arguments["content"].(string)
	full, err := resolveInWorkingDir(workingDir, path)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	return &core.ToolResult{Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

func listDirHandler(_ context.Context, inv *core.ToolInvocation, workingDir string) (*core.ToolResult, error) {
	path, _ := inv.Arguments["path"].(string)
	if path == "" {
		path = "."
	}
	full, err := resolveInWorkingDir(workingDir, path)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return &core.ToolResult{IsError: true, Error: err.Error()}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return &core.ToolResult{Output: names}, nil
}
