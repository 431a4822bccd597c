package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/workspace"
)

const (
	fsListMaxDepth   = 5
	fsListMaxEntries = 5000
)

func fsListTool() *Tool {
	return &Tool{
		Name:        "fs_list",
		Description: "List files and directories under a workspace path as a text tree.",
		Risk:        RiskReader,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "relative path, defaults to workspace root"},
				"depth": {"type": "integer", "minimum": 1, "maximum": 5},
				"max_entries": {"type": "integer", "minimum": 1, "maximum": 5000}
			}
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				Path       string `json:"path"`
				Depth      int    `json:"depth"`
				MaxEntries int    `json:"max_entries"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			if in.Path == "" {
				in.Path = "."
			}
			if in.Depth <= 0 || in.Depth > fsListMaxDepth {
				in.Depth = fsListMaxDepth
			}
			if in.MaxEntries <= 0 || in.MaxEntries > fsListMaxEntries {
				in.MaxEntries = fsListMaxEntries
			}

			root, err := workspace.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return nil, err
			}

			var b strings.Builder
			count := 0
			var walk func(dir string, depth int, indent string) error
			walk = func(dir string, depth int, indent string) error {
				entries, err := os.ReadDir(dir)
				if err != nil {
					return err
				}
				sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
				for _, e := range entries {
					if count >= in.MaxEntries {
						return nil
					}
					count++
					name := e.Name()
					if e.IsDir() {
						name += "/"
					}
					b.WriteString(indent + name + "\n")
					if e.IsDir() && depth > 1 {
						if err := walk(filepath.Join(dir, e.Name()), depth-1, indent+"  "); err != nil {
							return err
						}
					}
				}
				return nil
			}
			if err := walk(root, in.Depth, ""); err != nil {
				return nil, err
			}
			out := b.String()
			if out == "" {
				out = "(empty)"
			}
			if count >= in.MaxEntries {
				out += fmt.Sprintf("\n(listing capped at %d entries)", in.MaxEntries)
			}
			return &Result{ForLLM: out}, nil
		},
	}
}

func fsReadTool() *Tool {
	return &Tool{
		Name:        "fs_read",
		Description: "Read a UTF-8 text file from the workspace. Long files are truncated.",
		Risk:        RiskReader,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"}
			},
			"required": ["path"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			abs, err := workspace.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, err
			}
			return &Result{ForLLM: Truncate(string(data), tc.MaxFileReadChars)}, nil
		},
	}
}

func fsWriteTool() *Tool {
	return &Tool{
		Name:        "fs_write",
		Description: "Write a text file within the workspace, overwriting or appending.",
		Risk:        RiskWrite,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"},
				"mode": {"type": "string", "enum": ["overwrite", "append"]}
			},
			"required": ["path", "content"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
				Mode    string `json:"mode"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			abs, err := workspace.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, err
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if in.Mode == "append" {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			f, err := os.OpenFile(abs, flags, 0o644)
			if err != nil {
				return nil, err
			}
			n, err := f.WriteString(in.Content)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return nil, err
			}
			return &Result{ForLLM: fmt.Sprintf("wrote %d bytes to %s", n, in.Path)}, nil
		},
	}
}
