// Package demotools provides small tools for exercising a ToolLoopAgent
// from the command line.
package demotools

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/toolloop/agentloop"
)

// CalculatorInput is the input to the calculator tool.
type CalculatorInput struct {
	Operation string  `json:"operation" jsonschema:"one of add, subtract, multiply, divide"`
	A         float64 `json:"a" jsonschema:"left operand"`
	B         float64 `json:"b" jsonschema:"right operand"`
}

// Calculator performs basic arithmetic.
func Calculator() agentloop.AgentTool {
	return agentloop.MustTool("calculator", "Perform basic arithmetic on two numbers.",
		func(_ context.Context, in CalculatorInput, _ agentloop.AgentContext) (string, error) {
			var v float64
			switch in.Operation {
			case "add":
				v = in.A + in.B
			case "subtract":
				v = in.A - in.B
			case "multiply":
				v = in.A * in.B
			case "divide":
				if in.B == 0 {
					return "", fmt.Errorf("division by zero")
				}
				v = in.A / in.B
			default:
				return "", fmt.Errorf("unknown operation %q", in.Operation)
			}
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return "", fmt.Errorf("result is not a finite number")
			}
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		})
}

// CurrentTimeInput is the input to the current_time tool.
type CurrentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone name, defaults to UTC"`
}

// CurrentTime reports the current time. now is injectable for tests; nil
// means time.Now.
func CurrentTime(now func() time.Time) agentloop.AgentTool {
	if now == nil {
		now = time.Now
	}
	return agentloop.MustTool("current_time", "Return the current date and time in RFC 3339 format.",
		func(_ context.Context, in CurrentTimeInput, _ agentloop.AgentContext) (string, error) {
			loc := time.UTC
			if in.Timezone != "" {
				l, err := time.LoadLocation(in.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", in.Timezone)
				}
				loc = l
			}
			return now().In(loc).Format(time.RFC3339), nil
		})
}

// Workspace roots the filesystem tools in a directory. Paths that escape
// the root are rejected.
type Workspace struct {
	Root string
	// AllowWrites lets write_file run without approval.
	AllowWrites bool
}

func (w Workspace) resolve(path string) (string, error) {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return "", err
	}
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(root, path)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return resolved, nil
}

// ReadFileInput is the input to the read_file tool.
type ReadFileInput struct {
	FilePath string `json:"file_path" jsonschema:"path relative to the workspace root"`
	Offset   int    `json:"offset,omitempty" jsonschema:"1-based line number to start reading from"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of lines to read, default 2000"`
}

const defaultReadLimit = 2000

// ReadFile returns line-numbered file content.
func (w Workspace) ReadFile() agentloop.AgentTool {
	return agentloop.MustTool("read_file", "Read a file from the workspace. Returns line-numbered content.",
		func(_ context.Context, in ReadFileInput, _ agentloop.AgentContext) (string, error) {
			if in.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			path, err := w.resolve(in.FilePath)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read_file: %w", err)
			}
			limit := in.Limit
			if limit <= 0 {
				limit = defaultReadLimit
			}
			return numberLines(string(data), in.Offset, limit), nil
		})
}

func numberLines(content string, offset, limit int) string {
	lines := strings.Split(content, "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String()
}

// ListDirectoryInput is the input to the list_directory tool.
type ListDirectoryInput struct {
	Path string `json:"path,omitempty" jsonschema:"directory relative to the workspace root, defaults to the root"`
}

// ListDirectory lists a directory's entries, directories first.
func (w Workspace) ListDirectory() agentloop.AgentTool {
	return agentloop.MustTool("list_directory", "List the entries of a workspace directory.",
		func(_ context.Context, in ListDirectoryInput, _ agentloop.AgentContext) (string, error) {
			path, err := w.resolve(in.Path)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("list_directory: %w", err)
			}
			sort.SliceStable(entries, func(i, j int) bool {
				if entries[i].IsDir() != entries[j].IsDir() {
					return entries[i].IsDir()
				}
				return entries[i].Name() < entries[j].Name()
			})
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintf(&sb, "%s/\n", e.Name())
					continue
				}
				size := int64(0)
				if info, err := e.Info(); err == nil {
					size = info.Size()
				}
				fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name(), size)
			}
			return sb.String(), nil
		})
}

// WriteFileInput is the input to the write_file tool.
type WriteFileInput struct {
	FilePath string `json:"file_path" jsonschema:"path relative to the workspace root"`
	Content  string `json:"content" jsonschema:"full file content to write"`
}

// WriteFile writes a file, creating parent directories. Unless AllowWrites
// is set every call requires approval and is never executed.
func (w Workspace) WriteFile() agentloop.AgentTool {
	return agentloop.MustTool("write_file", "Write content to a file in the workspace.",
		func(_ context.Context, in WriteFileInput, _ agentloop.AgentContext) (string, error) {
			path, err := w.resolve(in.FilePath)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("write_file: failed to create directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return "", fmt.Errorf("write_file: %w", err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.FilePath), nil
		},
		agentloop.WithApproval(agentloop.ApprovalWhen(func(context.Context, WriteFileInput, agentloop.AgentContext) (bool, error) {
			return !w.AllowWrites, nil
		})),
	)
}

// All returns every demo tool.
func All(w Workspace) []agentloop.AgentTool {
	return []agentloop.AgentTool{
		Calculator(),
		CurrentTime(nil),
		w.ReadFile(),
		w.ListDirectory(),
		w.WriteFile(),
	}
}
