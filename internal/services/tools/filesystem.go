package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

const maxFileBytes = 64 * 1024

// FileSystemTool exposes read-only access to a sandboxed directory. Paths
// are resolved relative to the root; escaping the root is an error.
type FileSystemTool struct {
	root   string
	logger *logrus.Logger
}

func NewFileSystemTool(root string, logger *logrus.Logger) *FileSystemTool {
	return &FileSystemTool{root: filepath.Clean(root), logger: logger}
}

func (t *FileSystemTool) Name() string { return "read_file" }

func (t *FileSystemTool) Description() string {
	return "Read a text file or list a directory inside the assistant's shared folder. " +
		"Pass a relative path; omit it to list the folder root."
}

func (t *FileSystemTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"path": {Type: "string", Description: "Relative path of the file or directory"},
		},
	}
}

func (t *FileSystemTool) Execute(ctx context.Context, args map[string]models.Value) (string, error) {
	rel, _ := args["path"].AsString()

	target, err := t.resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	if info.IsDir() {
		return t.listDir(target)
	}
	return t.readFile(target, info.Size())
}

// resolve joins rel onto the sandbox root and rejects escapes.
func (t *FileSystemTool) resolve(rel string) (string, error) {
	target := filepath.Clean(filepath.Join(t.root, rel))
	if target != t.root && !strings.HasPrefix(target, t.root+string(filepath.Separator)) {
		t.logger.WithField("path", rel).Warn("Rejected path outside sandbox root")
		return "", fmt.Errorf("read_file: path %q is outside the shared folder", rel)
	}
	return target, nil
}

func (t *FileSystemTool) listDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			b.WriteString(entry.Name() + "/\n")
		} else {
			b.WriteString(entry.Name() + "\n")
		}
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (t *FileSystemTool) readFile(path string, size int64) (string, error) {
	if size > maxFileBytes {
		return "", fmt.Errorf("read_file: file is too large (%d bytes)", size)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}
