package lsp

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
)

// ServerDef describes a language server the manager knows how to launch.
type ServerDef struct {
	Name    string
	Command string
	Args    []string
	// Languages maps a file extension (with dot) to its language ID.
	Languages map[string]protocol.LanguageIdentifier
}

// Handles reports whether the server covers files with extension ext.
func (s ServerDef) Handles(ext string) bool {
	_, ok := s.Languages[strings.ToLower(ext)]
	return ok
}

// LanguageID returns the language ID for path, or "plaintext".
func (s ServerDef) LanguageID(path string) protocol.LanguageIdentifier {
	if id, ok := s.Languages[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}

// DefaultServers is the detection table, highest priority first.
var DefaultServers = []ServerDef{
	{
		Name:    "typescript",
		Command: "typescript-language-server",
		Args:    []string{"--stdio"},
		Languages: map[string]protocol.LanguageIdentifier{
			".ts":  protocol.TypeScriptLanguage,
			".tsx": protocol.TypeScriptReactLanguage,
			".mts": protocol.TypeScriptLanguage,
			".cts": protocol.TypeScriptLanguage,
			".js":  protocol.JavaScriptLanguage,
			".jsx": protocol.JavaScriptReactLanguage,
			".mjs": protocol.JavaScriptLanguage,
			".cjs": protocol.JavaScriptLanguage,
		},
	},
	{
		Name:    "go",
		Command: "gopls",
		Languages: map[string]protocol.LanguageIdentifier{
			".go": protocol.GoLanguage,
		},
	},
	{
		Name:    "python",
		Command: "pyright-langserver",
		Args:    []string{"--stdio"},
		Languages: map[string]protocol.LanguageIdentifier{
			".py":  protocol.PythonLanguage,
			".pyi": protocol.PythonLanguage,
		},
	},
	{
		Name:    "rust",
		Command: "rust-analyzer",
		Languages: map[string]protocol.LanguageIdentifier{
			".rs": protocol.RustLanguage,
		},
	},
	{
		Name:    "c",
		Command: "clangd",
		Languages: map[string]protocol.LanguageIdentifier{
			".c":   protocol.CLanguage,
			".h":   protocol.CLanguage,
			".cc":  protocol.CppLanguage,
			".cpp": protocol.CppLanguage,
			".cxx": protocol.CppLanguage,
			".hpp": protocol.CppLanguage,
		},
	},
}

// LookPathFunc resolves a command name to an executable path.
type LookPathFunc func(name string) (string, error)

// findExecutable looks for command in the workspace's node_modules/.bin
// first, then on PATH.
func findExecutable(root, command string, lookPath LookPathFunc) (string, bool) {
	bundled := filepath.Join(root, "node_modules", ".bin", command)
	if info, err := os.Stat(bundled); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return bundled, true
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(command)
	if err != nil {
		return "", false
	}
	return path, true
}
