package services

import (
	"path/filepath"
	"strings"
)

const scriptExt = ".js"

// ScriptRef identifies the processing module a worker loads.
type ScriptRef struct {
	ModuleID    string
	File        string
	SearchPaths []string
	// Optional entries are skipped with a warning when the directory is missing.
	Optional []string
}

// ScriptLayout describes where the processing script lives relative to a
// base directory.
type ScriptLayout struct {
	BaseDir       string
	ScriptFile    string
	DependencyDir string
	ProjectRoot   string
}

// NewScriptRef derives the module identifier and search path for a layout.
// The identifier is the script file name without its extension and with path
// separators replaced by the module separator.
func NewScriptRef(layout ScriptLayout) ScriptRef {
	base := layout.BaseDir
	if base == "" {
		base = "."
	}
	file := filepath.Join(base, layout.ScriptFile)

	ref := ScriptRef{
		ModuleID: ModuleIDFromFile(layout.ScriptFile),
		File:     file,
		SearchPaths: []string{
			base,
			filepath.Dir(file),
		},
	}
	if layout.DependencyDir != "" {
		dep := resolveUnder(base, layout.DependencyDir)
		ref.SearchPaths = append(ref.SearchPaths, dep)
		ref.Optional = append(ref.Optional, dep)
	}
	if layout.ProjectRoot != "" {
		root := resolveUnder(base, layout.ProjectRoot)
		ref.SearchPaths = append(ref.SearchPaths, root)
		ref.Optional = append(ref.Optional, root)
	}
	return ref
}

// ModuleIDFromFile converts "Scripts/chat.js" into "Scripts.chat".
func ModuleIDFromFile(scriptFile string) string {
	id := strings.ReplaceAll(scriptFile, "\\", "/")
	id = strings.TrimPrefix(id, "./")
	if strings.HasSuffix(strings.ToLower(id), scriptExt) {
		id = id[:len(id)-len(scriptExt)]
	}
	return strings.ReplaceAll(id, "/", moduleSeparator)
}

func resolveUnder(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func (r ScriptRef) optional(dir string) bool {
	for _, o := range r.Optional {
		if o == dir {
			return true
		}
	}
	return false
}
