package services

import (
	"os"
	"path/filepath"
	"strings"
)

// moduleSeparator separates segments of a module identifier.
const moduleSeparator = "."

// SearchPath is the ordered list of directories consulted when resolving a
// module identifier. It is only touched while holding the interpreter lock.
type SearchPath struct {
	entries []string
}

// Append adds dir unless it is already present. It reports whether the
// entry was added.
func (p *SearchPath) Append(dir string) bool {
	dir = filepath.Clean(dir)
	for _, e := range p.entries {
		if e == dir {
			return false
		}
	}
	p.entries = append(p.entries, dir)
	return true
}

// Entries returns a copy of the current entries.
func (p *SearchPath) Entries() []string {
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Resolve maps a module identifier such as "scripts.chat" onto the first
// matching file: <entry>/scripts/chat.js or <entry>/scripts/chat/index.js.
func (p *SearchPath) Resolve(moduleID string) (string, bool) {
	if moduleID == "" {
		return "", false
	}
	rel := filepath.Join(strings.Split(moduleID, moduleSeparator)...)
	for _, entry := range p.entries {
		for _, candidate := range []string{
			filepath.Join(entry, rel+".js"),
			filepath.Join(entry, rel, "index.js"),
		} {
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// Lookup finds rel (a slash separated relative path) under the first entry
// that contains it.
func (p *SearchPath) Lookup(rel string) (string, bool) {
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	for _, entry := range p.entries {
		candidate := filepath.Join(entry, rel)
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
