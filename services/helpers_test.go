package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	interp := NewInterpreter(InterpreterConfig{Home: t.TempDir(), Logger: zerolog.Nop()})
	if err := interp.InitializeOnce(); err != nil {
		t.Fatalf("initialize interpreter: %v", err)
	}
	t.Cleanup(func() { _ = interp.ShutdownOnce() })
	return interp
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

var scriptSeq atomic.Int64

// writeScript places a processing module under a fresh base directory and
// returns the matching ScriptRef. Module names are unique per call since the
// search path is shared by everything loaded into one interpreter.
func writeScript(t *testing.T, source string) ScriptRef {
	t.Helper()
	base := t.TempDir()
	file := fmt.Sprintf("scripts/agent_%d.js", scriptSeq.Add(1))
	writeFile(t, base, file, source)
	return NewScriptRef(ScriptLayout{BaseDir: base, ScriptFile: file})
}

const echoScript = `
exports.process_message = function (text, sessionId, userId) {
  if (text === "ping") {
    return "pong";
  }
  if (arguments.length === 1) {
    return "one:" + text;
  }
  return text + "|" + sessionId + "|" + userId;
};
`

const asyncScript = `
exports.process_message = async function (text) {
  await new Promise(function (resolve) { setTimeout(resolve, 2); });
  return text === "ping" ? "pong-async" : text;
};
`
