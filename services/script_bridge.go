package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

// ModuleHandle references a module loaded by one ScriptBridge. It becomes
// invalid when that bridge is closed.
type ModuleHandle struct {
	moduleID string
	path     string
	exports  *goja.Object
	owner    *ScriptBridge
}

// ModuleID returns the identifier the module was loaded under.
func (h *ModuleHandle) ModuleID() string { return h.moduleID }

// Path returns the file the module was evaluated from.
func (h *ModuleHandle) Path() string { return h.path }

// ScriptBridge loads processing modules into the shared interpreter and
// invokes their functions. Every runtime error is returned as an Outcome.
type ScriptBridge struct {
	interp *Interpreter
	log    zerolog.Logger

	mu      sync.Mutex
	handles []*ModuleHandle
	closed  bool
}

// NewScriptBridge creates a bridge bound to interp.
func NewScriptBridge(interp *Interpreter, log zerolog.Logger) *ScriptBridge {
	return &ScriptBridge{
		interp: interp,
		log:    log.With().Str("component", "script_bridge").Logger(),
	}
}

// Load makes the search path entries of ref available and evaluates the
// module ref names.
func (b *ScriptBridge) Load(ctx context.Context, ref ScriptRef) (*ModuleHandle, error) {
	var handle *ModuleHandle
	err := capture(ctx, "ScriptBridge.Load", func(ctx context.Context) error {
		var err error
		handle, err = b.load(ref)
		if seg := xray.GetSegment(ctx); seg != nil {
			seg.AddMetadata("script.module", ref.ModuleID)
		}
		return err
	})
	return handle, err
}

func (b *ScriptBridge) load(ref ScriptRef) (*ModuleHandle, error) {
	if b.interp.shutDown.Load() {
		return nil, ErrEngineUnavailable
	}
	if ref.File != "" && !isFile(ref.File) {
		return nil, fmt.Errorf("%w: %s", ErrScriptUnavailable, ref.File)
	}

	handle := &ModuleHandle{moduleID: ref.ModuleID, owner: b}
	err := b.interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		// Timers started while the module body runs are discarded with it.
		ic.Loops.Begin()
		defer ic.Loops.End()

		for _, dir := range ref.SearchPaths {
			dir = filepath.Clean(dir)
			if ref.optional(dir) && !isDir(dir) {
				b.log.Warn().Str("dir", dir).Str("module", ref.ModuleID).Msg("search path directory not found, skipping")
				continue
			}
			if ic.SearchPath.Append(dir) {
				b.log.Debug().Str("dir", dir).Msg("appended to search path")
			}
		}

		path, ok := ic.SearchPath.Resolve(ref.ModuleID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrModuleNotFound, ref.ModuleID)
		}
		exports, err := ic.evaluateModule(path)
		if err != nil {
			return fmt.Errorf("%w: evaluate %s: %v", ErrModuleNotFound, ref.ModuleID, err)
		}
		handle.path = path
		handle.exports = exports
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInterpreterPanic) {
			err = fmt.Errorf("%w: %v", ErrModuleNotFound, err)
		}
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: bridge closed", ErrScriptUnavailable)
	}
	b.handles = append(b.handles, handle)
	b.log.Info().Str("module", ref.ModuleID).Str("path", handle.path).Msg("module loaded")
	return handle, nil
}

// Invoke calls functionName on the module behind handle with args and
// classifies the result. Awaitable results are driven to completion before
// the interpreter is released.
func (b *ScriptBridge) Invoke(ctx context.Context, handle *ModuleHandle, functionName string, args ...any) models.Outcome {
	var outcome models.Outcome
	_ = capture(ctx, "ScriptBridge.Invoke", func(ctx context.Context) error {
		outcome = b.invoke(handle, functionName, args)
		if seg := xray.GetSegment(ctx); seg != nil {
			seg.AddMetadata("script.function", functionName)
			seg.AddMetadata("script.ok", outcome.OK())
		}
		if outcome.Failure != nil {
			return outcome.Failure
		}
		return nil
	})
	return outcome
}

func (b *ScriptBridge) invoke(handle *ModuleHandle, functionName string, args []any) models.Outcome {
	if b.interp.shutDown.Load() {
		return models.Fail(models.FailureEngineUnavailable, ErrEngineUnavailable)
	}
	if err := b.validate(handle); err != nil {
		return models.Fail(models.FailureInvocation, err)
	}

	var outcome models.Outcome
	err := b.interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		ic.Loops.Begin()
		defer ic.Loops.End()

		rt := ic.Runtime
		fn, ok := goja.AssertFunction(handle.exports.Get(functionName))
		if !ok {
			return fmt.Errorf("%w: %s is not a function in %s", ErrInvocation, functionName, handle.moduleID)
		}
		jsArgs, err := toValues(rt, args)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvocation, err)
		}
		ret, err := fn(handle.exports, jsArgs...)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvocation, functionName, err)
		}

		awaitable, isAwaitable, err := asAwaitable(rt, ret)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvocation, err)
		}
		if isAwaitable {
			ret, err = ic.Loops.RunToCompletion(awaitable)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrAsyncExecution, functionName, err)
			}
		}
		outcome = models.Success(stringify(rt, ret))
		return nil
	})
	if err != nil {
		b.log.Warn().Err(err).Str("module", handle.moduleID).Str("function", functionName).Msg("invocation failed")
		return models.Fail(failureKind(err), err)
	}
	return outcome
}

func (b *ScriptBridge) validate(handle *ModuleHandle) error {
	if handle == nil {
		return fmt.Errorf("%w: nil module handle", ErrInvocation)
	}
	if handle.owner != b {
		return fmt.Errorf("%w: module handle belongs to another bridge", ErrInvocation)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: module handle released", ErrInvocation)
	}
	return nil
}

// Close releases every handle loaded through the bridge.
func (b *ScriptBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, h := range b.handles {
		h.exports = nil
	}
	b.handles = nil
}

// evaluateModule runs the file as a CommonJS module with fresh module state.
// Compiled programs are cached until the file changes.
func (ic *InterpreterContext) evaluateModule(path string) (*goja.Object, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	cached, ok := ic.programs[path]
	if !ok || cached.size != info.Size() || !cached.modTime.Equal(info.ModTime()) {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		wrapped := "(function(exports, require, module, __filename, __dirname) {" + string(src) + "\n})"
		program, err := goja.Compile(path, wrapped, false)
		if err != nil {
			return nil, err
		}
		cached = cachedProgram{size: info.Size(), modTime: info.ModTime(), program: program}
		ic.programs[path] = cached
	}

	rt := ic.Runtime
	wrapper, err := rt.RunProgram(cached.program)
	if err != nil {
		return nil, err
	}
	call, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("module wrapper is not callable")
	}

	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if err := module.Set("id", path); err != nil {
		return nil, err
	}
	_, err = call(module, exports, rt.Get("require"), module, rt.ToValue(path), rt.ToValue(filepath.Dir(path)))
	if err != nil {
		return nil, err
	}

	result := module.Get("exports")
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, fmt.Errorf("module exports is empty")
	}
	return result.ToObject(rt), nil
}
