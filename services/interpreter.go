package services

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

// searchRoot is the virtual global folder handed to the require registry.
// Lookups under it are answered from the live search path.
const searchRoot = "/@search"

// maxCallStackSize bounds script recursion; exceeding it fails the call.
const maxCallStackSize = 10000

// InterpreterConfig configures the process-wide interpreter.
type InterpreterConfig struct {
	// Home is the runtime home directory holding shared modules. Required.
	Home   string
	Logger zerolog.Logger
}

// Interpreter owns the single embedded execution context and serializes
// every entry into it.
type Interpreter struct {
	cfg InterpreterConfig
	log zerolog.Logger

	initOnce     sync.Once
	initErr      error
	shutdownOnce sync.Once
	shutDown     atomic.Bool

	mu    sync.Mutex
	ctx   *InterpreterContext
	loops atomic.Pointer[LoopManager]

	starts       atomic.Int64
	acquisitions atomic.Uint64
	waitNanos    atomic.Int64
}

// InterpreterContext is the state reachable only while holding the lock.
type InterpreterContext struct {
	Runtime    *goja.Runtime
	SearchPath *SearchPath
	Loops      *LoopManager

	programs map[string]cachedProgram
	log      zerolog.Logger
}

type cachedProgram struct {
	size    int64
	modTime time.Time
	program *goja.Program
}

// NewInterpreter returns an interpreter that starts on first use.
func NewInterpreter(cfg InterpreterConfig) *Interpreter {
	return &Interpreter{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "interpreter").Logger(),
	}
}

// InitializeOnce starts the execution context. Concurrent and repeated calls
// share the first call's result.
func (i *Interpreter) InitializeOnce() error {
	if i.shutDown.Load() {
		return ErrEngineUnavailable
	}
	i.initOnce.Do(func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		if i.shutDown.Load() {
			i.initErr = ErrEngineUnavailable
			return
		}
		ctx, err := i.start()
		if err != nil {
			i.initErr = err
			i.log.Error().Err(err).Msg("interpreter failed to start")
			return
		}
		i.ctx = ctx
	})
	return i.initErr
}

func (i *Interpreter) start() (*InterpreterContext, error) {
	if i.cfg.Home == "" {
		return nil, fmt.Errorf("%w: set RUNTIME_HOME", ErrRuntimeHome)
	}
	if !isDir(i.cfg.Home) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRuntimeHome, i.cfg.Home)
	}
	i.starts.Add(1)
	i.log.Info().Str("home", i.cfg.Home).Msg("starting interpreter")

	ic := &InterpreterContext{
		Runtime:    goja.New(),
		SearchPath: &SearchPath{},
		programs:   make(map[string]cachedProgram),
		log:        i.log,
	}
	ic.Runtime.SetMaxCallStackSize(maxCallStackSize)
	ic.Loops = newLoopManager(ic.log)
	i.loops.Store(ic.Loops)

	registry := require.NewRegistry(
		require.WithLoader(ic.loadSource),
		require.WithGlobalFolders(searchRoot, i.cfg.Home),
	)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{log: ic.log}))
	registry.Enable(ic.Runtime)
	console.Enable(ic.Runtime)

	if err := ic.installTimers(); err != nil {
		return nil, fmt.Errorf("install timers: %w", err)
	}
	return ic, nil
}

// loadSource answers require() lookups. Paths under searchRoot are looked up
// in the search path; everything else is read from disk.
func (ic *InterpreterContext) loadSource(p string) ([]byte, error) {
	if rel, ok := strings.CutPrefix(p, searchRoot+"/"); ok {
		file, found := ic.SearchPath.Lookup(path.Clean(rel))
		if !found {
			return nil, require.ModuleFileDoesNotExistError
		}
		p = file
	}
	return require.DefaultSourceLoader(p)
}

// WithExclusiveAccess blocks until the caller holds the context, runs fn and
// releases the context on every exit path. It is not reentrant.
func (i *Interpreter) WithExclusiveAccess(fn func(*InterpreterContext) error) (err error) {
	if err := i.InitializeOnce(); err != nil {
		return err
	}

	start := time.Now()
	i.mu.Lock()
	defer i.mu.Unlock()
	i.waitNanos.Add(int64(time.Since(start)))
	i.acquisitions.Add(1)

	if i.ctx == nil {
		return ErrEngineUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInterpreterPanic, r)
		}
	}()
	return fn(i.ctx)
}

// ShutdownOnce tears the context down after the current holder releases it.
// Every later operation fails with ErrEngineUnavailable.
func (i *Interpreter) ShutdownOnce() error {
	i.shutdownOnce.Do(func() {
		i.shutDown.Store(true)
		i.mu.Lock()
		defer i.mu.Unlock()
		if i.ctx == nil {
			return
		}
		i.ctx.Loops.closeCurrent()
		i.ctx = nil
		i.log.Info().Msg("interpreter shut down")
	})
	return nil
}

// Stats returns lock usage counters. It does not wait for the lock.
func (i *Interpreter) Stats() models.InterpreterStats {
	stats := models.InterpreterStats{
		Starts:       i.starts.Load(),
		Acquisitions: i.acquisitions.Load(),
		TotalWait:    time.Duration(i.waitNanos.Load()),
		ShutDown:     i.shutDown.Load(),
	}
	if loops := i.loops.Load(); loops != nil {
		stats.LoopsCreated = loops.Created()
	}
	return stats
}

type consolePrinter struct {
	log zerolog.Logger
}

func (p consolePrinter) Log(s string)   { p.log.Info().Str("source", "console").Msg(s) }
func (p consolePrinter) Warn(s string)  { p.log.Warn().Str("source", "console").Msg(s) }
func (p consolePrinter) Error(s string) { p.log.Error().Str("source", "console").Msg(s) }
