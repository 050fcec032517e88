package services

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

func TestLoopManagerReplacesClosedLoop(t *testing.T) {
	t.Parallel()

	m := newLoopManager(zerolog.Nop())
	first := m.Current()
	if m.Current() != first {
		t.Fatal("open loop must be reused")
	}
	first.Close()

	second := m.Current()
	if second == first || second.Closed() {
		t.Fatal("closed loop was not replaced")
	}
	if m.Created() != 2 {
		t.Fatalf("created = %d, want 2", m.Created())
	}
}

func runPromise(t *testing.T, interp *Interpreter, src string) (string, error) {
	t.Helper()
	var out string
	err := interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		v, err := ic.Runtime.RunString(src)
		if err != nil {
			return err
		}
		p, ok := v.Export().(*goja.Promise)
		if !ok {
			t.Fatalf("%q did not produce a promise", src)
		}
		res, err := ic.Loops.RunToCompletion(p)
		if err != nil {
			return err
		}
		out = res.String()
		return nil
	})
	return out, err
}

func TestRunToCompletionFiresTimersInOrder(t *testing.T) {
	t.Parallel()

	interp := newTestInterpreter(t)
	got, err := runPromise(t, interp, `
		new Promise(function (resolve) {
			var seen = [];
			setTimeout(function () { seen.push("b"); }, 4);
			setTimeout(function () { seen.push("a"); }, 1);
			var skipped = setTimeout(function () { seen.push("x"); }, 2);
			clearTimeout(skipped);
			setImmediate(function () { seen.push("now"); });
			setTimeout(function () { resolve(seen.join(",")); }, 6);
		})`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "now,a,b" {
		t.Fatalf("order = %q", got)
	}
}

func TestRunToCompletionIntervalUntilCleared(t *testing.T) {
	t.Parallel()

	interp := newTestInterpreter(t)
	got, err := runPromise(t, interp, `
		new Promise(function (resolve) {
			var n = 0;
			var id = setInterval(function (step) {
				n += step;
				if (n >= 3) {
					clearInterval(id);
					resolve(n);
				}
			}, 1, 1);
		})`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "3" {
		t.Fatalf("result = %q", got)
	}
}

func TestRunToCompletionReportsStalledAndRejected(t *testing.T) {
	t.Parallel()

	interp := newTestInterpreter(t)

	if _, err := runPromise(t, interp, `new Promise(function () {})`); !errors.Is(err, ErrAwaitableStalled) {
		t.Fatalf("expected ErrAwaitableStalled, got %v", err)
	}

	_, err := runPromise(t, interp, `new Promise(function (_, reject) {
		setTimeout(function () { reject(new Error("late failure")); }, 1);
	})`)
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestClosedLoopIsReplacedForNextRun(t *testing.T) {
	t.Parallel()

	interp := newTestInterpreter(t)
	src := `new Promise(function (resolve) { setTimeout(function () { resolve("done"); }, 1); })`

	if _, err := runPromise(t, interp, src); err != nil {
		t.Fatalf("first run: %v", err)
	}
	var closedID uint64
	err := interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		loop := ic.Loops.Current()
		closedID = loop.ID()
		loop.Close()
		return nil
	})
	if err != nil {
		t.Fatalf("close loop: %v", err)
	}

	got, err := runPromise(t, interp, src)
	if err != nil {
		t.Fatalf("run after close: %v", err)
	}
	if got != "done" {
		t.Fatalf("result = %q", got)
	}

	var currentID uint64
	_ = interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		currentID = ic.Loops.Current().ID()
		return nil
	})
	if currentID == closedID {
		t.Fatal("closed loop was reused")
	}
	if created := interp.Stats().LoopsCreated; created != 2 {
		t.Fatalf("loops created = %d, want 2", created)
	}
}

func TestRunUntilSettledSkipsForeignTimers(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	callable := func(fn func()) goja.Callable {
		c, ok := goja.AssertFunction(rt.ToValue(func(goja.FunctionCall) goja.Value {
			fn()
			return goja.Undefined()
		}))
		if !ok {
			t.Fatal("not callable")
		}
		return c
	}

	p, resolve, _ := rt.NewPromise()
	foreignRan := false
	l := newEventLoop(1, zerolog.Nop())
	l.schedule(1, callable(func() { foreignRan = true }), 0, false, nil)
	l.schedule(1, callable(func() { foreignRan = true }), 0, true, nil)
	l.schedule(2, callable(func() { resolve("mine") }), 1, false, nil)
	if l.Pending() != 3 {
		t.Fatalf("pending = %d", l.Pending())
	}

	got, err := l.runUntilSettled(p, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.String() != "mine" {
		t.Fatalf("result = %s", got)
	}
	if foreignRan {
		t.Fatal("timer of another owner ran")
	}
	if l.Pending() != 0 {
		t.Fatalf("pending after run = %d", l.Pending())
	}
}

func TestEndDiscardsPendingTimers(t *testing.T) {
	t.Parallel()

	interp := newTestInterpreter(t)
	err := interp.WithExclusiveAccess(func(ic *InterpreterContext) error {
		ic.Loops.Begin()
		if _, err := ic.Runtime.RunString(`setTimeout(function () {}, 50); setInterval(function () {}, 1);`); err != nil {
			return err
		}
		if n := ic.Loops.Current().Pending(); n != 2 {
			t.Errorf("pending during invocation = %d", n)
		}
		ic.Loops.End()
		if n := ic.Loops.Current().Pending(); n != 0 {
			t.Errorf("pending after End = %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("access: %v", err)
	}
}
