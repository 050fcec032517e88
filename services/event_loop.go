package services

import (
	"container/heap"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

const minInterval = time.Millisecond

type timer struct {
	id       int64
	owner    uint64
	due      time.Time
	interval time.Duration
	seq      uint64
	fn       goja.Callable
	args     []goja.Value
	index    int
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(a, b int) bool {
	if q[a].due.Equal(q[b].due) {
		return q[a].seq < q[b].seq
	}
	return q[a].due.Before(q[b].due)
}

func (q timerQueue) Swap(a, b int) {
	q[a], q[b] = q[b], q[a]
	q[a].index = a
	q[b].index = b
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// EventLoop runs timer callbacks scheduled by scripts until an awaitable
// settles. Each timer belongs to the invocation that scheduled it and only
// runs while that invocation drives the loop. Once closed it never runs again.
type EventLoop struct {
	id     uint64
	queue  timerQueue
	timers map[int64]*timer
	nextID int64
	seq    uint64
	closed bool
	log    zerolog.Logger
}

func newEventLoop(id uint64, log zerolog.Logger) *EventLoop {
	return &EventLoop{id: id, timers: make(map[int64]*timer), log: log}
}

// ID identifies the loop within the process.
func (l *EventLoop) ID() uint64 { return l.id }

// Closed reports whether the loop has been closed.
func (l *EventLoop) Closed() bool { return l.closed }

// Pending returns the number of scheduled timers.
func (l *EventLoop) Pending() int { return len(l.queue) }

// Close drops every scheduled timer and marks the loop unusable.
func (l *EventLoop) Close() {
	l.closed = true
	l.clear()
}

// clear drops every scheduled timer and returns how many there were.
func (l *EventLoop) clear() int {
	n := len(l.queue)
	l.queue = nil
	l.timers = make(map[int64]*timer)
	return n
}

func (l *EventLoop) schedule(owner uint64, fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	l.nextID++
	l.seq++
	t := &timer{
		id:    l.nextID,
		owner: owner,
		due:   time.Now().Add(delay),
		seq:   l.seq,
		fn:    fn,
		args:  args,
	}
	if repeat {
		t.interval = max(delay, minInterval)
	}
	l.timers[t.id] = t
	heap.Push(&l.queue, t)
	return t.id
}

func (l *EventLoop) cancel(id int64) {
	t, ok := l.timers[id]
	if !ok {
		return
	}
	delete(l.timers, id)
	if t.index >= 0 {
		heap.Remove(&l.queue, t.index)
	}
}

// runUntilSettled fires the timers of owner in due order until p is no
// longer pending. Timers of any other owner are dropped without running.
// Promise reactions run when each callback returns to the top level.
func (l *EventLoop) runUntilSettled(p *goja.Promise, owner uint64) (goja.Value, error) {
	if l.closed {
		return nil, ErrLoopClosed
	}

	for p.State() == goja.PromiseStatePending {
		if l.closed {
			return nil, ErrLoopClosed
		}
		if len(l.queue) == 0 {
			return nil, ErrAwaitableStalled
		}
		t := heap.Pop(&l.queue).(*timer)
		if t.owner != owner {
			delete(l.timers, t.id)
			l.log.Warn().Uint64("loop", l.id).Uint64("timer_owner", t.owner).Uint64("owner", owner).Msg("dropping timer left by another invocation")
			continue
		}
		if wait := time.Until(t.due); wait > 0 {
			time.Sleep(wait)
		}
		if t.interval > 0 {
			l.seq++
			t.seq = l.seq
			t.due = time.Now().Add(t.interval)
			heap.Push(&l.queue, t)
		} else {
			delete(l.timers, t.id)
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			return nil, err
		}
	}

	if p.State() == goja.PromiseStateRejected {
		return nil, rejection(p.Result())
	}
	return p.Result(), nil
}

func rejection(reason goja.Value) error {
	if reason == nil || goja.IsUndefined(reason) {
		return fmt.Errorf("promise rejected")
	}
	if obj, ok := reason.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return fmt.Errorf("promise rejected: %s", stack.String())
		}
	}
	return fmt.Errorf("promise rejected: %s", reason.String())
}

// LoopManager hands out the event loop installed on the interpreter context.
// It is reachable only through an InterpreterContext, so every call happens
// under the interpreter lock.
type LoopManager struct {
	current *EventLoop
	created atomic.Uint64
	log     zerolog.Logger

	// active is the invocation whose timers may run; zero outside Begin/End.
	active      uint64
	invocations uint64
}

func newLoopManager(log zerolog.Logger) *LoopManager {
	return &LoopManager{log: log}
}

// Current returns the installed loop, installing a fresh one when there is
// none or the installed loop has been closed.
func (m *LoopManager) Current() *EventLoop {
	if m.current == nil || m.current.Closed() {
		m.install()
	}
	return m.current
}

func (m *LoopManager) install() {
	id := m.created.Add(1)
	if m.current != nil {
		m.log.Debug().Uint64("closed_loop", m.current.ID()).Uint64("loop", id).Msg("replacing closed event loop")
	}
	m.current = newEventLoop(id, m.log)
}

// Begin starts an invocation. Timers scheduled until End belong to it, and
// timers left by earlier invocations are discarded.
func (m *LoopManager) Begin() uint64 {
	m.invocations++
	m.active = m.invocations
	if dropped := m.Current().clear(); dropped > 0 {
		m.log.Warn().Int("timers", dropped).Msg("discarded timers scheduled outside an invocation")
	}
	return m.active
}

// End discards the timers the active invocation left behind.
func (m *LoopManager) End() {
	if m.current != nil {
		if dropped := m.current.clear(); dropped > 0 {
			m.log.Debug().Uint64("invocation", m.active).Int("timers", dropped).Msg("discarded pending timers")
		}
	}
	m.active = 0
}

// Created returns how many loops have been installed so far.
func (m *LoopManager) Created() uint64 {
	return m.created.Load()
}

// RunToCompletion drives awaitable on the current loop and returns its
// settled value. A loop found closed is replaced before the run.
func (m *LoopManager) RunToCompletion(awaitable *goja.Promise) (goja.Value, error) {
	return m.Current().runUntilSettled(awaitable, m.active)
}

func (m *LoopManager) closeCurrent() {
	if m.current != nil {
		m.current.Close()
	}
}

func (ic *InterpreterContext) installTimers() error {
	rt := ic.Runtime
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout": func(call goja.FunctionCall) goja.Value {
			return ic.scheduleTimer(call, call.Argument(1), false)
		},
		"setInterval": func(call goja.FunctionCall) goja.Value {
			return ic.scheduleTimer(call, call.Argument(1), true)
		},
		"setImmediate": func(call goja.FunctionCall) goja.Value {
			return ic.scheduleTimer(call, nil, false)
		},
		"clearTimeout":   ic.clearTimer,
		"clearInterval":  ic.clearTimer,
		"clearImmediate": ic.clearTimer,
	}
	for name, fn := range globals {
		if err := rt.Set(name, fn); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

func (ic *InterpreterContext) scheduleTimer(call goja.FunctionCall, delayArg goja.Value, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(ic.Runtime.NewTypeError("callback must be a function"))
	}
	var delay time.Duration
	argStart := 1
	if delayArg != nil {
		delay = time.Duration(delayArg.ToInteger()) * time.Millisecond
		argStart = 2
	}
	var args []goja.Value
	if len(call.Arguments) > argStart {
		args = append(args, call.Arguments[argStart:]...)
	}
	return ic.Runtime.ToValue(ic.Loops.Current().schedule(ic.Loops.active, fn, delay, repeat, args))
}

func (ic *InterpreterContext) clearTimer(call goja.FunctionCall) goja.Value {
	if loop := ic.Loops.current; loop != nil && !loop.Closed() {
		loop.cancel(call.Argument(0).ToInteger())
	}
	return goja.Undefined()
}
