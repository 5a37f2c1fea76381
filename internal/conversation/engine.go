// Package conversation tracks multi-step dialogs: at most one active flow per
// user, each flow kind bound to a step that consumes the user's next input.
package conversation

import (
	"context"
	"slices"
	"sync"
)

// Kind identifies what input a flow is waiting for.
type Kind int

const (
	None Kind = iota
	Authentication
	AwaitingDeleteFilename
	AwaitingDownloadFilename
)

func (k Kind) String() string {
	switch k {
	case Authentication:
		return "authentication"
	case AwaitingDeleteFilename:
		return "awaiting_delete_filename"
	case AwaitingDownloadFilename:
		return "awaiting_download_filename"
	default:
		return "none"
	}
}

// Result is what a step decides: keep waiting in some flow, or finish.
type Result struct {
	next Kind
}

// Continue keeps the user in flow k.
func Continue(k Kind) Result { return Result{next: k} }

// End finishes the flow.
func End() Result { return Result{} }

// Ended reports whether the flow finished.
func (r Result) Ended() bool { return r.next == None }

// Next is the flow the user is left in, None if it ended.
func (r Result) Next() Kind { return r.next }

// Step consumes one input of an active flow.
type Step[T any] func(ctx context.Context, userID int64, in T) Result

// Engine holds the active flow of every user and routes input to the step
// registered for that flow's kind.
//
// Steps run without the engine lock held, so a step may call Begin or
// Cancel. When a step returns, its Result is applied only if the user is
// still in the flow the step was started for.
type Engine[T any] struct {
	mu     sync.Mutex
	active map[int64]Kind
	steps  map[Kind]Step[T]
}

func NewEngine[T any]() *Engine[T] {
	return &Engine[T]{
		active: make(map[int64]Kind),
		steps:  make(map[Kind]Step[T]),
	}
}

// Register binds step to kind. It is meant to be called during setup.
func (e *Engine[T]) Register(kind Kind, step Step[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps[kind] = step
}

// Begin puts userID into flow kind, replacing whatever flow was active.
func (e *Engine[T]) Begin(userID int64, kind Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if kind == None {
		delete(e.active, userID)
		return
	}
	e.active[userID] = kind
}

// Active returns the user's current flow.
func (e *Engine[T]) Active(userID int64) (Kind, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k, ok := e.active[userID]
	return k, ok
}

// Cancel ends the user's flow if it is one of kinds (any flow when kinds is
// empty) and reports whether something was cancelled.
func (e *Engine[T]) Cancel(userID int64, kinds ...Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	k, ok := e.active[userID]
	if !ok {
		return false
	}

	if len(kinds) > 0 && !slices.Contains(kinds, k) {
		return false
	}

	delete(e.active, userID)
	return true
}

// ConsumeIfActive feeds in to the user's active flow. It returns false, and
// does nothing, when the user has no flow or the flow has no step.
func (e *Engine[T]) ConsumeIfActive(ctx context.Context, userID int64, in T) (Result, bool) {
	e.mu.Lock()
	kind, ok := e.active[userID]
	step := e.steps[kind]
	if ok && step == nil {
		delete(e.active, userID)
	}
	e.mu.Unlock()

	if !ok || step == nil {
		return Result{}, false
	}

	res := step(ctx, userID, in)

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.active[userID]; ok && cur == kind {
		if res.Ended() {
			delete(e.active, userID)
		} else {
			e.active[userID] = res.next
		}
	}

	return res, true
}
