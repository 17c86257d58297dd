// Package generation implements "last run wins" supersession for
// asynchronous fetches whose results land in shared state.
package generation

import (
	"context"
	"sync"
)

// Token identifies one run started by Tracker.Begin.
type Token uint64

// Tracker hands out increasing tokens. Only the newest token may commit, and
// beginning a new run cancels the context of the previous one.
type Tracker struct {
	mu      sync.Mutex
	current Token
	cancel  context.CancelFunc
}

// Begin supersedes any in-flight run and returns a context scoped to the new one.
func (t *Tracker) Begin(parent context.Context) (context.Context, Token) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.current++
	t.cancel = cancel
	return ctx, t.current
}

// Commit runs fn only if tok is still the newest run. fn executes under the
// tracker lock, so no Begin can interleave with it.
func (t *Tracker) Commit(tok Token, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok != t.current {
		return false
	}
	fn()
	return true
}

// Current reports whether tok is the newest run.
func (t *Tracker) Current(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tok == t.current
}

// End releases the context of tok if it is still the newest run.
func (t *Tracker) End(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok == t.current && t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Invalidate supersedes every outstanding run without starting a new one.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.current++
}
