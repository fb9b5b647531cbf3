// reentrancy.go: mutual-exclusion guard against re-entrant service calls.
//
// The runtime takes a token before running a guarded method and releases it
// on every exit path. For a given (function, contract) key at most one live
// token exists at any instant; distinct functions or distinct contracts never
// block each other.

package serval

import (
	"fmt"
	"strings"
	"sync"
)

// ReentrancyGuard tracks active guarded calls. Each guard instance is
// independently lockable; a Runtime owns exactly one.
type ReentrancyGuard struct {
	mu        sync.Mutex
	active    map[string]bool
	callStack []string
}

// NewReentrancyGuard returns an empty guard.
func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{active: make(map[string]bool)}
}

// callKey is "contract::function", or just the function name when the call
// is not bound to a contract.
func callKey(function, contract string) string {
	if contract == "" {
		return function
	}
	return contract + "::" + function
}

// Enter registers a guarded call and returns its token. It fails when a live
// token already exists for the same (function, contract) pair; the error
// message carries the current call chain.
func (g *ReentrancyGuard) Enter(function, contract string) (*ReentrancyToken, error) {
	key := callKey(function, contract)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[key] {
		return nil, &RuntimeError{Msg: fmt.Sprintf(
			"reentrancy detected in %s (call stack: %s)", key, strings.Join(g.callStack, " -> "))}
	}
	g.active[key] = true
	g.callStack = append(g.callStack, key)
	return &ReentrancyToken{guard: g, key: key}, nil
}

// IsActive reports whether a live token exists for the pair.
func (g *ReentrancyGuard) IsActive(function, contract string) bool {
	key := callKey(function, contract)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[key]
}

// CallStack returns the guarded-call chain, outermost first.
func (g *ReentrancyGuard) CallStack() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.callStack))
	copy(out, g.callStack)
	return out
}

// exit removes the key from the active set and the deepest matching frame
// from the call stack.
func (g *ReentrancyGuard) exit(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
	for i := len(g.callStack) - 1; i >= 0; i-- {
		if g.callStack[i] == key {
			g.callStack = append(g.callStack[:i], g.callStack[i+1:]...)
			break
		}
	}
}

// ReentrancyToken is the receipt for one guarded call, alive between Enter
// and Release.
type ReentrancyToken struct {
	guard    *ReentrancyGuard
	key      string
	released bool
	mu       sync.Mutex
}

// Release frees the guard for this token's key. Idempotent, and intended for
// defer so the guard cannot stay locked on any exit path.
func (t *ReentrancyToken) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.guard.exit(t.key)
}

// Key returns the token's call key, for diagnostics.
func (t *ReentrancyToken) Key() string { return t.key }
