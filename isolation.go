// isolation.go: per-contract private state.
//
// Every service instance gets its own isolated store keyed by contract id.
// One contract's state is never readable by another's: access checks compare
// against the exact creating contract and its explicitly granted callers.

package serval

import (
	"fmt"
	"sync"
	"time"
)

// StateMetadata describes one isolated store.
type StateMetadata struct {
	Owner      string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Version    uint64
	ReadOnly   bool
}

// isolatedState is the private store for one contract.
type isolatedState struct {
	values   map[string]Value
	meta     StateMetadata
	allowed  map[string]bool // addresses granted beyond the contract itself
}

// StateIsolationManager maps contract ids to their private stores. Safe for
// concurrent use.
type StateIsolationManager struct {
	mu        sync.RWMutex
	contracts map[string]*isolatedState
}

// NewStateIsolationManager returns an empty manager.
func NewStateIsolationManager() *StateIsolationManager {
	return &StateIsolationManager{contracts: make(map[string]*isolatedState)}
}

// CreateState registers an isolated store for contractID owned by owner.
// Creating a contract that already exists is an error.
func (m *StateIsolationManager) CreateState(contractID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.contracts[contractID]; exists {
		return fmt.Errorf("contract state %q already exists", contractID)
	}
	now := time.Now()
	m.contracts[contractID] = &isolatedState{
		values:  make(map[string]Value),
		meta:    StateMetadata{Owner: owner, CreatedAt: now, ModifiedAt: now, Version: 1},
		allowed: make(map[string]bool),
	}
	return nil
}

// CanAccess reports whether address may touch contractID's state. The
// contract id itself and its owner are always allowed; anyone else needs an
// explicit grant. Unknown contracts admit nobody.
func (m *StateIsolationManager) CanAccess(contractID, address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return false
	}
	return address == contractID || address == st.meta.Owner || st.allowed[address]
}

// GrantAccess allows address to touch contractID's state. Only the owner or
// the contract itself may grant.
func (m *StateIsolationManager) GrantAccess(contractID, caller, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return fmt.Errorf("unknown contract state %q", contractID)
	}
	if caller != contractID && caller != st.meta.Owner {
		return &RuntimeError{Msg: fmt.Sprintf("access denied: %q cannot grant access on contract %q", caller, contractID)}
	}
	st.allowed[address] = true
	return nil
}

// Read fetches a key from contractID's state on behalf of caller. Missing
// keys return (Null, false).
func (m *StateIsolationManager) Read(contractID, caller, key string) (Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return NullValue, false, fmt.Errorf("unknown contract state %q", contractID)
	}
	if !m.canAccessLocked(st, contractID, caller) {
		return NullValue, false, &RuntimeError{Msg: fmt.Sprintf("access denied: %q cannot read contract %q", caller, contractID)}
	}
	v, found := st.values[key]
	if !found {
		return NullValue, false, nil
	}
	return v.Clone(), true, nil
}

// Write stores a key into contractID's state on behalf of caller, bumping
// the state version. Writing to a read-only store is an error.
func (m *StateIsolationManager) Write(contractID, caller, key string, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return fmt.Errorf("unknown contract state %q", contractID)
	}
	if !m.canAccessLocked(st, contractID, caller) {
		return &RuntimeError{Msg: fmt.Sprintf("access denied: %q cannot write contract %q", caller, contractID)}
	}
	if st.meta.ReadOnly {
		return &RuntimeError{Msg: fmt.Sprintf("contract state %q is read-only", contractID)}
	}
	st.values[key] = value.Clone()
	st.meta.ModifiedAt = time.Now()
	st.meta.Version++
	return nil
}

// SetReadOnly freezes or unfreezes a store. Owner-only.
func (m *StateIsolationManager) SetReadOnly(contractID, caller string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return fmt.Errorf("unknown contract state %q", contractID)
	}
	if caller != contractID && caller != st.meta.Owner {
		return &RuntimeError{Msg: fmt.Sprintf("access denied: %q cannot change mode of contract %q", caller, contractID)}
	}
	st.meta.ReadOnly = readOnly
	st.meta.ModifiedAt = time.Now()
	st.meta.Version++
	return nil
}

// Metadata returns a copy of the store's metadata.
func (m *StateIsolationManager) Metadata(contractID string) (StateMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.contracts[contractID]
	if !ok {
		return StateMetadata{}, false
	}
	return st.meta, true
}

func (m *StateIsolationManager) canAccessLocked(st *isolatedState, contractID, address string) bool {
	return address == contractID || address == st.meta.Owner || st.allowed[address]
}
