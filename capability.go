// capability.go: namespaced capability dispatch.
//
// `ns::fn(args)` calls leave the interpreter through this table. The runtime
// only performs dispatch and value marshalling; each registered handler owns
// its own argument validation and side effects. The default table is
// assembled at Runtime construction; tests register fakes before execution
// starts.

package serval

import (
	"fmt"
	"sort"
)

// CapabilityHandler implements one namespaced function.
type CapabilityHandler func(args []Value) (Value, error)

// CapabilityTable maps namespace -> function -> handler.
type CapabilityTable struct {
	handlers map[string]map[string]CapabilityHandler
}

// NewCapabilityTable returns an empty table.
func NewCapabilityTable() *CapabilityTable {
	return &CapabilityTable{handlers: make(map[string]map[string]CapabilityHandler)}
}

// Register installs a handler for namespace::function, replacing any
// earlier registration.
func (t *CapabilityTable) Register(namespace, function string, h CapabilityHandler) {
	ns, ok := t.handlers[namespace]
	if !ok {
		ns = make(map[string]CapabilityHandler)
		t.handlers[namespace] = ns
	}
	ns[function] = h
}

// Has reports whether namespace::function is registered.
func (t *CapabilityTable) Has(namespace, function string) bool {
	ns, ok := t.handlers[namespace]
	if !ok {
		return false
	}
	_, ok = ns[function]
	return ok
}

// HasNamespace reports whether any function is registered under namespace.
func (t *CapabilityTable) HasNamespace(namespace string) bool {
	_, ok := t.handlers[namespace]
	return ok
}

// Namespaces lists the registered namespaces, sorted.
func (t *CapabilityTable) Namespaces() []string {
	out := make([]string, 0, len(t.handlers))
	for ns := range t.handlers {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Dispatch invokes namespace::function. Unknown namespaces and functions,
// and handler failures, surface as *ExternalDispatchError.
func (t *CapabilityTable) Dispatch(namespace, function string, args []Value) (Value, error) {
	ns, ok := t.handlers[namespace]
	if !ok {
		return NullValue, &ExternalDispatchError{
			Capability: namespace + "::" + function,
			Err:        fmt.Errorf("unknown namespace %q", namespace),
		}
	}
	h, ok := ns[function]
	if !ok {
		return NullValue, &ExternalDispatchError{
			Capability: namespace + "::" + function,
			Err:        fmt.Errorf("unknown function %q in namespace %q", function, namespace),
		}
	}
	out, err := h(args)
	if err != nil {
		return NullValue, &ExternalDispatchError{Capability: namespace + "::" + function, Err: err}
	}
	return out, nil
}
