// capability_log.go: the log:: capability namespace.
//
// Scripts get leveled logging onto a standard logger the host configures;
// log::audit additionally buffers entries in memory so @secure services can
// be inspected after a run.

package serval

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// AuditSink buffers audit entries for inspection after execution.
type AuditSink struct {
	mu      sync.Mutex
	entries []string
}

// Entries returns a copy of the buffered audit lines.
func (a *AuditSink) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *AuditSink) append(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, line)
}

// registerLogCapabilities installs log::{debug, info, warn, error, audit}
// writing to w (the CLI passes stderr; tests pass a buffer).
func registerLogCapabilities(t *CapabilityTable, w io.Writer, audit *AuditSink) {
	logger := log.New(w, "", log.LstdFlags)

	level := func(name string) CapabilityHandler {
		return func(args []Value) (Value, error) {
			if len(args) == 0 {
				return NullValue, fmt.Errorf("log::%s expects at least one argument", name)
			}
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			logger.Printf("[%s] %s", strings.ToUpper(name), strings.Join(parts, " "))
			return NullValue, nil
		}
	}

	t.Register("log", "debug", level("debug"))
	t.Register("log", "info", level("info"))
	t.Register("log", "warn", level("warn"))
	t.Register("log", "error", level("error"))

	t.Register("log", "audit", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return NullValue, fmt.Errorf("log::audit expects at least one argument")
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		line := strings.Join(parts, " ")
		logger.Printf("[AUDIT] %s", line)
		if audit != nil {
			audit.append(line)
		}
		return NullValue, nil
	})
}
