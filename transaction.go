// transaction.go: the transactional state store.
//
// One manager holds at most one active transaction at a time. Writes buffer
// into the transaction's write set and reach the backing storage only on
// commit; named savepoints snapshot the write set for partial rollback.
// Isolation level and timeout are recorded per transaction as metadata for
// a future concurrent executor; this single-threaded core does not schedule
// against them.

package serval

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Transaction misuse errors. Every transactional operation with no active
// transaction is a hard error, never a silent no-op.
var (
	ErrNoActiveTransaction = errors.New("no active transaction")
	ErrTransactionActive   = errors.New("transaction already active")
	ErrSavepointNotFound   = errors.New("savepoint not found")
	ErrLimitExceeded       = errors.New("transaction resource limit exceeded")
)

// IsolationLevel is the consistency mode recorded on a transaction.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "read_uncommitted"
	case ReadCommitted:
		return "read_committed"
	case RepeatableRead:
		return "repeatable_read"
	case Serializable:
		return "serializable"
	default:
		return "unknown"
	}
}

// IsolationLevelFromString resolves a user-supplied level name. Both
// "read_committed" and "readcommitted" spellings are accepted.
func IsolationLevelFromString(s string) (IsolationLevel, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "readuncommitted":
		return ReadUncommitted, true
	case "readcommitted":
		return ReadCommitted, true
	case "repeatableread":
		return RepeatableRead, true
	case "serializable":
		return Serializable, true
	default:
		return 0, false
	}
}

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Savepoint is a named snapshot of the write set.
type Savepoint struct {
	Name      string
	Snapshot  map[string]Value
	CreatedAt time.Time
}

// Transaction is one unit of buffered work.
type Transaction struct {
	ID        string
	State     TxState
	Isolation IsolationLevel
	StartTime time.Time
	Timeout   time.Duration

	writes     map[string]Value // pending write set
	originals  map[string]Value // storage value at first write, for diagnostics
	savepoints []Savepoint
}

// WriteSetSize reports how many keys the transaction has written.
func (t *Transaction) WriteSetSize() int { return len(t.writes) }

// WrittenKeys lists the pending keys, sorted.
func (t *Transaction) WrittenKeys() []string {
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TimedOut reports whether the transaction has outlived its timeout. The
// core surfaces this as metadata only.
func (t *Transaction) TimedOut() bool {
	return t.Timeout > 0 && time.Since(t.StartTime) > t.Timeout
}

// TxEventKind tags lifecycle events.
type TxEventKind int

const (
	TxEventBegin TxEventKind = iota
	TxEventWrite
	TxEventSavepointCreate
	TxEventSavepointRollback
	TxEventCommit
	TxEventRollback
)

func (k TxEventKind) String() string {
	switch k {
	case TxEventBegin:
		return "begin"
	case TxEventWrite:
		return "write"
	case TxEventSavepointCreate:
		return "savepoint_create"
	case TxEventSavepointRollback:
		return "savepoint_rollback"
	case TxEventCommit:
		return "commit"
	case TxEventRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// TxEvent is one lifecycle notification delivered to the event callback and
// the transaction log.
type TxEvent struct {
	Kind      TxEventKind
	TxID      string
	Keys      []string
	Isolation IsolationLevel
}

// Default manager limits.
const (
	defaultTxTimeout = 30 * time.Second
	defaultTxMaxKeys = 10_000
)

// TransactionManager owns the committed storage and the single active
// transaction.
type TransactionManager struct {
	storage    StateStorage
	active     *Transaction
	counter    uint64
	timeout    time.Duration
	maxKeys    int
	onEvent    func(TxEvent)
	log        *TxLog
}

// NewTransactionManager returns a manager over in-memory storage with
// default limits.
func NewTransactionManager() *TransactionManager {
	return NewTransactionManagerWithStorage(NewMemoryStorage())
}

// NewTransactionManagerWithStorage returns a manager over the given backend.
func NewTransactionManagerWithStorage(storage StateStorage) *TransactionManager {
	return &TransactionManager{
		storage: storage,
		timeout: defaultTxTimeout,
		maxKeys: defaultTxMaxKeys,
	}
}

// TxManagerFromEnv builds a manager from SERVAL_TX_* environment variables:
// SERVAL_TX_STORAGE (memory|file|sqlite), SERVAL_TX_STORAGE_PATH,
// SERVAL_TX_LOG_PATH, SERVAL_TX_TIMEOUT_MS and SERVAL_TX_MAX_KEYS.
func TxManagerFromEnv() (*TransactionManager, error) {
	var storage StateStorage
	switch strings.ToLower(os.Getenv("SERVAL_TX_STORAGE")) {
	case "", "memory":
		storage = NewMemoryStorage()
	case "file":
		path := os.Getenv("SERVAL_TX_STORAGE_PATH")
		if path == "" {
			path = "./serval_tx_state.json"
		}
		fs, err := NewFileStorage(path)
		if err != nil {
			return nil, err
		}
		storage = fs
	case "sqlite":
		path := os.Getenv("SERVAL_TX_STORAGE_PATH")
		if path == "" {
			path = "./serval_tx_state.db"
		}
		ss, err := NewSQLiteStorage(path)
		if err != nil {
			return nil, err
		}
		storage = ss
	default:
		return nil, fmt.Errorf("unknown SERVAL_TX_STORAGE %q (memory, file or sqlite)", os.Getenv("SERVAL_TX_STORAGE"))
	}

	m := NewTransactionManagerWithStorage(storage)
	if raw := os.Getenv("SERVAL_TX_TIMEOUT_MS"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid SERVAL_TX_TIMEOUT_MS %q", raw)
		}
		m.timeout = time.Duration(ms) * time.Millisecond
	}
	if raw := os.Getenv("SERVAL_TX_MAX_KEYS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SERVAL_TX_MAX_KEYS %q", raw)
		}
		m.maxKeys = n
	}
	if path := os.Getenv("SERVAL_TX_LOG_PATH"); path != "" {
		if _, err := m.WithTransactionLog(path); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WithDefaultTimeout sets the timeout recorded on new transactions.
func (m *TransactionManager) WithDefaultTimeout(d time.Duration) *TransactionManager {
	m.timeout = d
	return m
}

// WithMaxKeysPerTransaction caps write-set size; 0 means unlimited.
func (m *TransactionManager) WithMaxKeysPerTransaction(n int) *TransactionManager {
	m.maxKeys = n
	return m
}

// WithEventCallback registers a lifecycle event observer.
func (m *TransactionManager) WithEventCallback(fn func(TxEvent)) *TransactionManager {
	m.onEvent = fn
	return m
}

// WithTransactionLog attaches an append-only audit log at path.
func (m *TransactionManager) WithTransactionLog(path string) (*TransactionManager, error) {
	log, err := NewTxLog(path)
	if err != nil {
		return nil, err
	}
	m.log = log
	return m, nil
}

// OnEvent is an alias for WithEventCallback for callers holding a built
// manager.
func (m *TransactionManager) OnEvent(fn func(TxEvent)) { m.onEvent = fn }

func (m *TransactionManager) emit(ev TxEvent) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
	if m.log != nil {
		// Log failures must not break the transaction path.
		_ = m.log.Append(ev)
	}
}

// Current returns the active transaction, or nil.
func (m *TransactionManager) Current() *Transaction { return m.active }

// GetCommitted reads a key from the backing storage, bypassing any active
// transaction.
func (m *TransactionManager) GetCommitted(key string) (Value, bool) {
	return m.storage.Get(key)
}

// Begin opens a transaction. timeout <= 0 uses the manager default.
func (m *TransactionManager) Begin(level IsolationLevel, timeout time.Duration) (*Transaction, error) {
	if m.active != nil {
		return nil, ErrTransactionActive
	}
	if timeout <= 0 {
		timeout = m.timeout
	}
	m.counter++
	tx := &Transaction{
		ID:        fmt.Sprintf("tx_%d", m.counter),
		State:     TxActive,
		Isolation: level,
		StartTime: time.Now(),
		Timeout:   timeout,
		writes:    make(map[string]Value),
		originals: make(map[string]Value),
	}
	m.active = tx
	m.emit(TxEvent{Kind: TxEventBegin, TxID: tx.ID, Isolation: level})
	return tx, nil
}

// Write buffers key=value into the active write set. The first write to a
// key records the storage's current value for diagnostics.
func (m *TransactionManager) Write(key string, value Value) error {
	tx := m.active
	if tx == nil {
		return ErrNoActiveTransaction
	}
	if _, seen := tx.writes[key]; !seen {
		if m.maxKeys > 0 && len(tx.writes) >= m.maxKeys {
			return fmt.Errorf("%w: %d keys written (max %d)", ErrLimitExceeded, len(tx.writes), m.maxKeys)
		}
		if orig, ok := m.storage.Get(key); ok {
			tx.originals[key] = orig
		}
	}
	tx.writes[key] = value.Clone()
	m.emit(TxEvent{Kind: TxEventWrite, TxID: tx.ID, Keys: []string{key}})
	return nil
}

// Read fetches key, consulting the write set before the backing storage.
// Misses return (Null, false) with a nil error.
func (m *TransactionManager) Read(key string) (Value, bool, error) {
	tx := m.active
	if tx == nil {
		return NullValue, false, ErrNoActiveTransaction
	}
	if v, ok := tx.writes[key]; ok {
		return v.Clone(), true, nil
	}
	v, ok := m.storage.Get(key)
	return v, ok, nil
}

// CreateSavepoint snapshots the current write set under name. A duplicate
// name replaces the earlier savepoint in place.
func (m *TransactionManager) CreateSavepoint(name string) error {
	tx := m.active
	if tx == nil {
		return ErrNoActiveTransaction
	}
	snapshot := make(map[string]Value, len(tx.writes))
	for k, v := range tx.writes {
		snapshot[k] = v.Clone()
	}
	sp := Savepoint{Name: name, Snapshot: snapshot, CreatedAt: time.Now()}
	for i := range tx.savepoints {
		if tx.savepoints[i].Name == name {
			tx.savepoints[i] = sp
			m.emit(TxEvent{Kind: TxEventSavepointCreate, TxID: tx.ID, Keys: []string{name}})
			return nil
		}
	}
	tx.savepoints = append(tx.savepoints, sp)
	m.emit(TxEvent{Kind: TxEventSavepointCreate, TxID: tx.ID, Keys: []string{name}})
	return nil
}

// RollbackToSavepoint restores the write set to the named snapshot and
// discards savepoints created after it. Keys written before the savepoint
// survive; keys written after vanish. The transaction stays active.
func (m *TransactionManager) RollbackToSavepoint(name string) error {
	tx := m.active
	if tx == nil {
		return ErrNoActiveTransaction
	}
	for i := range tx.savepoints {
		if tx.savepoints[i].Name != name {
			continue
		}
		restored := make(map[string]Value, len(tx.savepoints[i].Snapshot))
		for k, v := range tx.savepoints[i].Snapshot {
			restored[k] = v.Clone()
		}
		tx.writes = restored
		tx.savepoints = tx.savepoints[:i+1]
		m.emit(TxEvent{Kind: TxEventSavepointRollback, TxID: tx.ID, Keys: []string{name}})
		return nil
	}
	return fmt.Errorf("%w: %q", ErrSavepointNotFound, name)
}

// Commit applies the write set to storage and closes the transaction.
// Current() is nil afterwards.
func (m *TransactionManager) Commit() error {
	tx := m.active
	if tx == nil {
		return ErrNoActiveTransaction
	}
	for _, key := range tx.WrittenKeys() {
		if err := m.storage.Set(key, tx.writes[key]); err != nil {
			return fmt.Errorf("commit %s: %w", tx.ID, err)
		}
	}
	tx.State = TxCommitted
	keys := tx.WrittenKeys()
	m.active = nil
	m.emit(TxEvent{Kind: TxEventCommit, TxID: tx.ID, Keys: keys})
	return nil
}

// Rollback discards the write set and closes the transaction.
func (m *TransactionManager) Rollback() error {
	tx := m.active
	if tx == nil {
		return ErrNoActiveTransaction
	}
	tx.State = TxRolledBack
	tx.writes = make(map[string]Value)
	m.active = nil
	m.emit(TxEvent{Kind: TxEventRollback, TxID: tx.ID})
	return nil
}

// Close releases the attached transaction log, if any.
func (m *TransactionManager) Close() error {
	if m.log != nil {
		return m.log.Close()
	}
	return nil
}
