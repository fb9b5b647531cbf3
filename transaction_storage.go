// transaction_storage.go: pluggable committed-state backends and the
// append-only transaction log.
//
// The transaction manager only sees the StateStorage interface; the default
// is in-memory, with file-backed JSON and SQLite available for persistence.
// Values cross the persistence boundary through a small tagged JSON encoding
// so every Value tag round-trips exactly.

package serval

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StateStorage is the committed key/value store behind a TransactionManager.
type StateStorage interface {
	Get(key string) (Value, bool)
	Set(key string, value Value) error
	Contains(key string) bool
	Remove(key string) error
	Len() int
}

// ─────────────────────────── value (de)serialization ────────────────────────

// jsonValue is the persisted form of a Value. The tag disambiguates cases
// plain JSON would merge (int vs float, set vs list, struct vs map).
type jsonValue struct {
	T string          `json:"t"`
	N string          `json:"n,omitempty"` // struct name
	V json.RawMessage `json:"v,omitempty"`
}

func encodeValue(v Value) ([]byte, error) {
	jv := jsonValue{T: v.TypeName()}
	var payload interface{}
	switch v.Tag {
	case VNull:
		payload = nil
	case VBool, VInt, VFloat, VString, VClosure:
		payload = v.Data
	case VList:
		elems := v.Data.([]Value)
		raws := make([]json.RawMessage, len(elems))
		for i, e := range elems {
			b, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			raws[i] = b
		}
		payload = raws
	case VMap:
		m := v.Data.(map[string]Value)
		raws := make(map[string]json.RawMessage, len(m))
		for k, e := range m {
			b, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			raws[k] = b
		}
		payload = raws
	case VSet:
		members := v.Data.(map[string]struct{})
		keys := make([]string, 0, len(members))
		for k := range members {
			keys = append(keys, k)
		}
		payload = keys
	case VStruct:
		s := v.Data.(*StructData)
		jv.N = s.Name
		raws := make(map[string]json.RawMessage, len(s.Fields))
		for k, e := range s.Fields {
			b, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			raws[k] = b
		}
		payload = raws
	case VResult:
		r := v.Data.(*ResultData)
		inner, err := encodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		if r.Ok {
			jv.T = "ok"
		} else {
			jv.T = "err"
		}
		payload = json.RawMessage(inner)
	case VOption:
		o := v.Data.(*OptionData)
		if !o.Some {
			jv.T = "none"
			payload = nil
			break
		}
		inner, err := encodeValue(o.Value)
		if err != nil {
			return nil, err
		}
		jv.T = "some"
		payload = json.RawMessage(inner)
	default:
		return nil, fmt.Errorf("cannot persist value of type %s", v.TypeName())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	jv.V = raw
	return json.Marshal(jv)
}

func decodeValue(data []byte) (Value, error) {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return NullValue, err
	}
	switch jv.T {
	case "null":
		return NullValue, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(jv.V, &b); err != nil {
			return NullValue, err
		}
		return BoolValue(b), nil
	case "int":
		var n int64
		if err := json.Unmarshal(jv.V, &n); err != nil {
			return NullValue, err
		}
		return IntValue(n), nil
	case "float":
		var f float64
		if err := json.Unmarshal(jv.V, &f); err != nil {
			return NullValue, err
		}
		return FloatValue(f), nil
	case "string":
		var s string
		if err := json.Unmarshal(jv.V, &s); err != nil {
			return NullValue, err
		}
		return StringValue(s), nil
	case "closure":
		var s string
		if err := json.Unmarshal(jv.V, &s); err != nil {
			return NullValue, err
		}
		return ClosureValue(s), nil
	case "list":
		var raws []json.RawMessage
		if err := json.Unmarshal(jv.V, &raws); err != nil {
			return NullValue, err
		}
		elems := make([]Value, len(raws))
		for i, r := range raws {
			e, err := decodeValue(r)
			if err != nil {
				return NullValue, err
			}
			elems[i] = e
		}
		return ListValue(elems), nil
	case "map", "struct":
		var raws map[string]json.RawMessage
		if err := json.Unmarshal(jv.V, &raws); err != nil {
			return NullValue, err
		}
		m := make(map[string]Value, len(raws))
		for k, r := range raws {
			e, err := decodeValue(r)
			if err != nil {
				return NullValue, err
			}
			m[k] = e
		}
		if jv.T == "struct" {
			return StructValue(jv.N, m), nil
		}
		return MapValue(m), nil
	case "set":
		var keys []string
		if err := json.Unmarshal(jv.V, &keys); err != nil {
			return NullValue, err
		}
		members := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			members[k] = struct{}{}
		}
		return SetValue(members), nil
	case "ok", "err":
		inner, err := decodeValue(jv.V)
		if err != nil {
			return NullValue, err
		}
		if jv.T == "ok" {
			return OkValue(inner), nil
		}
		return ErrValue(inner), nil
	case "some":
		inner, err := decodeValue(jv.V)
		if err != nil {
			return NullValue, err
		}
		return SomeValue(inner), nil
	case "none":
		return NoneValue, nil
	default:
		return NullValue, fmt.Errorf("unknown persisted value tag %q", jv.T)
	}
}

// ──────────────────────────────── memory backend ────────────────────────────

// MemoryStorage keeps committed state in a map. No durability; the default.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]Value
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]Value)}
}

func (s *MemoryStorage) Get(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return NullValue, false
	}
	return v.Clone(), true
}

func (s *MemoryStorage) Set(key string, value Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value.Clone()
	return nil
}

func (s *MemoryStorage) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// ───────────────────────────────── file backend ─────────────────────────────

// FileStorage persists committed state as one JSON document, rewritten with
// a tmp+rename on every flush so a crash never leaves a torn file.
type FileStorage struct {
	mu        sync.Mutex
	path      string
	data      map[string]Value
	autoFlush bool
}

// NewFileStorage opens (or creates) a JSON-backed store at path, flushing
// after every Set/Remove.
func NewFileStorage(path string) (*FileStorage, error) {
	return NewFileStorageWithFlush(path, true)
}

// NewFileStorageWithFlush opens a JSON-backed store; when autoFlush is false
// the caller must Flush explicitly.
func NewFileStorageWithFlush(path string, autoFlush bool) (*FileStorage, error) {
	s := &FileStorage{path: path, data: make(map[string]Value), autoFlush: autoFlush}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("state storage: load %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStorage) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var encoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return err
	}
	for k, r := range encoded {
		v, err := decodeValue(r)
		if err != nil {
			return err
		}
		s.data[k] = v
	}
	return nil
}

// Flush writes the full state to disk atomically.
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *FileStorage) flushLocked() error {
	encoded := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		b, err := encodeValue(v)
		if err != nil {
			return err
		}
		encoded[k] = b
	}
	raw, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return NullValue, false
	}
	return v.Clone(), true
}

func (s *FileStorage) Set(key string, value Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value.Clone()
	if s.autoFlush {
		return s.flushLocked()
	}
	return nil
}

func (s *FileStorage) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *FileStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	if s.autoFlush {
		return s.flushLocked()
	}
	return nil
}

func (s *FileStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// ──────────────────────────────── sqlite backend ────────────────────────────

// SQLiteStorage persists committed state in a kv_store table, values stored
// as tagged JSON. WAL journaling keeps writes durable without blocking reads.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) a SQLite-backed store at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("state storage: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_store (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStorage{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

func (s *SQLiteStorage) Get(key string) (Value, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return NullValue, false
	}
	v, err := decodeValue([]byte(raw))
	if err != nil {
		return NullValue, false
	}
	return v, true
}

func (s *SQLiteStorage) Set(key string, value Value) error {
	b, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO kv_store (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(b))
	return err
}

func (s *SQLiteStorage) Contains(key string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM kv_store WHERE key = ?`, key).Scan(&one)
	return err == nil
}

func (s *SQLiteStorage) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

func (s *SQLiteStorage) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kv_store`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// ──────────────────────────────── transaction log ───────────────────────────

// TxLogEntry is one line of the audit log.
type TxLogEntry struct {
	Timestamp int64    `json:"timestamp"`
	TxID      string   `json:"tx_id"`
	EventType string   `json:"event_type"`
	Keys      []string `json:"keys"`
	Isolation string   `json:"isolation_level,omitempty"`
}

// TxLog is an append-only line-delimited JSON file of transaction events,
// flushed after every append.
type TxLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewTxLog opens (or creates) the log at path, creating parent directories
// as needed.
func NewTxLog(path string) (*TxLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transaction log: open %s: %w", path, err)
	}
	return &TxLog{file: f, path: path}, nil
}

// Append writes one event as a JSON line.
func (l *TxLog) Append(ev TxEvent) error {
	entry := TxLogEntry{
		Timestamp: time.Now().UnixMilli(),
		TxID:      ev.TxID,
		EventType: ev.Kind.String(),
		Keys:      ev.Keys,
	}
	if ev.Kind == TxEventBegin {
		entry.Isolation = ev.Isolation.String()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(raw, '\n')); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *TxLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
