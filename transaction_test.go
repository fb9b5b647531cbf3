// transaction_test.go
package serval

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func beginTx(t *testing.T, m *TransactionManager) *Transaction {
	t.Helper()
	tx, err := m.Begin(ReadCommitted, 0)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

func txWrite(t *testing.T, m *TransactionManager, key string, v Value) {
	t.Helper()
	if err := m.Write(key, v); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
}

func Test_Tx_BeginCommitLifecycle(t *testing.T) {
	m := NewTransactionManager()
	tx := beginTx(t, m)
	if tx.State != TxActive {
		t.Fatalf("state %v", tx.State)
	}
	if tx.ID != "tx_1" {
		t.Fatalf("id %q", tx.ID)
	}
	txWrite(t, m, "a", IntValue(1))
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if tx.State != TxCommitted {
		t.Fatalf("state after commit %v", tx.State)
	}
	if m.Current() != nil {
		t.Fatal("manager still has an active transaction")
	}
	if v, ok := m.GetCommitted("a"); !ok || v.Data.(int64) != 1 {
		t.Fatalf("committed read: %v %v", v, ok)
	}
}

func Test_Tx_SecondBeginRejected(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	if _, err := m.Begin(Serializable, 0); !errors.Is(err, ErrTransactionActive) {
		t.Fatalf("err = %v, want ErrTransactionActive", err)
	}
}

func Test_Tx_OperationsWithoutTransaction(t *testing.T) {
	m := NewTransactionManager()
	if err := m.Write("k", IntValue(1)); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := m.Read("k"); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("read: %v", err)
	}
	if err := m.Commit(); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("commit: %v", err)
	}
	if err := m.Rollback(); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("rollback: %v", err)
	}
	if err := m.CreateSavepoint("sp"); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("savepoint: %v", err)
	}
}

func Test_Tx_ReadPrefersWriteSet(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	txWrite(t, m, "k", StringValue("pending"))
	v, ok, err := m.Read("k")
	if err != nil || !ok {
		t.Fatalf("read: %v %v", ok, err)
	}
	if v.Data.(string) != "pending" {
		t.Fatalf("read %v", v)
	}
	// Nothing committed yet.
	if _, ok := m.GetCommitted("k"); ok {
		t.Fatal("uncommitted write visible in storage")
	}
}

func Test_Tx_ReadFallsThroughToStorage(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	txWrite(t, m, "base", IntValue(10))
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	beginTx(t, m)
	v, ok, err := m.Read("base")
	if err != nil || !ok {
		t.Fatalf("read: %v %v", ok, err)
	}
	if v.Data.(int64) != 10 {
		t.Fatalf("read %v", v)
	}
	if _, ok, _ := m.Read("missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func Test_Tx_RollbackDiscardsWriteSet(t *testing.T) {
	m := NewTransactionManager()
	tx := beginTx(t, m)
	txWrite(t, m, "k", IntValue(1))
	if err := m.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if tx.State != TxRolledBack {
		t.Fatalf("state %v", tx.State)
	}
	if _, ok := m.GetCommitted("k"); ok {
		t.Fatal("rolled-back write reached storage")
	}
}

func Test_Tx_SavepointRestoresSnapshot(t *testing.T) {
	m := NewTransactionManager()
	tx := beginTx(t, m)
	txWrite(t, m, "a", IntValue(1))
	if err := m.CreateSavepoint("sp1"); err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	txWrite(t, m, "b", IntValue(2))
	txWrite(t, m, "a", IntValue(99))
	if err := m.RollbackToSavepoint("sp1"); err != nil {
		t.Fatalf("rollback to savepoint: %v", err)
	}

	if tx.WriteSetSize() != 1 {
		t.Fatalf("write set size %d after restore", tx.WriteSetSize())
	}
	v, _, _ := m.Read("a")
	if v.Data.(int64) != 1 {
		t.Fatalf("a = %v, want pre-savepoint value", v)
	}
	if _, ok, _ := m.Read("b"); ok {
		t.Fatal("b should be gone after restore")
	}
	if tx.State != TxActive {
		t.Fatal("transaction should stay active across savepoint rollback")
	}
}

func Test_Tx_SavepointDropsLaterSavepoints(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	if err := m.CreateSavepoint("first"); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSavepoint("second"); err != nil {
		t.Fatal(err)
	}
	if err := m.RollbackToSavepoint("first"); err != nil {
		t.Fatal(err)
	}
	if err := m.RollbackToSavepoint("second"); !errors.Is(err, ErrSavepointNotFound) {
		t.Fatalf("err = %v, want ErrSavepointNotFound", err)
	}
}

func Test_Tx_UnknownSavepoint(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	if err := m.RollbackToSavepoint("nope"); !errors.Is(err, ErrSavepointNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func Test_Tx_MaxKeysEnforced(t *testing.T) {
	m := NewTransactionManager().WithMaxKeysPerTransaction(2)
	beginTx(t, m)
	txWrite(t, m, "a", IntValue(1))
	txWrite(t, m, "b", IntValue(2))
	// Rewriting an existing key is fine; a third distinct key is not.
	txWrite(t, m, "a", IntValue(3))
	if err := m.Write("c", IntValue(4)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

func Test_Tx_WriteIsolatedFromCallerMutation(t *testing.T) {
	m := NewTransactionManager()
	beginTx(t, m)
	list := ListValue([]Value{IntValue(1)})
	txWrite(t, m, "xs", list)
	// Mutating the caller's value must not leak into the write set.
	list.Data.([]Value)[0] = IntValue(999)
	v, _, _ := m.Read("xs")
	if v.Data.([]Value)[0].Data.(int64) != 1 {
		t.Fatal("write set shares memory with caller value")
	}
}

func Test_Tx_EventCallbackSequence(t *testing.T) {
	m := NewTransactionManager()
	var kinds []TxEventKind
	m.OnEvent(func(ev TxEvent) { kinds = append(kinds, ev.Kind) })

	beginTx(t, m)
	txWrite(t, m, "k", IntValue(1))
	if err := m.CreateSavepoint("sp"); err != nil {
		t.Fatal(err)
	}
	if err := m.RollbackToSavepoint("sp"); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	want := []TxEventKind{TxEventBegin, TxEventWrite, TxEventSavepointCreate, TxEventSavepointRollback, TxEventCommit}
	if len(kinds) != len(want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func Test_Tx_TimedOutMetadata(t *testing.T) {
	m := NewTransactionManager()
	tx, err := m.Begin(ReadCommitted, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if !tx.TimedOut() {
		t.Fatal("transaction should report timed out")
	}
}

func Test_Tx_IsolationLevelRoundTrip(t *testing.T) {
	for _, name := range []string{"read_uncommitted", "read_committed", "repeatable_read", "serializable"} {
		lv, ok := IsolationLevelFromString(name)
		if !ok {
			t.Fatalf("level %q not recognized", name)
		}
		if lv.String() != name {
			t.Fatalf("level %q round-trips to %q", name, lv.String())
		}
	}
	if lv, ok := IsolationLevelFromString("ReadCommitted"); !ok || lv != ReadCommitted {
		t.Fatalf("camel-case spelling: %v %v", lv, ok)
	}
	if _, ok := IsolationLevelFromString("bogus"); ok {
		t.Fatal("bogus level accepted")
	}
}

// --- storage backends -------------------------------------------------------

func Test_Storage_MemoryBasics(t *testing.T) {
	s := NewMemoryStorage()
	if s.Len() != 0 {
		t.Fatalf("len %d", s.Len())
	}
	if err := s.Set("k", StringValue("v")); err != nil {
		t.Fatal(err)
	}
	if !s.Contains("k") {
		t.Fatal("Contains")
	}
	v, ok := s.Get("k")
	if !ok || v.Data.(string) != "v" {
		t.Fatalf("get %v %v", v, ok)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if s.Contains("k") || s.Len() != 0 {
		t.Fatal("remove did not take")
	}
}

func Test_Storage_MemoryClonesOnGet(t *testing.T) {
	s := NewMemoryStorage()
	if err := s.Set("m", MapValue(map[string]Value{"n": IntValue(1)})); err != nil {
		t.Fatal(err)
	}
	v, _ := s.Get("m")
	v.Data.(map[string]Value)["n"] = IntValue(2)
	again, _ := s.Get("m")
	if again.Data.(map[string]Value)["n"].Data.(int64) != 1 {
		t.Fatal("stored value shares memory with a returned copy")
	}
}

func Test_Storage_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	nested := MapValue(map[string]Value{
		"n":  IntValue(42),
		"f":  FloatValue(1.5),
		"s":  StringValue("hi"),
		"ls": ListValue([]Value{BoolValue(true), NullValue}),
	})
	if err := s.Set("doc", nested); err != nil {
		t.Fatal(err)
	}

	// A second store over the same file sees the committed state.
	reopened, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := reopened.Get("doc")
	if !ok {
		t.Fatal("doc missing after reopen")
	}
	m := v.Data.(map[string]Value)
	if m["n"].Data.(int64) != 42 {
		t.Fatalf("n = %v", m["n"])
	}
	if m["f"].Tag != VFloat {
		t.Fatalf("float tag lost: %v", m["f"].TypeName())
	}
	ls := m["ls"].Data.([]Value)
	if ls[1].Tag != VNull {
		t.Fatalf("null element lost: %v", ls[1])
	}
}

func Test_Storage_FileDistinguishesIntAndFloat(t *testing.T) {
	// Plain JSON would merge 2 and 2.0; the tagged encoding must not.
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("i", IntValue(2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("f", FloatValue(2)); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	i, _ := reopened.Get("i")
	f, _ := reopened.Get("f")
	if i.Tag != VInt || f.Tag != VFloat {
		t.Fatalf("tags %s/%s", i.TypeName(), f.TypeName())
	}
}

func Test_Storage_FileBackedCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	m := NewTransactionManagerWithStorage(fs)
	beginTx(t, m)
	txWrite(t, m, "persisted", IntValue(7))
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not written: %v", err)
	}
}

// --- transaction log ---------------------------------------------------------

func Test_TxLog_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "tx.log")
	m, err := NewTransactionManager().WithTransactionLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	tx, err := m.Begin(Serializable, 0)
	if err != nil {
		t.Fatal(err)
	}
	txWrite(t, m, "k", IntValue(1))
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var entries []TxLogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e TxLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 3 {
		t.Fatalf("log entries %d, want begin/write/commit", len(entries))
	}
	if entries[0].EventType != "begin" || entries[0].Isolation != "serializable" {
		t.Fatalf("begin entry: %+v", entries[0])
	}
	if entries[1].EventType != "write" || entries[1].TxID != tx.ID {
		t.Fatalf("write entry: %+v", entries[1])
	}
	if entries[2].EventType != "commit" || len(entries[2].Keys) != 1 {
		t.Fatalf("commit entry: %+v", entries[2])
	}
}

// --- environment configuration ----------------------------------------------

func Test_TxManagerFromEnv_Defaults(t *testing.T) {
	t.Setenv("SERVAL_TX_STORAGE", "")
	t.Setenv("SERVAL_TX_TIMEOUT_MS", "")
	t.Setenv("SERVAL_TX_MAX_KEYS", "")
	t.Setenv("SERVAL_TX_LOG_PATH", "")
	m, err := TxManagerFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if _, ok := m.storage.(*MemoryStorage); !ok {
		t.Fatalf("default storage %T", m.storage)
	}
}

func Test_TxManagerFromEnv_FileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env_state.json")
	t.Setenv("SERVAL_TX_STORAGE", "file")
	t.Setenv("SERVAL_TX_STORAGE_PATH", path)
	t.Setenv("SERVAL_TX_TIMEOUT_MS", "250")
	t.Setenv("SERVAL_TX_MAX_KEYS", "5")
	t.Setenv("SERVAL_TX_LOG_PATH", "")
	m, err := TxManagerFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if _, ok := m.storage.(*FileStorage); !ok {
		t.Fatalf("storage %T", m.storage)
	}
	if m.timeout != 250*time.Millisecond {
		t.Fatalf("timeout %v", m.timeout)
	}
	if m.maxKeys != 5 {
		t.Fatalf("maxKeys %d", m.maxKeys)
	}
}

func Test_TxManagerFromEnv_RejectsBadValues(t *testing.T) {
	t.Setenv("SERVAL_TX_STORAGE", "carrier-pigeon")
	if _, err := TxManagerFromEnv(); err == nil {
		t.Fatal("unknown backend accepted")
	}
	t.Setenv("SERVAL_TX_STORAGE", "memory")
	t.Setenv("SERVAL_TX_TIMEOUT_MS", "-4")
	if _, err := TxManagerFromEnv(); err == nil {
		t.Fatal("negative timeout accepted")
	}
}
