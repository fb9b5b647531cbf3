// capability_test.go
package serval

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
)

func dispatchOK(t *testing.T, tbl *CapabilityTable, ns, fn string, args ...Value) Value {
	t.Helper()
	v, err := tbl.Dispatch(ns, fn, args)
	if err != nil {
		t.Fatalf("%s::%s: %v", ns, fn, err)
	}
	return v
}

func dispatchFails(t *testing.T, tbl *CapabilityTable, ns, fn string, args ...Value) *ExternalDispatchError {
	t.Helper()
	_, err := tbl.Dispatch(ns, fn, args)
	if err == nil {
		t.Fatalf("%s::%s: expected error", ns, fn)
	}
	var derr *ExternalDispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("%s::%s: error %T is not an ExternalDispatchError", ns, fn, err)
	}
	return derr
}

func defaultTable() *CapabilityTable {
	rt := NewRuntime()
	return rt.Capabilities()
}

func Test_Capability_TableBasics(t *testing.T) {
	tbl := NewCapabilityTable()
	if tbl.HasNamespace("chain") {
		t.Fatal("empty table has a namespace")
	}
	tbl.Register("chain", "height", func(args []Value) (Value, error) {
		return IntValue(7), nil
	})
	if !tbl.Has("chain", "height") || tbl.Has("chain", "width") {
		t.Fatal("Has misreports registration")
	}
	v := dispatchOK(t, tbl, "chain", "height")
	if v.Data.(int64) != 7 {
		t.Fatalf("dispatch %v", v)
	}
}

func Test_Capability_DefaultNamespaces(t *testing.T) {
	got := defaultTable().Namespaces()
	want := []string{"crypto", "log", "time", "util", "web"}
	if len(got) != len(want) {
		t.Fatalf("namespaces %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("namespaces %v, want %v", got, want)
		}
	}
}

func Test_Capability_DispatchErrors(t *testing.T) {
	tbl := defaultTable()

	derr := dispatchFails(t, tbl, "ghost", "fn")
	if derr.Capability != "ghost::fn" {
		t.Fatalf("capability %q", derr.Capability)
	}
	if !strings.Contains(derr.Error(), "unknown namespace") {
		t.Fatalf("err %v", derr)
	}

	derr = dispatchFails(t, tbl, "crypto", "ghost")
	if !strings.Contains(derr.Error(), "unknown function") {
		t.Fatalf("err %v", derr)
	}

	// A handler failure is also wrapped.
	derr = dispatchFails(t, tbl, "crypto", "sha256")
	if !strings.Contains(derr.Error(), "crypto::sha256") {
		t.Fatalf("err %v", derr)
	}
}

func Test_Capability_CryptoDigests(t *testing.T) {
	tbl := defaultTable()

	v := dispatchOK(t, tbl, "crypto", "sha256", StringValue("abc"))
	if v.Data.(string) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("sha256 %v", v)
	}

	short := dispatchOK(t, tbl, "crypto", "hash_hex", StringValue("abc"))
	if got := short.Data.(string); len(got) != 16 || !strings.HasPrefix(v.Data.(string), got) {
		t.Fatalf("hash_hex %q", got)
	}

	// HMAC-SHA256 with key "key" over "The quick brown fox jumps over the lazy dog".
	mac := dispatchOK(t, tbl, "crypto", "hmac_sha256",
		StringValue("key"), StringValue("The quick brown fox jumps over the lazy dog"))
	if mac.Data.(string) != "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8" {
		t.Fatalf("hmac %v", mac)
	}
}

func Test_Capability_CryptoRandom(t *testing.T) {
	tbl := defaultTable()

	v := dispatchOK(t, tbl, "crypto", "random_hex", IntValue(16))
	if len(v.Data.(string)) != 32 {
		t.Fatalf("random_hex length %d", len(v.Data.(string)))
	}
	dispatchFails(t, tbl, "crypto", "random_hex", IntValue(0))
	dispatchFails(t, tbl, "crypto", "random_hex", IntValue(2048))

	u := dispatchOK(t, tbl, "crypto", "uuid")
	uuidRe := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !uuidRe.MatchString(u.Data.(string)) {
		t.Fatalf("uuid %q", u.Data.(string))
	}
}

func Test_Capability_TimeFormat(t *testing.T) {
	tbl := defaultTable()
	// Epoch zero formats deterministically in UTC.
	v := dispatchOK(t, tbl, "time", "format", IntValue(0), StringValue("%Y-%m-%d"))
	if v.Data.(string) != "1970-01-01" {
		t.Fatalf("format %v", v)
	}
	dispatchFails(t, tbl, "time", "format", StringValue("not-a-timestamp"))
	dispatchFails(t, tbl, "time", "sleep_ms", IntValue(-1))
}

func Test_Capability_UtilJSONRoundTrip(t *testing.T) {
	tbl := defaultTable()

	in := MapValue(map[string]Value{
		"name":  StringValue("serval"),
		"count": IntValue(3),
		"ratio": FloatValue(0.5),
		"tags":  ListValue([]Value{StringValue("a"), NullValue}),
	})
	encoded := dispatchOK(t, tbl, "util", "to_json", in)
	decoded := dispatchOK(t, tbl, "util", "from_json", encoded)

	if !decoded.Equals(in) {
		t.Fatalf("round trip mismatch:\n in: %v\nout: %v", in, decoded)
	}

	// Whole JSON numbers come back as Int, fractional ones as Float.
	n := dispatchOK(t, tbl, "util", "from_json", StringValue(`{"a": 2, "b": 2.5}`))
	m := n.Data.(map[string]Value)
	if m["a"].Tag != VInt || m["b"].Tag != VFloat {
		t.Fatalf("number tags %s/%s", m["a"].TypeName(), m["b"].TypeName())
	}

	dispatchFails(t, tbl, "util", "from_json", StringValue("{not json"))
}

func Test_Capability_UtilLenAndEnv(t *testing.T) {
	tbl := defaultTable()
	v := dispatchOK(t, tbl, "util", "len", StringValue("hello"))
	if v.Data.(int64) != 5 {
		t.Fatalf("len %v", v)
	}
	dispatchFails(t, tbl, "util", "len", IntValue(1))

	t.Setenv("SERVAL_CAP_TEST_VAR", "present")
	v = dispatchOK(t, tbl, "util", "env", StringValue("SERVAL_CAP_TEST_VAR"))
	if v.Data.(string) != "present" {
		t.Fatalf("env %v", v)
	}
	missing := dispatchOK(t, tbl, "util", "env", StringValue("SERVAL_CAP_TEST_MISSING"))
	if missing.Tag != VNull {
		t.Fatalf("missing env %v", missing)
	}
}

func Test_Capability_WebURLEncode(t *testing.T) {
	tbl := defaultTable()
	v := dispatchOK(t, tbl, "web", "url_encode", StringValue("a b&c"))
	if v.Data.(string) != "a+b%26c" {
		t.Fatalf("url_encode %v", v)
	}
	// Relative URLs are refused before any network access happens.
	dispatchFails(t, tbl, "web", "http_get", StringValue("ftp://example.com"))
}

func Test_Capability_LogLevelsAndAudit(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewCapabilityTable()
	sink := &AuditSink{}
	registerLogCapabilities(tbl, &buf, sink)

	dispatchOK(t, tbl, "log", "info", StringValue("starting"), IntValue(3))
	dispatchOK(t, tbl, "log", "warn", StringValue("careful"))
	dispatchOK(t, tbl, "log", "audit", StringValue("transfer"), StringValue("done"))
	dispatchFails(t, tbl, "log", "info")

	out := buf.String()
	if !strings.Contains(out, "[INFO] starting 3") || !strings.Contains(out, "[WARN] careful") {
		t.Fatalf("log output %q", out)
	}
	if !strings.Contains(out, "[AUDIT] transfer done") {
		t.Fatalf("log output %q", out)
	}
	// Only log::audit lands in the sink.
	entries := sink.Entries()
	if len(entries) != 1 || entries[0] != "transfer done" {
		t.Fatalf("audit entries %v", entries)
	}
}
