package serval

import (
	"testing"
)

func Test_Strings_Substr(t *testing.T) {
	wantString(t, runValue(t, `substr("héllo", 1, 3);`), "él")
	wantString(t, runValue(t, `substr("abc", -5, 99);`), "abc")
	wantString(t, runValue(t, `substr("abc", 2, 1);`), "")
}

func Test_Strings_CaseAndTrim(t *testing.T) {
	wantString(t, runValue(t, `upper("héllo");`), "HÉLLO")
	// Simple case mapping only: ß has no single-rune uppercase form.
	wantString(t, runValue(t, `upper("straße");`), "STRAßE")
	wantString(t, runValue(t, `lower("HeLLo");`), "hello")
	wantString(t, runValue(t, `trim("  padded\t");`), "padded")
}

func Test_Strings_SplitJoin(t *testing.T) {
	v := runValue(t, `split("a,b,c", ",");`)
	if v.Tag != VList || len(v.Data.([]Value)) != 3 {
		t.Fatalf("split = %s", v.String())
	}
	wantString(t, runValue(t, `join(split("a,b,c", ","), "-");`), "a-b-c")
}

func Test_Strings_JoinRejectsNonStrings(t *testing.T) {
	runFailContains(t, `join([1, 2], "-");`, "list of strings")
}

func Test_Strings_Replace(t *testing.T) {
	wantString(t, runValue(t, `replace("a.b.c", ".", "/");`), "a/b/c")
}

func Test_Strings_PrefixSuffix(t *testing.T) {
	wantBool(t, runValue(t, `starts_with("serval.yml", "serval");`), true)
	wantBool(t, runValue(t, `ends_with("serval.yml", ".yaml");`), false)
}

func Test_Strings_IndexOf(t *testing.T) {
	wantInt(t, runValue(t, `index_of("héllo", "llo");`), 2)
	wantInt(t, runValue(t, `index_of("abc", "z");`), -1)
}

func Test_Strings_TypeErrors(t *testing.T) {
	runFailContains(t, `upper(42);`, "expects a string")
	runFailContains(t, `split("a", 1);`, "expects a string")
}
