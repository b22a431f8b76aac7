package filter

import (
	"context"
	"errors"
	"testing"

	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

func TestDecideTruthTable(t *testing.T) {
	words := []string{"foo", "bar"}
	cases := []struct {
		name string
		mode storage.FilterMode
		sub  storage.FilterSubmode
		text string
		want Verdict
	}{
		{"blacklist all, one missing", storage.Blacklist, storage.All, "foo only", Continue},
		{"blacklist all, every word", storage.Blacklist, storage.All, "foo and bar", Suppress},
		{"blacklist any, one hit", storage.Blacklist, storage.Any, "just bar", Suppress},
		{"blacklist any, none", storage.Blacklist, storage.Any, "nothing", Continue},
		{"whitelist all, every word", storage.Whitelist, storage.All, "bar foo", Continue},
		{"whitelist all, one missing", storage.Whitelist, storage.All, "foo", Suppress},
		{"whitelist any, one hit", storage.Whitelist, storage.Any, "xfoox", Continue},
		{"whitelist any, none", storage.Whitelist, storage.Any, "nothing", Suppress},
		{"case sensitive", storage.Blacklist, storage.Any, "FOO BAR", Continue},
	}
	for _, tc := range cases {
		if got := Decide(tc.mode, tc.sub, words, tc.text); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

type errStore struct{}

func (errStore) LookupFilter(context.Context, string) (storage.FilterRecord, bool, error) {
	return storage.FilterRecord{}, false, errors.New("db gone")
}

func (errStore) LookupFilterEntries(context.Context, int64) ([]string, error) {
	return nil, errors.New("db gone")
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	defer st.Close()
	if _, err := st.PutFilter(ctx, storage.FilterRecord{Source: "com.chat", Mode: storage.Blacklist, Submode: storage.Any}, []string{"spam"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	f := New(st, logx.Nop())

	if got := f.Check(ctx, "com.chat", Text("Hi", "this is spam")); got != Suppress {
		t.Fatalf("expected suppress, got %v", got)
	}
	if got := f.Check(ctx, "com.chat", Text("Hi", "this is Spam")); got != Continue {
		t.Fatalf("expected continue for different case, got %v", got)
	}
	if got := f.Check(ctx, "com.other", "spam"); got != Continue {
		t.Fatalf("no record must continue, got %v", got)
	}
	if got := New(errStore{}, logx.Nop()).Check(ctx, "com.chat", "spam"); got != Continue {
		t.Fatalf("store error must continue, got %v", got)
	}
	if got := New(nil, logx.Nop()).Check(ctx, "com.chat", "spam"); got != Continue {
		t.Fatalf("nil store must continue, got %v", got)
	}
}
