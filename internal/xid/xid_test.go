package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("req")
	b := New("req")
	if !strings.HasPrefix(a, "req-") {
		t.Fatalf("expected req- prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected unique ids, got %q twice", a)
	}
	if len(New("")) != 36 {
		t.Fatalf("expected bare uuid without prefix")
	}
}

func TestValidRejectsControlCharacters(t *testing.T) {
	if !Valid("req-abc") {
		t.Fatalf("expected plain id to be valid")
	}
	if Valid("bad\nid") || Valid("") || Valid(strings.Repeat("x", 200)) {
		t.Fatalf("expected invalid ids to be rejected")
	}
}
