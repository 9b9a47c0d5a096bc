package transaction

import (
	"strings"
	"testing"
)

func TestNewReferenceFormat(t *testing.T) {
	ref := NewReference()
	if !strings.HasPrefix(ref, "TXN-") {
		t.Fatalf("reference %q missing TXN- prefix", ref)
	}
	parts := strings.Split(ref, "-")
	if len(parts) != 3 {
		t.Fatalf("reference %q, want TXN-<time>-<token>", ref)
	}
	if len(parts[2]) != 6 {
		t.Fatalf("token %q length = %d, want 6", parts[2], len(parts[2]))
	}
	if ref != strings.ToUpper(ref) {
		t.Fatalf("reference %q not uppercase", ref)
	}
}

func TestNewReferenceUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		ref := NewReference()
		if _, dup := seen[ref]; dup {
			t.Fatalf("duplicate reference %q after %d draws", ref, i)
		}
		seen[ref] = struct{}{}
	}
}

func TestNewHash(t *testing.T) {
	hash := NewHash()
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64", len(hash))
	}
	for _, c := range hash {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("hash %q contains non-hex rune %q", hash, c)
		}
	}
	if NewHash() == hash {
		t.Fatal("two hashes collided")
	}
}
