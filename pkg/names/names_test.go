package names

import (
	"strings"
	"testing"
)

// TestReserveShortNamePassesThrough tests that a short, unreserved name is
// returned unchanged with no rename record.
func TestReserveShortNamePassesThrough(t *testing.T) {
	registry := NewRegistry()

	final, rename := registry.Reserve("a.txt")
	if final != "a.txt" {
		t.Errorf("got %q", final)
	}
	if rename != nil {
		t.Error("expected no rename record for an already-unique short name")
	}
}

// TestReserveDuplicateGetsSuffix tests that reserving the same candidate
// name twice produces a distinct suffixed name the second time.
func TestReserveDuplicateGetsSuffix(t *testing.T) {
	registry := NewRegistry()

	first, _ := registry.Reserve("a.txt")
	second, rename := registry.Reserve("a.txt")

	if first == second {
		t.Error("expected distinct final names for duplicate candidates")
	}
	if rename == nil {
		t.Fatal("expected a rename record for the duplicate")
	}
	if rename.Final != second {
		t.Error("rename record final name mismatch:", rename.Final, second)
	}
}

// TestReserveLongNameTruncated tests that a name exceeding MaxNameBytes is
// truncated so the final name (including extension) fits the budget.
func TestReserveLongNameTruncated(t *testing.T) {
	registry := NewRegistry()

	longStem := strings.Repeat("x", 300)
	final, rename := registry.Reserve(longStem + ".txt")

	if len(final) > MaxNameBytes {
		t.Errorf("final name exceeds MaxNameBytes: %d", len(final))
	}
	if !strings.HasSuffix(final, ".txt") {
		t.Errorf("expected extension to be preserved: %q", final)
	}
	if rename == nil {
		t.Error("expected a rename record for a truncated name")
	}
}

// TestReserveTruncationCollisionGetsDistinctSuffixes tests that two long
// names truncating to the same stem receive distinct _1/_2 suffixes.
func TestReserveTruncationCollisionGetsDistinctSuffixes(t *testing.T) {
	registry := NewRegistry()

	stem := strings.Repeat("y", 300)
	firstFinal, _ := registry.Reserve(stem + "-first.bin")
	secondFinal, rename := registry.Reserve(stem + "-second.bin")

	if firstFinal == secondFinal {
		t.Error("expected distinct final names for colliding truncated stems")
	}
	if rename == nil {
		t.Error("expected a rename record")
	}
	if !strings.HasSuffix(secondFinal, "_1.bin") && !strings.HasSuffix(secondFinal, "_2.bin") {
		t.Errorf("expected ordinal suffix in final name: %q", secondFinal)
	}
}

// TestReserveIsPerDirectory tests that two independent registries do not
// share reservations.
func TestReserveIsPerDirectory(t *testing.T) {
	first := NewRegistry()
	second := NewRegistry()

	a, _ := first.Reserve("a.txt")
	b, _ := second.Reserve("a.txt")

	if a != "a.txt" || b != "a.txt" {
		t.Error("expected independent registries to both accept the same name")
	}
}

// TestReserveNoExtension tests that a candidate with no extension is
// truncated correctly.
func TestReserveNoExtension(t *testing.T) {
	registry := NewRegistry()
	long := strings.Repeat("z", 300)

	final, _ := registry.Reserve(long)
	if len(final) > MaxNameBytes {
		t.Errorf("final name exceeds MaxNameBytes: %d", len(final))
	}
}
