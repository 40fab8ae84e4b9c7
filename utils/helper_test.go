package utils

import "testing"

func TestTrimToNil(t *testing.T) {
	if TrimToNil("") != nil {
		t.Fatal("blank string must map to nil")
	}
	if TrimToNil("   ") != nil {
		t.Fatal("whitespace must map to nil")
	}
	got := TrimToNil("  EXT-1  ")
	if got == nil || *got != "EXT-1" {
		t.Fatalf("expected trimmed value, got %v", got)
	}
}

func TestTrimToNilOfDereferencedPointer(t *testing.T) {
	if TrimToNil(DereferencePtr(nil)) != nil {
		t.Fatal("nil pointer must map to nil")
	}
	blank := "  "
	if TrimToNil(DereferencePtr(&blank)) != nil {
		t.Fatal("blank pointer must map to nil")
	}
	value := " abc-123 "
	got := TrimToNil(DereferencePtr(&value))
	if got == nil || *got != "abc-123" {
		t.Fatalf("expected trimmed value, got %v", got)
	}
}
