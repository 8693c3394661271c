package uuid

import (
	"errors"
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if _, err := goUUID.Parse(id1); err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
}

// TestGeneratorRunIDsAreVersion7 checks run IDs are time ordered.
func TestGeneratorRunIDsAreVersion7(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	second, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if first.Version() != 7 {
		t.Fatalf("expected version 7, got %d", first.Version())
	}
	if first.String() >= second.String() {
		t.Fatalf("expected %s to sort before %s", first, second)
	}
}

func TestGeneratorWrapsSourceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("entropy exhausted")
	gen := &Generator{source: func() (goUUID.UUID, error) { return goUUID.Nil, boom }}
	if _, err := gen.NewRunID(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
	if _, err := gen.NewID(); err == nil {
		t.Fatal("expected NewID to fail")
	}
}

func TestZeroGeneratorFallsBackToV7(t *testing.T) {
	t.Parallel()

	var gen *Generator
	id, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if id == goUUID.Nil {
		t.Fatal("expected non-nil id")
	}
}
