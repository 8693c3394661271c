// Package uuid generates sync run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered (v7) run IDs, so runs sort by start time.
type Generator struct {
	source func() (uuid.UUID, error)
}

// New creates a Generator backed by uuid.NewV7.
func New() *Generator {
	return &Generator{source: uuid.NewV7}
}

// NewRunID returns a fresh UUIDv7.
func (g *Generator) NewRunID() (uuid.UUID, error) {
	source := uuid.NewV7
	if g != nil && g.source != nil {
		source = g.source
	}
	id, err := source()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// NewID returns NewRunID in its canonical string form.
func (g *Generator) NewID() (string, error) {
	id, err := g.NewRunID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
