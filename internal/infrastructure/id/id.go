package id

import "github.com/google/uuid"

// Generator issues UUIDv4 identifiers.
type Generator struct{}

func NewGenerator() Generator { return Generator{} }

func (Generator) NewID() string { return uuid.NewString() }
