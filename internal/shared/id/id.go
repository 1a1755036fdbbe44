// Package id provides centralized ID generation for the verifier.
//
// IDs are prefixed ULIDs: lexicographically sortable, so audit records can
// be replayed in decision order without comparing timestamps, and prefixed
// so a record id is distinguishable from a request id in operator logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RecordID identifies an audit record
type RecordID string

// RequestID identifies an API request
type RequestID string

// LoadID identifies one pass through the load gate
type LoadID string

const (
	RecordPrefix  = "rec"
	RequestPrefix = "req"
	LoadPrefix    = "load"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator with secure entropy
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRecordID generates a new audit record ID
func NewRecordID() RecordID {
	return RecordID(Default().GenerateWithPrefix(RecordPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewLoadID generates a new load pass ID
func NewLoadID() LoadID {
	return LoadID(Default().GenerateWithPrefix(LoadPrefix))
}
