// Package codecache turns compiled units into loaded, callable code
// inside isolated installation domains, bounds how much a domain may be
// reused, and persists compiled units keyed by source identity so
// generated code can be re-installed across runs without re-running the
// front end.
package codecache

import (
	"crypto/sha256"
	"encoding/hex"
)

// CacheKeyScript is the fixed persisted-unit cache key for top-level
// scripts.
const CacheKeyScript = "script"

// Source is one piece of source text together with its identity.
type Source struct {
	Name string
	Text string

	id string
}

// NewSource creates a source handle. The identity is computed up front:
// compilation requests may share a Source across goroutines.
func NewSource(name, text string) *Source {
	sum := sha256.Sum256([]byte(text))
	return &Source{Name: name, Text: text, id: hex.EncodeToString(sum[:])}
}

// ID returns the source identity: the hex SHA-256 of the text. Two
// sources with equal text share cached and persisted compilations.
func (s *Source) ID() string { return s.id }

// Len returns the source length in bytes.
func (s *Source) Len() int { return len(s.Text) }
