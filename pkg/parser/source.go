package parser

import (
	"crypto/sha256"
	"encoding/hex"
)

// Source is immutable script text plus its identity hash.
type Source struct {
	text string
	hash string
}

// NewSource wraps UTF-8 script text, computing its content hash once.
func NewSource(text string) *Source {
	sum := sha256.Sum256([]byte(text))
	return &Source{text: text, hash: hex.EncodeToString(sum[:])}
}

// Text returns the script text.
func (s *Source) Text() string { return s.text }

// Bytes returns the script text as bytes for the parser.
func (s *Source) Bytes() []byte { return []byte(s.text) }

// Hash returns the hex sha256 of the text.
func (s *Source) Hash() string { return s.hash }
