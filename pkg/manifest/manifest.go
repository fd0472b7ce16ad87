// Package manifest models the typed contract of a validated script: its
// declared inputs, its external-function signatures, and its optional return
// type. The manifest is derived deterministically from validated syntax and
// is half of every cache key.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// InputDeclaration is one declared input value.
type InputDeclaration struct {
	Name     string
	Type     Type
	Required bool
}

// Param is a named, typed external-function parameter.
type Param struct {
	Name string
	Type Type
}

// ExternalDeclaration is one host-provided function signature.
type ExternalDeclaration struct {
	Name   string
	Params []Param
	Return Type
	// Async marks externals declared async or awaited at any call site.
	Async bool
	// Ordered externals must be dispatched in call order when the engine
	// batches pending calls; unordered externals may run concurrently.
	Ordered bool
}

// Manifest is the script's declared contract. Declaration order follows
// source order, which makes the manifest (and its hash) deterministic.
type Manifest struct {
	Inputs     []InputDeclaration
	Externals  []ExternalDeclaration
	ReturnType Type
}

// Input returns the named input declaration.
func (m *Manifest) Input(name string) (InputDeclaration, bool) {
	for _, in := range m.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputDeclaration{}, false
}

// ExternalIndex resolves an external name to its manifest index.
func (m *Manifest) ExternalIndex(name string) (int, bool) {
	for i, ext := range m.Externals {
		if ext.Name == name {
			return i, true
		}
	}
	return 0, false
}

// External returns the declaration at a generation-time index.
func (m *Manifest) External(index int) (ExternalDeclaration, error) {
	if index < 0 || index >= len(m.Externals) {
		return ExternalDeclaration{}, fmt.Errorf("manifest: external index %d out of range (have %d)", index, len(m.Externals))
	}
	return m.Externals[index], nil
}

// Hash returns the hex sha256 of the manifest's canonical signature
// encoding. Two manifests with the same declarations in the same order hash
// identically.
func (m *Manifest) Hash() string {
	hasher := sha256.New()
	hasher.Write([]byte("manifest:v1\n"))
	for _, in := range m.Inputs {
		fmt.Fprintf(hasher, "input:%s:%s:%t\n", in.Name, in.Type.Key(), in.Required)
	}
	for _, ext := range m.Externals {
		fmt.Fprintf(hasher, "external:%s\n", signatureKey(ext))
	}
	fmt.Fprintf(hasher, "return:%s\n", m.ReturnType.Key())
	return hex.EncodeToString(hasher.Sum(nil))
}

func signatureKey(ext ExternalDeclaration) string {
	params := make([]string, len(ext.Params))
	for i, p := range ext.Params {
		params[i] = p.Name + ":" + p.Type.Key()
	}
	marker := "sync"
	if ext.Async {
		marker = "async"
	}
	if ext.Ordered {
		marker += ",ordered"
	}
	return fmt.Sprintf("%s(%s)->%s[%s]", ext.Name, strings.Join(params, ","), ext.Return.Key(), marker)
}
