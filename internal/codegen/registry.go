package codegen

import "sort"

var registered = map[string]Backend{}
var canonicalNames []string

// Register adds b under its canonical name and every alias. Called once
// per backend from each backend package's init, so the set of compiled-in
// targets is exactly the set of backend packages blank-imported by the
// binary (cmd/bfaotc imports all four).
func Register(b Backend) {
	if _, exists := registered[b.Name()]; !exists {
		canonicalNames = append(canonicalNames, b.Name())
	}
	registered[b.Name()] = b
	for _, alias := range b.Aliases() {
		registered[alias] = b
	}
}

// Lookup resolves a -target-arch name or alias to its Backend. ok is false
// for an unrecognised name (cmd/bfaotc turns that into ErrUnknownArch).
func Lookup(name string) (b Backend, ok bool) {
	b, ok = registered[name]
	return b, ok
}

// Names returns the canonical names of every registered backend, sorted,
// for -list-targets.
func Names() []string {
	out := make([]string, len(canonicalNames))
	copy(out, canonicalNames)
	sort.Strings(out)
	return out
}
