// Package policy holds the capability policy the load gate enforces.
//
// A policy is loaded once at process start and is read-only afterwards.
// Widening the capability envelope requires a restart, which is itself an
// auditable event; nothing in this package mutates a policy after New.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Policy is the process-wide capability policy: which module specifiers a
// loaded module may import, and which global names mark it as able to reach
// outside the process.
type Policy struct {
	safelist  map[string]struct{}
	forbidden map[string]struct{}
}

// File is the YAML shape of a policy overlay.
type File struct {
	// SafelistModules replaces the default safelist when non-empty.
	SafelistModules []string `yaml:"safelist_modules"`
	// ForbiddenGlobals replaces the default catalog when non-empty.
	ForbiddenGlobals []string `yaml:"forbidden_globals"`
	// AdditionalForbiddenGlobals extends the catalog without replacing it.
	AdditionalForbiddenGlobals []string `yaml:"additional_forbidden_globals"`
}

// DefaultSafelist returns the module specifiers permitted by default:
// the platform's built-in cryptography module only.
func DefaultSafelist() []string {
	return []string{"crypto", "node:crypto"}
}

// DefaultForbiddenGlobals returns the catalog of capability-bearing global
// names. A free reference to any of these marks the module as able to reach
// the outside world or to evaluate code the analyzer never saw.
func DefaultForbiddenGlobals() []string {
	return []string{
		// Network I/O
		"fetch",
		"XMLHttpRequest",
		"WebSocket",
		"EventSource",
		"Request",
		"Response",
		"Headers",
		"navigator",
		"sendBeacon",
		// Storage
		"localStorage",
		"sessionStorage",
		"indexedDB",
		"caches",
		// Host environment
		"window",
		"document",
		"self",
		"globalThis",
		"process",
		// Dynamic evaluation
		"eval",
		"Function",
		"WebAssembly",
		// Loader access outside the syntactic forms the analyzer resolves
		"require",
		"importScripts",
		"Worker",
		"SharedWorker",
	}
}

// New builds a policy from explicit sets. Empty slices fall back to defaults.
func New(safelist, forbidden []string) *Policy {
	if len(safelist) == 0 {
		safelist = DefaultSafelist()
	}
	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenGlobals()
	}

	p := &Policy{
		safelist:  make(map[string]struct{}, len(safelist)),
		forbidden: make(map[string]struct{}, len(forbidden)),
	}
	for _, m := range safelist {
		p.safelist[normalizeSpecifier(m)] = struct{}{}
	}
	for _, g := range forbidden {
		p.forbidden[g] = struct{}{}
	}
	return p
}

// Default returns the built-in policy.
func Default() *Policy {
	return New(nil, nil)
}

// Load reads a YAML overlay and builds an immutable policy from it.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	forbidden := f.ForbiddenGlobals
	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenGlobals()
	}
	forbidden = append(forbidden, f.AdditionalForbiddenGlobals...)

	return New(f.SafelistModules, forbidden), nil
}

// SafelistsModule reports whether the specifier is a permitted import target.
func (p *Policy) SafelistsModule(specifier string) bool {
	_, ok := p.safelist[normalizeSpecifier(specifier)]
	return ok
}

// ForbidsGlobal reports whether the global name is in the forbidden catalog.
func (p *Policy) ForbidsGlobal(name string) bool {
	_, ok := p.forbidden[name]
	return ok
}

// SafelistModules returns a sorted copy of the safelist.
func (p *Policy) SafelistModules() []string {
	out := make([]string, 0, len(p.safelist))
	for m := range p.safelist {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ForbiddenGlobals returns a sorted copy of the forbidden catalog.
func (p *Policy) ForbiddenGlobals() []string {
	out := make([]string, 0, len(p.forbidden))
	for g := range p.forbidden {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// normalizeSpecifier folds the node: scheme prefix so "crypto" and
// "node:crypto" pin the same built-in.
func normalizeSpecifier(specifier string) string {
	return strings.TrimPrefix(specifier, "node:")
}
