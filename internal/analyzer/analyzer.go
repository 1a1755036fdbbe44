// Package analyzer derives capability reports from JavaScript module source.
//
// Analysis is purely static: the source is never executed, only hashed,
// scanned, and parsed. The same bytes always produce the same report, so
// reports can be cached by source hash indefinitely.
package analyzer

import (
	"sort"

	"github.com/dop251/goja/parser"

	"github.com/xordi/modguard/internal/policy"
	"github.com/xordi/modguard/internal/shared/hash"
)

// Analyzer produces capability reports for module source under one policy.
// It is safe for concurrent use.
type Analyzer struct {
	pol    *policy.Policy
	hasher *hash.Hasher
}

// New builds an analyzer over the given policy. A nil policy means defaults.
func New(pol *policy.Policy) *Analyzer {
	if pol == nil {
		pol = policy.Default()
	}
	return &Analyzer{
		pol:    pol,
		hasher: hash.Default(),
	}
}

// Analyze inspects one module source and returns its capability report.
// It never returns an error: input the analyzer cannot fully resolve yields
// a report with ParseFailed or CanAccessExternal set, because a module whose
// behavior cannot be established statically must be treated as hostile.
func (a *Analyzer) Analyze(src []byte) *Report {
	report := &Report{
		SourceHash:  a.hasher.Sum(src),
		CryptoUsage: CryptoSuspicious,
	}

	syntax, err := ScanModuleSyntax(src)
	if err != nil {
		report.ParseFailed = true
		report.CanAccessExternal = true
		report.Findings = append(report.Findings, "module syntax not statically resolvable: "+reasonOf(err))
		return report
	}

	prog, err := parser.ParseFile(nil, "module.js", string(syntax.Source), 0)
	if err != nil {
		report.ParseFailed = true
		report.CanAccessExternal = true
		report.Findings = append(report.Findings, "source failed to parse")
		return report
	}

	bound := make([]string, 0, len(syntax.Imports)+1)
	for _, imp := range syntax.Imports {
		report.DeclaredImports = appendUnique(report.DeclaredImports, imp.Specifier)
		for _, b := range imp.Bindings {
			bound = append(bound, b.Local)
		}
	}
	if syntax.IsModule {
		bound = append(bound, DefaultSlot)
	}

	w := newWalker(a.pol.ForbidsGlobal)
	w.walkProgram(prog, bound)

	report.DeclaredRequires = w.requires
	report.AccessedGlobals = sortedKeys(w.globals)
	report.Findings = append(report.Findings, w.findings...)

	specifiers := append([]string(nil), report.DeclaredImports...)
	for _, m := range report.DeclaredRequires {
		specifiers = appendUnique(specifiers, m)
	}
	safelisted := true
	for _, m := range specifiers {
		if !a.pol.SafelistsModule(m) {
			safelisted = false
			report.Findings = append(report.Findings, "import outside safelist: "+m)
		}
	}

	clean := safelisted && len(report.AccessedGlobals) == 0 && !w.failed
	switch {
	case w.failed:
		report.CryptoUsage = CryptoSuspicious
	case clean && len(specifiers) == 0:
		report.CryptoUsage = CryptoNone
	case clean:
		report.CryptoUsage = CryptoBuiltinOnly
	default:
		report.CryptoUsage = CryptoSuspicious
	}
	report.CanAccessExternal = !clean

	return report
}

// Policy returns the policy this analyzer enforces.
func (a *Analyzer) Policy() *policy.Policy {
	return a.pol
}

func reasonOf(err error) string {
	if se, ok := err.(*SyntaxError); ok {
		return se.Reason
	}
	return err.Error()
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
