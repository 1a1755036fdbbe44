package analyzer

// CryptoUsage classifies a module's use of cryptographic capability.
type CryptoUsage string

const (
	// CryptoNone means no capability-bearing import, require, or global
	// reference is present at all.
	CryptoNone CryptoUsage = "none"
	// CryptoBuiltinOnly means the only capability the module reaches for is
	// the platform's built-in cryptography module.
	CryptoBuiltinOnly CryptoUsage = "builtin-only"
	// CryptoSuspicious is everything else, including unparseable input.
	CryptoSuspicious CryptoUsage = "suspicious"
)

// Report is the capability report derived from one module source.
// It is immutable once returned and keyed by SourceHash.
type Report struct {
	SourceHash        string      `json:"source_hash"`
	DeclaredImports   []string    `json:"declared_imports"`
	DeclaredRequires  []string    `json:"declared_requires"`
	AccessedGlobals   []string    `json:"accessed_globals"`
	CryptoUsage       CryptoUsage `json:"crypto_usage"`
	CanAccessExternal bool        `json:"can_access_external"`

	// ParseFailed marks input the parser rejected. Unparseable input is
	// never trusted, so ParseFailed implies CanAccessExternal.
	ParseFailed bool `json:"parse_failed,omitempty"`

	// Findings are human-readable reasons behind the verdict, in detection
	// order. They name offending specifiers and globals, never source text.
	Findings []string `json:"findings,omitempty"`
}

// Summary is the caller-facing result shape for the analyzer.
type Summary struct {
	SourceHash        string      `json:"source_hash"`
	HasImports        bool        `json:"has_imports"`
	HasRequires       bool        `json:"has_requires"`
	RequiredModules   []string    `json:"required_modules"`
	AccessedGlobals   []string    `json:"accessed_globals"`
	CryptoUsage       CryptoUsage `json:"crypto_usage"`
	CanAccessExternal bool        `json:"can_access_external"`
}

// Summarize collapses the report into the caller-facing shape.
func (r *Report) Summarize() Summary {
	required := make([]string, 0, len(r.DeclaredImports)+len(r.DeclaredRequires))
	required = append(required, r.DeclaredImports...)
	for _, m := range r.DeclaredRequires {
		if !contains(required, m) {
			required = append(required, m)
		}
	}
	return Summary{
		SourceHash:        r.SourceHash,
		HasImports:        len(r.DeclaredImports) > 0,
		HasRequires:       len(r.DeclaredRequires) > 0,
		RequiredModules:   required,
		AccessedGlobals:   append([]string(nil), r.AccessedGlobals...),
		CryptoUsage:       r.CryptoUsage,
		CanAccessExternal: r.CanAccessExternal,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
