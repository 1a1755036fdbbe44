package analyzer

import (
	"strings"
	"testing"
)

func TestScanModuleSyntaxImports(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		imports  []string
		bindings []ImportBinding
	}{
		{
			name:    "side effect import",
			src:     `import "node:crypto";`,
			imports: []string{"node:crypto"},
		},
		{
			name:     "default import",
			src:      `import crypto from 'crypto';`,
			imports:  []string{"crypto"},
			bindings: []ImportBinding{{Local: "crypto", Imported: "default"}},
		},
		{
			name:    "named imports with alias",
			src:     `import { createHash as ch, createHmac } from "crypto";`,
			imports: []string{"crypto"},
			bindings: []ImportBinding{
				{Local: "ch", Imported: "createHash"},
				{Local: "createHmac", Imported: "createHmac"},
			},
		},
		{
			name:     "namespace import",
			src:      `import * as crypto from "node:crypto";`,
			imports:  []string{"node:crypto"},
			bindings: []ImportBinding{{Local: "crypto", Imported: "*"}},
		},
		{
			name:    "default plus named",
			src:     `import dflt, { other } from "pkg";`,
			imports: []string{"pkg"},
			bindings: []ImportBinding{
				{Local: "dflt", Imported: "default"},
				{Local: "other", Imported: "other"},
			},
		},
		{
			name:    "star re-export",
			src:     `export * from "crypto";`,
			imports: []string{"crypto"},
		},
		{
			name:    "named re-export",
			src:     `export { createHash } from "crypto";`,
			imports: []string{"crypto"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syntax, err := ScanModuleSyntax([]byte(tt.src))
			if err != nil {
				t.Fatalf("ScanModuleSyntax() error = %v", err)
			}
			if !syntax.IsModule {
				t.Error("IsModule = false, want true")
			}
			if len(syntax.Imports) != len(tt.imports) {
				t.Fatalf("got %d imports, want %d", len(syntax.Imports), len(tt.imports))
			}
			for i, want := range tt.imports {
				if syntax.Imports[i].Specifier != want {
					t.Errorf("import %d specifier = %q, want %q", i, syntax.Imports[i].Specifier, want)
				}
			}
			if len(tt.bindings) > 0 {
				got := syntax.Imports[0].Bindings
				if len(got) != len(tt.bindings) {
					t.Fatalf("got %d bindings, want %d", len(got), len(tt.bindings))
				}
				for i, want := range tt.bindings {
					if got[i] != want {
						t.Errorf("binding %d = %+v, want %+v", i, got[i], want)
					}
				}
			}
		})
	}
}

func TestScanModuleSyntaxExports(t *testing.T) {
	src := `import { createHash } from "crypto";
export const version = "1.0";
export function sign(data) { return createHash("sha256").update(data).digest("hex"); }
export default sign;
export { sign as signer };
`
	syntax, err := ScanModuleSyntax([]byte(src))
	if err != nil {
		t.Fatalf("ScanModuleSyntax() error = %v", err)
	}

	want := map[string]string{
		"version": "version",
		"sign":    "sign",
		"default": DefaultSlot,
		"signer":  "sign",
	}
	if len(syntax.Exports) != len(want) {
		t.Fatalf("got %d exports %v, want %d", len(syntax.Exports), syntax.Exports, len(want))
	}
	for _, b := range syntax.Exports {
		local, ok := want[b.Exported]
		if !ok {
			t.Errorf("unexpected export %q", b.Exported)
			continue
		}
		if b.Local != local {
			t.Errorf("export %q local = %q, want %q", b.Exported, b.Local, local)
		}
	}

	if !strings.Contains(string(syntax.Source), DefaultSlot+" =") {
		t.Error("rewritten source missing default slot assignment")
	}
}

func TestScanModuleSyntaxPreservesLayout(t *testing.T) {
	src := `import { createHash } from "crypto";
const x = 1;
export default function run() {
	return createHash("sha256");
}
`
	syntax, err := ScanModuleSyntax([]byte(src))
	if err != nil {
		t.Fatalf("ScanModuleSyntax() error = %v", err)
	}
	if len(syntax.Source) != len(src) {
		t.Errorf("rewritten length = %d, want %d", len(syntax.Source), len(src))
	}
	if got, want := strings.Count(string(syntax.Source), "\n"), strings.Count(src, "\n"); got != want {
		t.Errorf("rewritten newlines = %d, want %d", got, want)
	}
}

func TestScanModuleSyntaxPlainScript(t *testing.T) {
	src := `const crypto = require("crypto");
// import fs from "fs" inside a comment is not a declaration
const s = 'import x from "y"';
module.exports = { x: 1 };
`
	syntax, err := ScanModuleSyntax([]byte(src))
	if err != nil {
		t.Fatalf("ScanModuleSyntax() error = %v", err)
	}
	if syntax.IsModule {
		t.Error("IsModule = true for plain script")
	}
	if len(syntax.Imports) != 0 {
		t.Errorf("got imports %v from plain script", syntax.Imports)
	}
	if string(syntax.Source) != src {
		t.Error("plain script source was rewritten")
	}
}

func TestScanModuleSyntaxIgnoresNestedKeywords(t *testing.T) {
	src := "function f() { const importMap = 1; return `import ${importMap} from \"x\"`; }"
	syntax, err := ScanModuleSyntax([]byte(src))
	if err != nil {
		t.Fatalf("ScanModuleSyntax() error = %v", err)
	}
	if syntax.IsModule || len(syntax.Imports) != 0 {
		t.Errorf("template and nested text misread as module syntax: %+v", syntax)
	}
}

func TestScanModuleSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing from", `import x;`},
		{"unterminated specifier", `import x from "crypto`},
		{"escaped specifier", "import x from \"cry\\u0070to\";"},
		{"computed import", `import("crypto");`},
		{"import meta", `import.meta.url;`},
		{"unresolvable export", `export if;`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ScanModuleSyntax([]byte(tt.src)); err == nil {
				t.Errorf("ScanModuleSyntax(%q) = nil error, want failure", tt.src)
			}
		})
	}
}
