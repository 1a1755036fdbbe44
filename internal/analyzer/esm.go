package analyzer

import (
	"fmt"
)

// DefaultSlot is the synthesized binding that receives a module's
// `export default` value once the declaration is rewritten into plain
// script syntax.
const DefaultSlot = "__default__"

// ModuleSyntax is the result of the static module-syntax scan: the
// specifiers referenced by import/export-from declarations, the export
// surface, and a rewritten source with those declarations removed so the
// remainder parses as a plain script.
//
// The scan resolves static declarations only. Anything dynamic, such as a
// computed `import(...)` or `import.meta`, surfaces as an error and fails
// closed upstream. It never resolves aliasing or indirection.
type ModuleSyntax struct {
	// IsModule reports whether any ES module declaration was found.
	IsModule bool
	// Source is the rewritten text. Offsets match the original except
	// inside replaced declarations, and newlines are preserved.
	Source []byte
	// Imports lists static import and export-from declarations in order.
	Imports []ImportDecl
	// Exports maps exported names to their module-local bindings.
	Exports []ExportBinding
}

// ImportDecl is one static import (or re-export) declaration.
type ImportDecl struct {
	Specifier string
	Bindings  []ImportBinding
}

// ImportBinding is one name introduced by an import declaration.
// Imported is "default" for default imports and "*" for namespace imports.
type ImportBinding struct {
	Local    string
	Imported string
}

// ExportBinding maps an exported name to the local binding that holds it.
type ExportBinding struct {
	Exported string
	Local    string
}

// SyntaxError reports module syntax the scanner could not resolve
// statically. The analyzer treats it exactly like a parse failure.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("module syntax at offset %d: %s", e.Offset, e.Reason)
}

// ScanModuleSyntax scans source text for static ES module declarations.
// It runs in a single pass over the input and never executes anything.
func ScanModuleSyntax(src []byte) (*ModuleSyntax, error) {
	s := &esmScanner{
		src: src,
		out: nil,
		syntax: &ModuleSyntax{
			Source: src,
		},
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	if s.out != nil {
		s.syntax.Source = s.out
	}
	return s.syntax, nil
}

type esmScanner struct {
	src []byte
	out []byte // lazily created rewrite buffer
	pos int
	// lastSig is the last significant byte seen in code state; zero means
	// start of input. import/export are only recognized at statement
	// position: start of input, after ';' or after '}'.
	lastSig byte
	// depth counts open (, [ and {. Module declarations are top-level
	// constructs, so anything nested is ignored here and left for the
	// parser to judge.
	depth  int
	syntax *ModuleSyntax
}

func (s *esmScanner) run() error {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case c == '\'' || c == '"':
			s.skipString(c)
		case c == '`':
			s.skipTemplate()
		case isWordByte(c):
			start := s.pos
			word := s.readWord()
			if s.depth == 0 && s.atStatementPosition() && (word == "import" || word == "export") {
				var err error
				if word == "import" {
					err = s.parseImport(start)
				} else {
					err = s.parseExport(start)
				}
				if err != nil {
					return err
				}
				s.lastSig = ';'
				continue
			}
			s.lastSig = s.src[s.pos-1]
		default:
			switch c {
			case '(', '[', '{':
				s.depth++
			case ')', ']', '}':
				if s.depth > 0 {
					s.depth--
				}
			}
			if !isSpaceByte(c) {
				s.lastSig = c
			}
			s.pos++
		}
	}
	return nil
}

func (s *esmScanner) atStatementPosition() bool {
	return s.lastSig == 0 || s.lastSig == ';' || s.lastSig == '}'
}

// parseImport parses an import declaration whose keyword starts at start;
// s.pos is just past the keyword.
func (s *esmScanner) parseImport(start int) error {
	s.skipWhitespace()

	decl := ImportDecl{}

	if c := s.peek(0); c == '\'' || c == '"' {
		// Side-effect import: import "spec";
		spec, err := s.readStringLiteral()
		if err != nil {
			return err
		}
		decl.Specifier = spec
	} else {
		if err := s.parseImportClause(&decl); err != nil {
			return err
		}
		s.skipWhitespace()
		if w := s.readWord(); w != "from" {
			return s.errorf(start, "expected 'from' in import declaration")
		}
		s.skipWhitespace()
		spec, err := s.readStringLiteral()
		if err != nil {
			return err
		}
		decl.Specifier = spec
	}

	s.skipWhitespace()
	if s.peek(0) == ';' {
		s.pos++
	}

	s.syntax.IsModule = true
	s.syntax.Imports = append(s.syntax.Imports, decl)
	s.blank(start, s.pos)
	return nil
}

func (s *esmScanner) parseImportClause(decl *ImportDecl) error {
	c := s.peek(0)

	if isWordByte(c) && c != '*' {
		// Default import.
		name := s.readWord()
		if name == "" {
			return s.errorf(s.pos, "expected import binding")
		}
		decl.Bindings = append(decl.Bindings, ImportBinding{Local: name, Imported: "default"})
		s.skipWhitespace()
		if s.peek(0) != ',' {
			return nil
		}
		s.pos++
		s.skipWhitespace()
		c = s.peek(0)
	}

	switch c {
	case '*':
		s.pos++
		s.skipWhitespace()
		if w := s.readWord(); w != "as" {
			return s.errorf(s.pos, "expected 'as' after '*' in import declaration")
		}
		s.skipWhitespace()
		name := s.readWord()
		if name == "" {
			return s.errorf(s.pos, "expected namespace binding")
		}
		decl.Bindings = append(decl.Bindings, ImportBinding{Local: name, Imported: "*"})
		return nil
	case '{':
		s.pos++
		for {
			s.skipWhitespace()
			if s.peek(0) == '}' {
				s.pos++
				return nil
			}
			name := s.readWord()
			if name == "" {
				return s.errorf(s.pos, "expected named import")
			}
			local := name
			s.skipWhitespace()
			if s.peekWord() == "as" {
				s.readWord()
				s.skipWhitespace()
				local = s.readWord()
				if local == "" {
					return s.errorf(s.pos, "expected import alias")
				}
				s.skipWhitespace()
			}
			decl.Bindings = append(decl.Bindings, ImportBinding{Local: local, Imported: name})
			if s.peek(0) == ',' {
				s.pos++
				continue
			}
		}
	default:
		return s.errorf(s.pos, "unresolvable import form")
	}
}

// parseExport parses an export declaration whose keyword starts at start;
// s.pos is just past the keyword.
func (s *esmScanner) parseExport(start int) error {
	keywordEnd := s.pos
	s.skipWhitespace()
	s.syntax.IsModule = true

	switch c := s.peek(0); {
	case c == '*':
		// export * [as name] from "spec"
		s.pos++
		s.skipWhitespace()
		if s.peekWord() == "as" {
			s.readWord()
			s.skipWhitespace()
			if s.readWord() == "" {
				return s.errorf(s.pos, "expected re-export namespace name")
			}
			s.skipWhitespace()
		}
		if w := s.readWord(); w != "from" {
			return s.errorf(start, "expected 'from' in re-export declaration")
		}
		s.skipWhitespace()
		spec, err := s.readStringLiteral()
		if err != nil {
			return err
		}
		s.consumeSemicolon()
		s.syntax.Imports = append(s.syntax.Imports, ImportDecl{Specifier: spec})
		s.blank(start, s.pos)
		return nil

	case c == '{':
		s.pos++
		var bindings []ExportBinding
		for {
			s.skipWhitespace()
			if s.peek(0) == '}' {
				s.pos++
				break
			}
			name := s.readWord()
			if name == "" {
				return s.errorf(s.pos, "expected export name")
			}
			exported := name
			s.skipWhitespace()
			if s.peekWord() == "as" {
				s.readWord()
				s.skipWhitespace()
				exported = s.readWord()
				if exported == "" {
					return s.errorf(s.pos, "expected export alias")
				}
				s.skipWhitespace()
			}
			bindings = append(bindings, ExportBinding{Exported: exported, Local: name})
			if s.peek(0) == ',' {
				s.pos++
			}
		}
		s.skipWhitespace()
		if s.peekWord() == "from" {
			s.readWord()
			s.skipWhitespace()
			spec, err := s.readStringLiteral()
			if err != nil {
				return err
			}
			s.consumeSemicolon()
			s.syntax.Imports = append(s.syntax.Imports, ImportDecl{Specifier: spec})
			s.blank(start, s.pos)
			return nil
		}
		s.consumeSemicolon()
		s.syntax.Exports = append(s.syntax.Exports, bindings...)
		s.blank(start, s.pos)
		return nil

	case isWordByte(c):
		word := s.readWord()
		switch word {
		case "default":
			// Rewrite `export default` into an assignment to the default
			// slot; the trailing expression stays in place.
			s.syntax.Exports = append(s.syntax.Exports, ExportBinding{Exported: "default", Local: DefaultSlot})
			s.rewriteDefault(start, s.pos)
			return nil
		case "async":
			s.skipWhitespace()
			if s.peekWord() != "function" {
				return s.errorf(start, "unresolvable export form")
			}
			s.readWord()
			return s.exportDeclarationName(start, keywordEnd)
		case "function", "class":
			return s.exportDeclarationName(start, keywordEnd)
		case "var", "let", "const":
			s.skipWhitespace()
			name := s.readWord()
			if name == "" {
				return s.errorf(s.pos, "expected exported binding name")
			}
			s.syntax.Exports = append(s.syntax.Exports, ExportBinding{Exported: name, Local: name})
			s.blank(start, keywordEnd)
			return nil
		default:
			return s.errorf(start, "unresolvable export form")
		}

	default:
		return s.errorf(start, "unresolvable export form")
	}
}

// exportDeclarationName records the name of an exported function or class
// declaration and blanks only the `export` keyword.
func (s *esmScanner) exportDeclarationName(start, keywordEnd int) error {
	s.skipWhitespace()
	if s.peek(0) == '*' { // generator
		s.pos++
		s.skipWhitespace()
	}
	name := s.readWord()
	if name == "" {
		return s.errorf(s.pos, "expected exported declaration name")
	}
	s.syntax.Exports = append(s.syntax.Exports, ExportBinding{Exported: name, Local: name})
	s.blank(start, keywordEnd)
	return nil
}

func (s *esmScanner) consumeSemicolon() {
	s.skipWhitespace()
	if s.peek(0) == ';' {
		s.pos++
	}
}

// blank overwrites out[from:to] with spaces, preserving newlines.
func (s *esmScanner) blank(from, to int) {
	s.ensureOut()
	for i := from; i < to && i < len(s.out); i++ {
		if s.out[i] != '\n' {
			s.out[i] = ' '
		}
	}
}

// rewriteDefault replaces the `export default` keywords with an assignment
// to the default slot, padded to the same byte length.
func (s *esmScanner) rewriteDefault(from, to int) {
	s.ensureOut()
	s.blank(from, to)
	replacement := DefaultSlot + " ="
	// `export default` is at least 14 bytes; the replacement is 13.
	copy(s.out[from:], replacement)
}

func (s *esmScanner) ensureOut() {
	if s.out == nil {
		s.out = append([]byte(nil), s.src...)
	}
}

func (s *esmScanner) errorf(offset int, format string, args ...interface{}) error {
	return &SyntaxError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// --- low-level scanning ---

func (s *esmScanner) peek(ahead int) byte {
	if s.pos+ahead < len(s.src) {
		return s.src[s.pos+ahead]
	}
	return 0
}

// peekWord returns the word at the current position without consuming it.
func (s *esmScanner) peekWord() string {
	i := s.pos
	for i < len(s.src) && isWordByte(s.src[i]) {
		i++
	}
	return string(s.src[s.pos:i])
}

func (s *esmScanner) readWord() string {
	start := s.pos
	for s.pos < len(s.src) && isWordByte(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

// skipWhitespace advances past whitespace and comments.
func (s *esmScanner) skipWhitespace() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isSpaceByte(c):
			s.pos++
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		default:
			return
		}
	}
}

func (s *esmScanner) readStringLiteral() (string, error) {
	quote := s.peek(0)
	if quote != '\'' && quote != '"' {
		return "", s.errorf(s.pos, "expected string literal specifier")
	}
	s.pos++
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '\\' {
			return "", s.errorf(s.pos, "escape sequence in module specifier")
		}
		if c == quote {
			lit := string(s.src[start:s.pos])
			s.pos++
			return lit, nil
		}
		if c == '\n' {
			break
		}
		s.pos++
	}
	return "", s.errorf(start, "unterminated module specifier")
}

func (s *esmScanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *esmScanner) skipBlockComment() {
	s.pos += 2
	for s.pos < len(s.src) {
		if s.src[s.pos] == '*' && s.peek(1) == '/' {
			s.pos += 2
			return
		}
		s.pos++
	}
}

func (s *esmScanner) skipString(quote byte) {
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '\\' {
			s.pos += 2
			continue
		}
		s.pos++
		if c == quote || c == '\n' {
			return
		}
	}
}

// skipTemplate skips a template literal, including ${} interpolations.
// Interpolation bodies are tracked by brace depth only; the parser remains
// the authority on whatever is inside them.
func (s *esmScanner) skipTemplate() {
	s.pos++ // opening backtick
	braces := 0
	inExpr := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case !inExpr && c == '`':
			s.pos++
			return
		case !inExpr && c == '$' && s.peek(1) == '{':
			inExpr = true
			braces = 1
			s.pos += 2
			continue
		case inExpr && c == '{':
			braces++
		case inExpr && c == '}':
			braces--
			if braces == 0 {
				inExpr = false
			}
		}
		s.pos++
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
