package analyzer

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// walker performs the free-identifier and require-extraction pass over a
// parsed program. It tracks lexical scopes so locally bound names do not
// count as global references, and it is deliberately paranoid: any syntax
// node it does not recognize marks the whole source as unresolvable rather
// than being skipped.
type walker struct {
	catalog func(string) bool

	scopes []*scope

	requires    []string
	requireSeen map[string]struct{}
	globals     map[string]struct{}
	findings    []string
	failed      bool
}

type scope struct {
	names map[string]struct{}
	// always holds bindings that suppress references unconditionally
	// (import bindings and synthesized slots). Only set on the top scope.
	always map[string]struct{}
	top    bool
}

func newWalker(catalog func(string) bool) *walker {
	return &walker{
		catalog:     catalog,
		requireSeen: make(map[string]struct{}),
		globals:     make(map[string]struct{}),
	}
}

// walkProgram walks a parsed program with the given unconditional top-level
// bindings (import locals and synthesized export slots).
func (w *walker) walkProgram(prog *ast.Program, boundImports []string) {
	top := &scope{
		names:  make(map[string]struct{}),
		always: make(map[string]struct{}, len(boundImports)),
		top:    true,
	}
	for _, name := range boundImports {
		top.always[name] = struct{}{}
	}
	w.scopes = append(w.scopes, top)

	w.declareVarList(prog.DeclarationList)
	w.declareHoisted(prog.Body)

	for _, st := range prog.Body {
		w.walkStmt(st)
	}
	w.scopes = w.scopes[:len(w.scopes)-1]
}

// --- scope handling ---

func (w *walker) push() {
	w.scopes = append(w.scopes, &scope{names: make(map[string]struct{})})
}

func (w *walker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func (w *walker) declare(name string) {
	if name == "" {
		return
	}
	w.scopes[len(w.scopes)-1].names[name] = struct{}{}
}

// isBound reports whether a name resolves to a local binding. Top-level
// script declarations do not shadow names from the forbidden catalog:
// in script instantiation those declarations live on the global object, so
// a module redefining `fetch` at top level is treated as touching the real
// thing, not as hiding it.
func (w *walker) isBound(name string) bool {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		sc := w.scopes[i]
		if sc.top {
			if _, ok := sc.always[name]; ok {
				return true
			}
			if _, ok := sc.names[name]; ok && !w.catalog(name) {
				return true
			}
			return false
		}
		if _, ok := sc.names[name]; ok {
			return true
		}
	}
	return false
}

func (w *walker) reference(name string) {
	if w.isBound(name) {
		return
	}
	if w.catalog(name) {
		if _, seen := w.globals[name]; !seen {
			w.globals[name] = struct{}{}
			w.findings = append(w.findings, "forbidden global referenced: "+name)
		}
	}
}

func (w *walker) addRequire(specifier string) {
	if _, seen := w.requireSeen[specifier]; seen {
		return
	}
	w.requireSeen[specifier] = struct{}{}
	w.requires = append(w.requires, specifier)
}

func (w *walker) unsupported(what string) {
	w.failed = true
	w.findings = append(w.findings, "unresolvable syntax: "+what)
}

// --- declaration collection ---

func (w *walker) declareVarList(decls []*ast.VariableDeclaration) {
	for _, d := range decls {
		for _, b := range d.List {
			w.declareTargetNames(b.Target)
		}
	}
}

// declareHoisted declares the names introduced by declarations directly in
// a statement list: function and class declarations plus lexical bindings.
func (w *walker) declareHoisted(body []ast.Statement) {
	for _, st := range body {
		switch s := st.(type) {
		case *ast.FunctionDeclaration:
			if s.Function != nil && s.Function.Name != nil {
				w.declare(s.Function.Name.Name.String())
			}
		case *ast.ClassDeclaration:
			if s.Class != nil && s.Class.Name != nil {
				w.declare(s.Class.Name.Name.String())
			}
		case *ast.LexicalDeclaration:
			for _, b := range s.List {
				w.declareTargetNames(b.Target)
			}
		case *ast.VariableStatement:
			for _, b := range s.List {
				w.declareTargetNames(b.Target)
			}
		}
	}
}

// declareTargetNames declares every name bound by a binding target without
// walking default-value expressions.
func (w *walker) declareTargetNames(target ast.Expression) {
	switch t := target.(type) {
	case nil:
	case *ast.Identifier:
		w.declare(t.Name.String())
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			w.declareTargetNames(el)
		}
		w.declareTargetNames(t.Rest)
	case *ast.ObjectPattern:
		for _, p := range t.Properties {
			switch prop := p.(type) {
			case *ast.PropertyShort:
				w.declare(prop.Name.Name.String())
			case *ast.PropertyKeyed:
				w.declareTargetNames(prop.Value)
			case *ast.SpreadElement:
				w.declareTargetNames(prop.Expression)
			default:
				w.unsupported(fmt.Sprintf("binding property %T", p))
			}
		}
		w.declareTargetNames(t.Rest)
	case *ast.AssignExpression:
		w.declareTargetNames(t.Left)
	case *ast.SpreadElement:
		w.declareTargetNames(t.Expression)
	default:
		w.unsupported(fmt.Sprintf("binding target %T", target))
	}
}

// walkTargetDefaults walks the default-value expressions nested inside a
// binding target. Names must already be declared.
func (w *walker) walkTargetDefaults(target ast.Expression) {
	switch t := target.(type) {
	case nil:
	case *ast.Identifier:
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			w.walkTargetDefaults(el)
		}
		w.walkTargetDefaults(t.Rest)
	case *ast.ObjectPattern:
		for _, p := range t.Properties {
			switch prop := p.(type) {
			case *ast.PropertyShort:
				if prop.Initializer != nil {
					w.walkExpr(prop.Initializer)
				}
			case *ast.PropertyKeyed:
				if prop.Computed {
					w.walkExpr(prop.Key)
				}
				w.walkTargetDefaults(prop.Value)
			case *ast.SpreadElement:
				w.walkTargetDefaults(prop.Expression)
			}
		}
		w.walkTargetDefaults(t.Rest)
	case *ast.AssignExpression:
		w.walkTargetDefaults(t.Left)
		w.walkExpr(t.Right)
	case *ast.SpreadElement:
		w.walkTargetDefaults(t.Expression)
	}
}

func (w *walker) walkBindings(list []*ast.Binding) {
	for _, b := range list {
		w.declareTargetNames(b.Target)
		w.walkTargetDefaults(b.Target)
		if b.Initializer != nil {
			w.walkExpr(b.Initializer)
		}
	}
}

// --- statements ---

func (w *walker) walkStmt(st ast.Statement) {
	switch s := st.(type) {
	case nil:
	case *ast.BlockStatement:
		w.push()
		w.declareHoisted(s.List)
		for _, st2 := range s.List {
			w.walkStmt(st2)
		}
		w.pop()
	case *ast.EmptyStatement:
	case *ast.DebuggerStatement:
	case *ast.ExpressionStatement:
		w.walkExpr(s.Expression)
	case *ast.VariableStatement:
		w.walkBindings(s.List)
	case *ast.LexicalDeclaration:
		w.walkBindings(s.List)
	case *ast.IfStatement:
		w.walkExpr(s.Test)
		w.walkStmt(s.Consequent)
		w.walkStmt(s.Alternate)
	case *ast.ForStatement:
		w.push()
		w.walkForInit(s.Initializer)
		w.walkExpr(s.Test)
		w.walkExpr(s.Update)
		w.walkStmt(s.Body)
		w.pop()
	case *ast.ForInStatement:
		w.walkForInOf(s.Into, s.Source, s.Body)
	case *ast.ForOfStatement:
		w.walkForInOf(s.Into, s.Source, s.Body)
	case *ast.WhileStatement:
		w.walkExpr(s.Test)
		w.walkStmt(s.Body)
	case *ast.DoWhileStatement:
		w.walkStmt(s.Body)
		w.walkExpr(s.Test)
	case *ast.ReturnStatement:
		w.walkExpr(s.Argument)
	case *ast.ThrowStatement:
		w.walkExpr(s.Argument)
	case *ast.TryStatement:
		w.walkStmt(s.Body)
		if s.Catch != nil {
			w.push()
			w.declareTargetNames(s.Catch.Parameter)
			w.walkTargetDefaults(s.Catch.Parameter)
			w.walkStmt(s.Catch.Body)
			w.pop()
		}
		if s.Finally != nil {
			w.walkStmt(s.Finally)
		}
	case *ast.SwitchStatement:
		w.walkExpr(s.Discriminant)
		w.push()
		for _, cs := range s.Body {
			if cs == nil {
				continue
			}
			w.walkExpr(cs.Test)
			w.declareHoisted(cs.Consequent)
			for _, st2 := range cs.Consequent {
				w.walkStmt(st2)
			}
		}
		w.pop()
	case *ast.BranchStatement:
	case *ast.LabelledStatement:
		w.walkStmt(s.Statement)
	case *ast.FunctionDeclaration:
		w.walkFunction(s.Function)
	case *ast.ClassDeclaration:
		w.walkClass(s.Class)
	case *ast.WithStatement:
		// with() rebinds identifier resolution at runtime; nothing about
		// the body can be decided statically.
		w.unsupported("with statement")
	default:
		w.unsupported(fmt.Sprintf("statement %T", st))
	}
}

func (w *walker) walkForInit(init ast.ForLoopInitializer) {
	switch t := init.(type) {
	case nil:
	case *ast.ForLoopInitializerExpression:
		w.walkExpr(t.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		w.walkBindings(t.List)
	case *ast.ForLoopInitializerLexicalDecl:
		w.walkBindings(t.LexicalDeclaration.List)
	default:
		w.unsupported(fmt.Sprintf("for-loop initializer %T", init))
	}
}

func (w *walker) walkForInOf(into ast.ForInto, source ast.Expression, body ast.Statement) {
	w.push()
	switch t := into.(type) {
	case nil:
	case *ast.ForIntoVar:
		if t.Binding != nil {
			w.declareTargetNames(t.Binding.Target)
			w.walkTargetDefaults(t.Binding.Target)
		}
	case *ast.ForDeclaration:
		w.declareTargetNames(t.Target)
		w.walkTargetDefaults(t.Target)
	case *ast.ForIntoExpression:
		w.walkExpr(t.Expression)
	default:
		w.unsupported(fmt.Sprintf("for-loop target %T", into))
	}
	w.walkExpr(source)
	w.walkStmt(body)
	w.pop()
}

// --- functions and classes ---

func (w *walker) walkFunction(fn *ast.FunctionLiteral) {
	if fn == nil {
		return
	}
	w.push()
	if fn.Name != nil {
		w.declare(fn.Name.Name.String())
	}
	w.walkParameterList(fn.ParameterList)
	w.declareVarList(fn.DeclarationList)
	if fn.Body != nil {
		w.declareHoisted(fn.Body.List)
		for _, st := range fn.Body.List {
			w.walkStmt(st)
		}
	}
	w.pop()
}

func (w *walker) walkArrow(fn *ast.ArrowFunctionLiteral) {
	w.push()
	w.walkParameterList(fn.ParameterList)
	w.declareVarList(fn.DeclarationList)
	switch b := fn.Body.(type) {
	case *ast.BlockStatement:
		w.declareHoisted(b.List)
		for _, st := range b.List {
			w.walkStmt(st)
		}
	case *ast.ExpressionBody:
		w.walkExpr(b.Expression)
	default:
		w.unsupported(fmt.Sprintf("arrow body %T", fn.Body))
	}
	w.pop()
}

func (w *walker) walkParameterList(params *ast.ParameterList) {
	if params == nil {
		return
	}
	for _, b := range params.List {
		w.declareTargetNames(b.Target)
	}
	w.declareTargetNames(params.Rest)
	for _, b := range params.List {
		w.walkTargetDefaults(b.Target)
		if b.Initializer != nil {
			w.walkExpr(b.Initializer)
		}
	}
}

func (w *walker) walkClass(cls *ast.ClassLiteral) {
	if cls == nil {
		return
	}
	w.walkExpr(cls.SuperClass)
	w.push()
	if cls.Name != nil {
		w.declare(cls.Name.Name.String())
	}
	for _, el := range cls.Body {
		switch e := el.(type) {
		case *ast.MethodDefinition:
			if e.Computed {
				w.walkExpr(e.Key)
			}
			w.walkFunction(e.Body)
		case *ast.FieldDefinition:
			if e.Computed {
				w.walkExpr(e.Key)
			}
			w.walkExpr(e.Initializer)
		case *ast.ClassStaticBlock:
			w.walkStmt(e.Block)
		default:
			w.unsupported(fmt.Sprintf("class element %T", el))
		}
	}
	w.pop()
}

// --- expressions ---

func (w *walker) walkExpr(ex ast.Expression) {
	switch e := ex.(type) {
	case nil:
	case *ast.Identifier:
		w.reference(e.Name.String())
	case *ast.StringLiteral:
	case *ast.NumberLiteral:
	case *ast.BooleanLiteral:
	case *ast.NullLiteral:
	case *ast.RegExpLiteral:
	case *ast.TemplateLiteral:
		w.walkExpr(e.Tag)
		for _, sub := range e.Expressions {
			w.walkExpr(sub)
		}
	case *ast.ArrayLiteral:
		for _, el := range e.Value {
			w.walkExpr(el)
		}
	case *ast.ObjectLiteral:
		for _, p := range e.Value {
			switch prop := p.(type) {
			case *ast.PropertyKeyed:
				if prop.Computed {
					w.walkExpr(prop.Key)
				}
				w.walkExpr(prop.Value)
			case *ast.PropertyShort:
				// Shorthand is a reference to the named binding.
				w.reference(prop.Name.Name.String())
				if prop.Initializer != nil {
					w.walkExpr(prop.Initializer)
				}
			case *ast.SpreadElement:
				w.walkExpr(prop.Expression)
			default:
				w.unsupported(fmt.Sprintf("object property %T", p))
			}
		}
	case *ast.FunctionLiteral:
		w.walkFunction(e)
	case *ast.ArrowFunctionLiteral:
		w.walkArrow(e)
	case *ast.ClassLiteral:
		w.walkClass(e)
	case *ast.CallExpression:
		w.walkCall(e)
	case *ast.NewExpression:
		w.walkExpr(e.Callee)
		for _, a := range e.ArgumentList {
			w.walkExpr(a)
		}
	case *ast.DotExpression:
		// Property names are not identifier references.
		w.walkExpr(e.Left)
	case *ast.PrivateDotExpression:
		w.walkExpr(e.Left)
	case *ast.BracketExpression:
		w.walkExpr(e.Left)
		w.walkExpr(e.Member)
	case *ast.AssignExpression:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.BinaryExpression:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.UnaryExpression:
		w.walkExpr(e.Operand)
	case *ast.ConditionalExpression:
		w.walkExpr(e.Test)
		w.walkExpr(e.Consequent)
		w.walkExpr(e.Alternate)
	case *ast.SequenceExpression:
		for _, sub := range e.Sequence {
			w.walkExpr(sub)
		}
	case *ast.ThisExpression:
	case *ast.SuperExpression:
	case *ast.SpreadElement:
		w.walkExpr(e.Expression)
	case *ast.AwaitExpression:
		w.walkExpr(e.Argument)
	case *ast.YieldExpression:
		w.walkExpr(e.Argument)
	case *ast.MetaProperty:
		// import.meta / new.target expose loader state.
		w.unsupported("meta property")
	case *ast.Optional:
		w.walkExpr(e.Expression)
	case *ast.OptionalChain:
		w.walkExpr(e.Expression)
	case *ast.BadExpression:
		w.unsupported("bad expression")
	default:
		w.unsupported(fmt.Sprintf("expression %T", ex))
	}
}

// walkCall handles call expressions, giving `require` with a single literal
// string argument its sanctioned meaning. A require whose target cannot be
// read off the call site is an import of unknown target and fails closed.
func (w *walker) walkCall(call *ast.CallExpression) {
	if ident, ok := call.Callee.(*ast.Identifier); ok && ident.Name.String() == "require" && !w.isBound("require") {
		if len(call.ArgumentList) == 1 {
			if lit, ok := call.ArgumentList[0].(*ast.StringLiteral); ok {
				w.addRequire(lit.Value.String())
				return
			}
		}
		w.failed = true
		w.findings = append(w.findings, "require with non-literal target")
		for _, a := range call.ArgumentList {
			w.walkExpr(a)
		}
		return
	}
	w.walkExpr(call.Callee)
	for _, a := range call.ArgumentList {
		w.walkExpr(a)
	}
}
