package compiler

import (
	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

// SymbolTableBuilder walks a module's AST once, creating the scope tree and
// declaring symbols (spec.md §4.5, component C5). It never inspects types:
// that is the Type Checker's (C6) job, run in a later pass over the same
// scope tree.
type SymbolTableBuilder struct {
	arena      *ScopeArena
	moduleName string
	diags      *diag.Collector
}

// NewSymbolTableBuilder constructs a builder for one module, returning the
// builder and its (initially empty) module-root scope.
func NewSymbolTableBuilder(moduleName string) (*SymbolTableBuilder, *Scope) {
	arena, root := NewScopeArena()
	return &SymbolTableBuilder{arena: arena, moduleName: moduleName, diags: diag.NewCollector()}, root
}

// Diagnostics returns every diagnostic recorded while building.
func (b *SymbolTableBuilder) Diagnostics() []diag.Diagnostic {
	return b.diags.All()
}

// Arena returns the scope arena populated by Build, so later passes can
// recover the scope created for a given AST node via Arena().ScopeOf.
func (b *SymbolTableBuilder) Arena() *ScopeArena {
	return b.arena
}

// Build populates root (as returned by NewSymbolTableBuilder) from program
// and returns it for convenience.
func (b *SymbolTableBuilder) Build(program *ast.Program, root *Scope) *Scope {
	// Pass 1: declare every top-level name so forward references resolve
	// (spec.md §4.5: "function declarations are registered in the current
	// scope before their bodies are visited").
	for _, decl := range program.Declarations {
		b.declareTopLevel(root, decl)
	}
	// Pass 2: visit function bodies (and global initializers) now that
	// every top-level name is visible.
	for _, decl := range program.Declarations {
		b.visitTopLevel(root, decl)
	}
	return root
}

func (b *SymbolTableBuilder) declareTopLevel(scope *Scope, decl ast.Declaration) {
	switch d := decl.(type) {
	case *ast.FunctionDecl:
		sym := &ast.Symbol{
			Name:       d.Name,
			Kind:       ast.SymbolFunction,
			DeclLoc:    d.Location(),
			IsExported: d.IsExported,
		}
		d.Symbol = sym
		if err := scope.Declare(sym); err != nil {
			b.duplicateDecl(d.Location(), d.Name)
		}
	case *ast.VariableDecl:
		sym := &ast.Symbol{
			Name:       d.Name,
			Kind:       kindForVariable(d),
			DeclLoc:    d.Location(),
			IsExported: d.IsExported,
			IsConst:    d.IsConst,
			Storage:    d.Storage,
			MapAddress: d.MapAddress,
		}
		d.Symbol = sym
		if err := scope.Declare(sym); err != nil {
			b.duplicateDecl(d.Location(), d.Name)
		}
	case *ast.EnumDecl:
		enumType := &ast.EnumType{Name: d.Name, Members: make(map[string]int)}
		d.Type = enumType
		for i := range d.Members {
			m := &d.Members[i]
			sym := &ast.Symbol{
				Name:       m.Name,
				Kind:       ast.SymbolEnumMember,
				Type:       enumType,
				DeclLoc:    d.Location(),
				IsExported: d.IsExported,
				IsConst:    true,
			}
			m.Symbol = sym
			if err := scope.Declare(sym); err != nil {
				b.duplicateDecl(d.Location(), m.Name)
			}
		}
	case *ast.TypeDecl, *ast.ImportDecl:
		// Handled in visitTopLevel: type aliases occupy a separate
		// namespace from value symbols, and imports require every other
		// module's symbol table to already be built (so they are resolved
		// by the compiler orchestration after all modules complete this
		// pass, not here).
	}
}

func kindForVariable(d *ast.VariableDecl) ast.SymbolKind {
	if d.IsConst {
		return ast.SymbolConstant
	}
	return ast.SymbolVariable
}

func (b *SymbolTableBuilder) visitTopLevel(scope *Scope, decl ast.Declaration) {
	switch d := decl.(type) {
	case *ast.FunctionDecl:
		b.visitFunction(scope, d)
	case *ast.VariableDecl:
		if d.Initializer != nil {
			b.visitExpression(scope, d.Initializer)
		}
	}
}

func (b *SymbolTableBuilder) visitFunction(moduleScope *Scope, d *ast.FunctionDecl) {
	fnScope := b.arena.NewChild(moduleScope, ScopeFunction, d, d.Symbol)
	for i := range d.Parameters {
		p := &d.Parameters[i]
		sym := &ast.Symbol{
			Name:    p.Name,
			Kind:    ast.SymbolParameter,
			Type:    p.TypeAnnotation,
			DeclLoc: d.Location(),
		}
		p.Symbol = sym
		if err := fnScope.Declare(sym); err != nil {
			b.duplicateDecl(d.Location(), p.Name)
		}
	}
	sig := &ast.FunctionSignature{ReturnType: d.ReturnType}
	for _, p := range d.Parameters {
		sig.Parameters = append(sig.Parameters, ast.Parameter{Name: p.Name, Type: p.TypeAnnotation})
	}
	d.Symbol.Signature = sig
	d.Symbol.Type = &ast.FunctionType{
		ParameterTypes: paramTypes(sig.Parameters),
		ReturnType:     d.ReturnType,
	}
	if d.Body != nil {
		b.visitStatementsInScope(fnScope, d.Body.Statements)
	}
}

func paramTypes(params []ast.Parameter) []ast.TypeInfo {
	out := make([]ast.TypeInfo, len(params))
	for i, p := range params {
		out[i] = p.Type
	}
	return out
}

// visitStatementsInScope walks stmts within an already-established scope
// (used for a function's own body, which shares the function scope rather
// than introducing an extra block, per spec.md §4.5).
func (b *SymbolTableBuilder) visitStatementsInScope(scope *Scope, stmts []ast.Statement) {
	for _, s := range stmts {
		b.visitStatement(scope, s)
	}
}

func (b *SymbolTableBuilder) visitStatement(scope *Scope, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		sym := &ast.Symbol{
			Name:    s.Name,
			Kind:    kindForVariable(s),
			DeclLoc: s.Location(),
			IsConst: s.IsConst,
			Storage: s.Storage,
		}
		s.Symbol = sym
		if err := scope.Declare(sym); err != nil {
			b.duplicateDecl(s.Location(), s.Name)
		}
		if s.Initializer != nil {
			b.visitExpression(scope, s.Initializer)
		}
	case *ast.BlockStmt:
		block := b.arena.NewChild(scope, ScopeBlock, s, nil)
		b.visitStatementsInScope(block, s.Statements)
	case *ast.IfStmt:
		b.visitExpression(scope, s.Condition)
		b.visitNestedBody(scope, s.Then)
		if s.Else != nil {
			b.visitNestedBody(scope, s.Else)
		}
	case *ast.WhileStmt:
		loop := b.arena.NewChild(scope, ScopeLoop, s, nil)
		b.visitExpression(loop, s.Condition)
		b.visitNestedBody(loop, s.Body)
	case *ast.ForStmt:
		loop := b.arena.NewChild(scope, ScopeLoop, s, nil)
		if s.Init != nil {
			b.visitStatement(loop, s.Init)
		}
		if s.Condition != nil {
			b.visitExpression(loop, s.Condition)
		}
		if s.Post != nil {
			b.visitStatement(loop, s.Post)
		}
		b.visitNestedBody(loop, s.Body)
	case *ast.DoWhileStmt:
		loop := b.arena.NewChild(scope, ScopeLoop, s, nil)
		b.visitNestedBody(loop, s.Body)
		b.visitExpression(loop, s.Condition)
	case *ast.MatchStmt:
		b.visitExpression(scope, s.Subject)
		for _, c := range s.Cases {
			for _, v := range c.Values {
				b.visitExpression(scope, v)
			}
			b.visitNestedBody(scope, c.Body)
		}
		if s.Default != nil {
			b.visitNestedBody(scope, s.Default)
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			b.visitExpression(scope, s.Value)
		}
	case *ast.ExpressionStmt:
		b.visitExpression(scope, s.Expr)
	case *ast.AssignmentStmt:
		b.visitExpression(scope, s.Target)
		b.visitExpression(scope, s.Value)
	case *ast.BreakStmt, *ast.ContinueStmt:
		// No declarations possible.
	}
}

// visitNestedBody visits a statement occupying a body position (if/while/
// for/do-while/match arm). If body is itself a block, it gets its own
// block scope (spec.md §4.5); otherwise it is visited directly in the
// enclosing scope, since a single statement cannot itself declare a name
// visible to anything else.
func (b *SymbolTableBuilder) visitNestedBody(scope *Scope, body ast.Statement) {
	if block, ok := body.(*ast.BlockStmt); ok {
		child := b.arena.NewChild(scope, ScopeBlock, block, nil)
		b.visitStatementsInScope(child, block.Statements)
		return
	}
	b.visitStatement(scope, body)
}

func (b *SymbolTableBuilder) visitExpression(scope *Scope, expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.BinaryExpr:
		b.visitExpression(scope, e.Left)
		b.visitExpression(scope, e.Right)
	case *ast.UnaryExpr:
		b.visitExpression(scope, e.Operand)
	case *ast.CallExpr:
		b.visitExpression(scope, e.Callee)
		for _, a := range e.Args {
			b.visitExpression(scope, a)
		}
	case *ast.IndexExpr:
		b.visitExpression(scope, e.Target)
		b.visitExpression(scope, e.Index)
	case *ast.MemberExpr:
		b.visitExpression(scope, e.Target)
	case *ast.LengthExpr:
		b.visitExpression(scope, e.Array)
	}
}

func (b *SymbolTableBuilder) duplicateDecl(loc ast.SourceLocation, name string) {
	b.diags.Add(diag.New(diag.CodeDuplicateDeclaration, diag.Error, loc,
		"%q is already declared in this scope", name))
}
