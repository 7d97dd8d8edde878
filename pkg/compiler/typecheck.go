package compiler

import (
	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

// TypeChecker is the multi-layer visitor of spec.md §4.6: literals (L1),
// expressions (L2), declarations (L3) and statements/control-flow (L4)
// share this one struct's state rather than a chain of subclasses (spec.md
// §9's "single visitor struct ... dispatch table keyed by AST-node kind"
// design note). checkExpr, checkDeclaration and checkStatement each
// dispatch with a direct type switch over the closed set of node kinds;
// checkExpr's default case types any other expression as Unknown.
type TypeChecker struct {
	arena     *ScopeArena
	diags     *diag.Collector
	enumTypes map[string]*ast.EnumType
}

// NewTypeChecker constructs a checker sharing arena with the
// SymbolTableBuilder that produced it, so scopes created for function/block/
// loop nodes can be recovered via arena.ScopeOf.
func NewTypeChecker(arena *ScopeArena) *TypeChecker {
	return &TypeChecker{arena: arena, diags: diag.NewCollector(), enumTypes: make(map[string]*ast.EnumType)}
}

// Diagnostics returns every diagnostic recorded while checking.
func (c *TypeChecker) Diagnostics() []diag.Diagnostic {
	return c.diags.All()
}

// EnumTypes returns the enum-name -> *ast.EnumType table this checker built
// while checking, so the IL Generator (C14) can fold `Enum.Member` reads to
// constants without re-discovering enum declarations itself.
func (c *TypeChecker) EnumTypes() map[string]*ast.EnumType {
	return c.enumTypes
}

// Check type-checks every declaration in program, annotating AST nodes'
// Metadata with resolved TypeInfo as it goes.
func (c *TypeChecker) Check(program *ast.Program, moduleScope *Scope) {
	// First collect enum types so member/expression lookups later in this
	// pass (or for a forward reference within the same module) can resolve
	// `EnumName.Member` regardless of declaration order.
	for _, decl := range program.Declarations {
		if e, ok := decl.(*ast.EnumDecl); ok {
			c.enumTypes[e.Name] = e.Type
		}
	}
	for _, decl := range program.Declarations {
		c.checkDeclaration(moduleScope, decl)
	}
}

func (c *TypeChecker) checkDeclaration(scope *Scope, decl ast.Declaration) {
	switch d := decl.(type) {
	case *ast.FunctionDecl:
		c.checkFunctionDecl(scope, d)
	case *ast.VariableDecl:
		c.checkVariableDecl(scope, d)
	case *ast.EnumDecl:
		c.checkEnumDecl(d)
	case *ast.TypeDecl, *ast.ImportDecl:
		// Type aliases carry their TypeInfo from the parser directly;
		// imports were already resolved and declared by the orchestrator
		// before this pass runs (SPEC_FULL.md §4).
	}
}

// ---------------------------------------------------------------------------
// L3: Declarations
// ---------------------------------------------------------------------------

func (c *TypeChecker) checkVariableDecl(scope *Scope, d *ast.VariableDecl) {
	var initType ast.TypeInfo
	if d.Initializer != nil {
		initType = c.checkExpr(scope, d.Initializer)
	}

	switch {
	case d.IsConst && d.Initializer == nil:
		c.diags.Add(diag.New(diag.CodeConstRequiresInitializer, diag.Error, d.Location(),
			"const %q requires an initializer", d.Name))
	case d.TypeAnnotation == nil && d.Initializer == nil:
		c.diags.Add(diag.New(diag.CodeMissingTypeAnnotation, diag.Error, d.Location(),
			"%q has neither a type annotation nor an initializer", d.Name))
	}

	finalType := d.TypeAnnotation
	if finalType == nil {
		finalType = initType
	} else if d.Initializer != nil && initType != nil {
		switch ast.CheckCompatibility(initType, finalType) {
		case ast.Incompatible, ast.RequiresConversion:
			c.diags.Add(diag.New(diag.CodeTypeMismatch, diag.Error, d.Initializer.Location(),
				"cannot assign %s to %q of type %s", initType, d.Name, finalType))
		}
	}
	if finalType == nil {
		finalType = ast.Unknown
	}
	if d.Symbol != nil {
		d.Symbol.Type = finalType
	}
	d.Meta().SetType(finalType)
}

func (c *TypeChecker) checkEnumDecl(d *ast.EnumDecl) {
	next := 0
	for i := range d.Members {
		m := &d.Members[i]
		value := next
		if m.Value != nil {
			value = *m.Value
		}
		if value < 0 || value > 255 {
			c.diags.Add(diag.New(diag.CodeNumericOverflow, diag.Error, d.Location(),
				"enum member %q value %d does not fit in a byte", m.Name, value))
		}
		d.Type.Members[m.Name] = value
		d.Type.Order = append(d.Type.Order, m.Name)
		if m.Symbol != nil {
			m.Symbol.Type = d.Type
		}
		next = value + 1
	}
}

func (c *TypeChecker) checkFunctionDecl(scope *Scope, d *ast.FunctionDecl) {
	for i := range d.Parameters {
		p := &d.Parameters[i]
		if p.TypeAnnotation == nil {
			c.diags.Add(diag.New(diag.CodeMissingTypeAnnotation, diag.Error, d.Location(),
				"parameter %q of %q has no type annotation", p.Name, d.Name))
		}
	}
	returnType := d.ReturnType
	if returnType == nil {
		returnType = ast.Void
	}
	if d.Body == nil {
		return
	}
	fnScope, ok := c.arena.ScopeOf(d)
	if !ok {
		fnScope = scope
	}
	for _, stmt := range d.Body.Statements {
		c.checkStatement(fnScope, stmt, returnType)
	}
	if returnType.Kind() != ast.TypeVoid && !alwaysReturns(d.Body) {
		c.diags.Add(diag.New(diag.CodeMayNotReturn, diag.Warning, d.Location(),
			"function %q may not return a value on every path", d.Name))
	}
}

// alwaysReturns conservatively determines whether every control-flow path
// through s ends in a return statement. It is a structural approximation
// used only to drive the MayNotReturn warning (spec.md §4.6); the
// authoritative reachability analysis is the CFG builder (C7).
func alwaysReturns(s ast.Statement) bool {
	switch t := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		for _, stmt := range t.Statements {
			if alwaysReturns(stmt) {
				return true
			}
		}
		return false
	case *ast.IfStmt:
		if t.Else == nil {
			return false
		}
		return alwaysReturns(t.Then) && alwaysReturns(t.Else)
	case *ast.DoWhileStmt:
		return alwaysReturns(t.Body)
	case *ast.MatchStmt:
		if t.Default == nil || !alwaysReturns(t.Default) {
			return false
		}
		for _, arm := range t.Cases {
			if !alwaysReturns(arm.Body) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// L4: Statements and control flow
// ---------------------------------------------------------------------------

func (c *TypeChecker) checkStatement(scope *Scope, stmt ast.Statement, returnType ast.TypeInfo) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		c.checkVariableDecl(scope, s)
	case *ast.BlockStmt:
		inner, ok := c.arena.ScopeOf(s)
		if !ok {
			inner = scope
		}
		for _, st := range s.Statements {
			c.checkStatement(inner, st, returnType)
		}
	case *ast.IfStmt:
		c.expectBool(scope, s.Condition)
		c.checkStatement(scope, s.Then, returnType)
		if s.Else != nil {
			c.checkStatement(scope, s.Else, returnType)
		}
	case *ast.WhileStmt:
		loop, ok := c.arena.ScopeOf(s)
		if !ok {
			loop = scope
		}
		c.expectBool(loop, s.Condition)
		c.checkStatement(loop, s.Body, returnType)
	case *ast.ForStmt:
		loop, ok := c.arena.ScopeOf(s)
		if !ok {
			loop = scope
		}
		if s.Init != nil {
			c.checkStatement(loop, s.Init, returnType)
		}
		if s.Condition != nil {
			c.expectBool(loop, s.Condition)
		}
		if s.Post != nil {
			c.checkStatement(loop, s.Post, returnType)
		}
		c.checkStatement(loop, s.Body, returnType)
	case *ast.DoWhileStmt:
		loop, ok := c.arena.ScopeOf(s)
		if !ok {
			loop = scope
		}
		c.checkStatement(loop, s.Body, returnType)
		c.expectBool(loop, s.Condition)
	case *ast.MatchStmt:
		c.checkExpr(scope, s.Subject)
		for _, arm := range s.Cases {
			for _, v := range arm.Values {
				c.checkExpr(scope, v)
			}
			c.checkStatement(scope, arm.Body, returnType)
		}
		if s.Default != nil {
			c.checkStatement(scope, s.Default, returnType)
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.checkExpr(scope, s.Value)
		}
		c.checkReturn(s, returnType)
	case *ast.BreakStmt:
		if !scope.IsInsideLoop() {
			c.diags.Add(diag.New(diag.CodeControlFlowOutsideLoop, diag.Error, s.Location(),
				"break outside of a loop"))
		}
	case *ast.ContinueStmt:
		if !scope.IsInsideLoop() {
			c.diags.Add(diag.New(diag.CodeControlFlowOutsideLoop, diag.Error, s.Location(),
				"continue outside of a loop"))
		}
	case *ast.ExpressionStmt:
		c.checkExpr(scope, s.Expr)
	case *ast.AssignmentStmt:
		c.checkAssignment(scope, s)
	}
}

func (c *TypeChecker) checkReturn(s *ast.ReturnStmt, returnType ast.TypeInfo) {
	if returnType.Kind() == ast.TypeVoid {
		if s.Value != nil {
			c.diags.Add(diag.New(diag.CodeReturnTypeMismatch, diag.Error, s.Location(),
				"unexpected return value in a void function"))
		}
		return
	}
	if s.Value == nil {
		c.diags.Add(diag.New(diag.CodeReturnTypeMismatch, diag.Error, s.Location(),
			"missing return value; function returns %s", returnType))
		return
	}
	// checkStatement type-checks s.Value in the enclosing scope before calling
	// checkReturn (ReturnStmt has no scope of its own), so its type is
	// already annotated here:
	if t, ok := s.Value.Meta().Type(); ok {
		switch ast.CheckCompatibility(t, returnType) {
		case ast.Incompatible, ast.RequiresConversion:
			c.diags.Add(diag.New(diag.CodeReturnTypeMismatch, diag.Error, s.Value.Location(),
				"cannot return %s from a function returning %s", t, returnType))
		}
	}
}

func (c *TypeChecker) checkAssignment(scope *Scope, s *ast.AssignmentStmt) {
	targetType := c.checkExpr(scope, s.Target)
	valueType := c.checkExpr(scope, s.Value)

	if !c.isLValue(s.Target) {
		c.diags.Add(diag.New(diag.CodeInvalidLValue, diag.Error, s.Target.Location(),
			"assignment target is not an lvalue"))
		return
	}
	if id, ok := s.Target.(*ast.IdentifierExpr); ok && id.Symbol != nil && id.Symbol.IsConst {
		c.diags.Add(diag.New(diag.CodeConstReassignment, diag.Error, s.Location(),
			"cannot assign to const %q", id.Name))
		return
	}
	if targetType == nil || valueType == nil {
		return
	}
	switch ast.CheckCompatibility(valueType, targetType) {
	case ast.Incompatible, ast.RequiresConversion:
		c.diags.Add(diag.New(diag.CodeTypeMismatch, diag.Error, s.Value.Location(),
			"cannot assign %s to %s", valueType, targetType))
	}
}

func (c *TypeChecker) isLValue(e ast.Expression) bool {
	switch t := e.(type) {
	case *ast.IdentifierExpr:
		return t.Symbol == nil || (t.Symbol.Kind != ast.SymbolFunction && t.Symbol.Kind != ast.SymbolIntrinsic &&
			t.Symbol.Kind != ast.SymbolEnumMember)
	case *ast.IndexExpr, *ast.MemberExpr:
		return true
	default:
		return false
	}
}

func (c *TypeChecker) expectBool(scope *Scope, e ast.Expression) {
	t := c.checkExpr(scope, e)
	if t != nil && t.Kind() != ast.TypeBool {
		c.diags.Add(diag.New(diag.CodeTypeMismatch, diag.Error, e.Location(),
			"expected bool, got %s", t))
	}
}

// ---------------------------------------------------------------------------
// L1/L2: Literals and expressions
// ---------------------------------------------------------------------------

// checkExpr resolves and annotates the TypeInfo of expr, recursing into its
// children first. Unsupported expression kinds fall through to Unknown,
// matching spec.md §9's "default: set unknown type" handler.
func (c *TypeChecker) checkExpr(scope *Scope, expr ast.Expression) ast.TypeInfo {
	var t ast.TypeInfo
	switch e := expr.(type) {
	case *ast.IntLiteralExpr:
		t = c.checkIntLiteral(e)
	case *ast.BoolLiteralExpr:
		t = ast.Bool
	case *ast.StringLiteralExpr:
		t = ast.String
	case *ast.IdentifierExpr:
		t = c.checkIdentifier(scope, e)
	case *ast.BinaryExpr:
		t = c.checkBinary(scope, e)
	case *ast.UnaryExpr:
		t = c.checkUnary(scope, e)
	case *ast.CallExpr:
		t = c.checkCall(scope, e)
	case *ast.IndexExpr:
		t = c.checkIndex(scope, e)
	case *ast.MemberExpr:
		t = c.checkMember(scope, e)
	case *ast.SizeofExpr:
		t = ast.Word
	case *ast.LengthExpr:
		c.checkExpr(scope, e.Array)
		t = ast.Word
	default:
		t = ast.Unknown
	}
	if t == nil {
		t = ast.Unknown
	}
	expr.Meta().SetType(t)
	return t
}

func (c *TypeChecker) checkIntLiteral(e *ast.IntLiteralExpr) ast.TypeInfo {
	if e.Value < 0 || e.Value > 65535 {
		c.diags.Add(diag.New(diag.CodeNumericOverflow, diag.Warning, e.Location(),
			"integer literal %d exceeds word range", e.Value))
	}
	if e.Value <= 255 {
		return ast.Byte
	}
	return ast.Word
}

func (c *TypeChecker) checkIdentifier(scope *Scope, e *ast.IdentifierExpr) ast.TypeInfo {
	sym, ok := scope.LookupInChain(e.Name)
	if !ok {
		c.diags.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, e.Location(),
			"identifier %q not declared", e.Name))
		return ast.Unknown
	}
	e.Symbol = sym
	if sym.Type == nil {
		return ast.Unknown
	}
	return sym.Type
}

func (c *TypeChecker) checkUnary(scope *Scope, e *ast.UnaryExpr) ast.TypeInfo {
	t := c.checkExpr(scope, e.Operand)
	switch e.Op {
	case "!":
		if t.Kind() != ast.TypeBool {
			c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
				"operator ! requires bool, got %s", t))
			return ast.Unknown
		}
		return ast.Bool
	case "-", "~":
		if !ast.IsNumeric(t) {
			c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
				"operator %s requires a numeric operand, got %s", e.Op, t))
			return ast.Unknown
		}
		return t
	case "&":
		// Address-of: result is a word-sized pointer regardless of operand
		// size (spec.md §4.10's alias analysis treats this as the origin of
		// a points-to edge).
		return ast.Word
	default:
		c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
			"unknown unary operator %q", e.Op))
		return ast.Unknown
	}
}

var comparisonOps = map[string]bool{"<": true, ">": true, "<=": true, ">=": true, "==": true, "!=": true}
var logicalOps = map[string]bool{"&&": true, "||": true}

func (c *TypeChecker) checkBinary(scope *Scope, e *ast.BinaryExpr) ast.TypeInfo {
	lt := c.checkExpr(scope, e.Left)
	rt := c.checkExpr(scope, e.Right)

	switch {
	case logicalOps[e.Op]:
		if lt.Kind() != ast.TypeBool || rt.Kind() != ast.TypeBool {
			c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
				"operator %s requires bool operands, got %s and %s", e.Op, lt, rt))
			return ast.Unknown
		}
		return ast.Bool
	case comparisonOps[e.Op]:
		if ast.CheckCompatibility(lt, rt) == ast.Incompatible && ast.CheckCompatibility(rt, lt) == ast.Incompatible {
			c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
				"cannot compare %s with %s", lt, rt))
		}
		return ast.Bool
	default:
		// Arithmetic / bitwise: both operands numeric (spec.md §4.6).
		if !ast.IsNumeric(lt) || !ast.IsNumeric(rt) {
			c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
				"operator %s requires numeric operands, got %s and %s", e.Op, lt, rt))
			return ast.Unknown
		}
		result := ast.WidestNumeric(lt, rt)
		if (e.Op == "+" || e.Op == "*") && lt.Kind() == ast.TypeByte && rt.Kind() == ast.TypeByte {
			// Addition/multiplication can overflow a byte; informational
			// only, per spec.md §4.2 ("diagnostics for overflow are
			// informational, not errors").
			c.diags.Add(diag.New(diag.CodeNumericOverflow, diag.Info, e.Location(),
				"byte %s byte may overflow; result is still byte unless widened explicitly", e.Op))
		}
		return result
	}
}

func (c *TypeChecker) checkCall(scope *Scope, e *ast.CallExpr) ast.TypeInfo {
	var callee *ast.Symbol
	switch target := e.Callee.(type) {
	case *ast.IdentifierExpr:
		sym, ok := scope.LookupInChain(target.Name)
		if !ok {
			c.diags.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, e.Location(),
				"undeclared function %q", target.Name))
			for _, a := range e.Args {
				c.checkExpr(scope, a)
			}
			return ast.Unknown
		}
		target.Symbol = sym
		callee = sym
	default:
		c.checkExpr(scope, e.Callee)
		for _, a := range e.Args {
			c.checkExpr(scope, a)
		}
		return ast.Unknown
	}

	if !callee.IsCallable() {
		c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Location(),
			"%q is not callable", callee.Name))
		for _, a := range e.Args {
			c.checkExpr(scope, a)
		}
		return ast.Unknown
	}

	sig := callee.Signature
	argTypes := make([]ast.TypeInfo, len(e.Args))
	for i, a := range e.Args {
		argTypes[i] = c.checkExpr(scope, a)
	}
	if sig != nil {
		if len(e.Args) != len(sig.Parameters) {
			c.diags.Add(diag.New(diag.CodeArgumentCountMismatch, diag.Error, e.Location(),
				"function %q expects %d argument(s), got %d", callee.Name, len(sig.Parameters), len(e.Args)))
		} else {
			for i, p := range sig.Parameters {
				if ast.CheckCompatibility(argTypes[i], p.Type) == ast.Incompatible {
					c.diags.Add(diag.New(diag.CodeArgumentTypeMismatch, diag.Error, e.Args[i].Location(),
						"function %q parameter %d expects %s, got %s", callee.Name, i+1, p.Type, argTypes[i]))
				}
			}
		}
		if sig.ReturnType != nil {
			return sig.ReturnType
		}
	}
	return ast.Void
}

func (c *TypeChecker) checkIndex(scope *Scope, e *ast.IndexExpr) ast.TypeInfo {
	targetType := c.checkExpr(scope, e.Target)
	indexType := c.checkExpr(scope, e.Index)
	if !ast.IsNumeric(indexType) {
		c.diags.Add(diag.New(diag.CodeInvalidOperator, diag.Error, e.Index.Location(),
			"array index must be numeric, got %s", indexType))
	}
	arr, ok := targetType.(*ast.ArrayType)
	if !ok {
		c.diags.Add(diag.New(diag.CodeTypeMismatch, diag.Error, e.Target.Location(),
			"cannot index into %s", targetType))
		return ast.Unknown
	}
	return arr.Element
}

func (c *TypeChecker) checkMember(scope *Scope, e *ast.MemberExpr) ast.TypeInfo {
	if id, ok := e.Target.(*ast.IdentifierExpr); ok {
		if enumType, ok := c.enumTypes[id.Name]; ok {
			if _, ok := enumType.Members[e.Member]; !ok {
				c.diags.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, e.Location(),
					"enum %q has no member %q", id.Name, e.Member))
				return ast.Unknown
			}
			return enumType
		}
	}
	c.checkExpr(scope, e.Target)
	return ast.Unknown
}
