package compiler

import "github.com/blendsdk/blend65-sub017/pkg/ast"

// DefaultMaxUnroll is the default unroll-candidate iteration-count ceiling
// (spec.md §4.9).
const DefaultMaxUnroll = 8

// InductionKind distinguishes a basic induction variable (directly stepped
// by a constant delta) from one derived from it (spec.md §4.9).
type InductionKind int

const (
	InductionBasic InductionKind = iota
	InductionDerived
)

// InductionVariable describes one variable whose value each loop iteration
// advances in a statically predictable way.
type InductionVariable struct {
	Symbol *ast.Symbol
	Kind   InductionKind
	// Delta is the per-iteration constant step for a Basic variable.
	Delta int
	// Base, Multiplier, Offset describe a Derived variable of the form
	// `Symbol = Multiplier*Base + Offset`.
	Base       *ast.Symbol
	Multiplier int
	Offset     int
}

// LoopInfo is the per-loop analysis result (spec.md §4.9).
type LoopInfo struct {
	Node                ast.Statement
	ModifiedVariables   map[*ast.Symbol]bool
	InductionVariables  []InductionVariable
	InvariantExpressions []ast.Expression
	HasNestedLoop       bool
	HasBreakOrContinue  bool
	IsCountable         bool
	IterationCount      *int
	UnrollCandidate     bool
}

// LoopAnalyzer builds a LoopInfo for every loop statement reachable from a
// function body (spec.md §4.9).
type LoopAnalyzer struct {
	MaxUnroll int
	infos     map[ast.Statement]*LoopInfo
}

// NewLoopAnalyzer returns an analyzer using the default unroll ceiling.
func NewLoopAnalyzer() *LoopAnalyzer {
	return &LoopAnalyzer{MaxUnroll: DefaultMaxUnroll, infos: make(map[ast.Statement]*LoopInfo)}
}

// Analyze walks fn's body and returns LoopInfo for every loop found, keyed
// by the loop's AST node.
func (a *LoopAnalyzer) Analyze(fn *ast.FunctionDecl) map[ast.Statement]*LoopInfo {
	a.infos = make(map[ast.Statement]*LoopInfo)
	if fn.Body != nil {
		a.walkForLoops(fn.Body)
	}
	return a.infos
}

func asStatements(s ast.Statement) []ast.Statement {
	if b, ok := s.(*ast.BlockStmt); ok {
		return b.Statements
	}
	if s == nil {
		return nil
	}
	return []ast.Statement{s}
}

// walkForLoops finds every loop statement at any depth under stmt (entering
// nested blocks/if/match but not descending past a loop it has already
// started analyzing, since analyzeLoop itself recurses into nested loops).
func (a *LoopAnalyzer) walkForLoops(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		for _, st := range s.Statements {
			a.walkForLoops(st)
		}
	case *ast.IfStmt:
		a.walkForLoops(s.Then)
		if s.Else != nil {
			a.walkForLoops(s.Else)
		}
	case *ast.MatchStmt:
		for _, arm := range s.Cases {
			a.walkForLoops(arm.Body)
		}
		if s.Default != nil {
			a.walkForLoops(s.Default)
		}
	case *ast.WhileStmt, *ast.ForStmt, *ast.DoWhileStmt:
		a.infos[stmt] = a.analyzeLoop(stmt)
	}
}

func loopBody(stmt ast.Statement) ast.Statement {
	switch s := stmt.(type) {
	case *ast.WhileStmt:
		return s.Body
	case *ast.ForStmt:
		return s.Body
	case *ast.DoWhileStmt:
		return s.Body
	default:
		return nil
	}
}

func (a *LoopAnalyzer) analyzeLoop(stmt ast.Statement) *LoopInfo {
	body := loopBody(stmt)
	li := &LoopInfo{Node: stmt}
	li.ModifiedVariables = collectAssignedSymbolsDeep(body)
	if forStmt, ok := stmt.(*ast.ForStmt); ok {
		if forStmt.Init != nil {
			for sym := range assignedSymbolsOf(forStmt.Init) {
				li.ModifiedVariables[sym] = true
			}
		}
		if forStmt.Post != nil {
			for sym := range assignedSymbolsOf(forStmt.Post) {
				li.ModifiedVariables[sym] = true
			}
		}
	}

	li.HasNestedLoop = containsNestedLoop(body)
	li.HasBreakOrContinue = containsBreakOrContinue(body)
	inductionStmts := asStatements(body)
	if forStmt, ok := stmt.(*ast.ForStmt); ok && forStmt.Post != nil {
		// Post runs once per iteration, like a trailing body statement.
		inductionStmts = append(append([]ast.Statement(nil), inductionStmts...), forStmt.Post)
	}
	li.InductionVariables = a.detectInduction(inductionStmts)

	// Recurse into any nested loops first (post-order) so their invariant
	// candidates can be promoted outward to this loop when still invariant
	// here (spec.md §4.9: "hoisted to the outermost loop where it is still
	// invariant").
	var childCandidates []ast.Expression
	for _, st := range asStatements(body) {
		a.walkForLoops(st)
	}
	for nested, childLI := range a.infos {
		if isDescendantLoop(body, nested) && nested != stmt {
			childCandidates = append(childCandidates, childLI.InvariantExpressions...)
		}
	}

	direct := collectDirectExpressions(body)
	candidates := append(direct, childCandidates...)

	var mine []ast.Expression
	seen := make(map[ast.Expression]bool)
	for _, e := range candidates {
		if seen[e] {
			continue
		}
		if isInvariant(e, li.ModifiedVariables) {
			seen[e] = true
			mine = append(mine, e)
		}
	}
	li.InvariantExpressions = mine
	// Demote any child candidate that got promoted here out of the child's
	// own list.
	for nested, childLI := range a.infos {
		if isDescendantLoop(body, nested) && nested != stmt {
			childLI.InvariantExpressions = subtractExprs(childLI.InvariantExpressions, mine)
		}
	}

	a.detectCountability(stmt, li)
	li.UnrollCandidate = li.IsCountable && li.IterationCount != nil &&
		*li.IterationCount >= 1 && *li.IterationCount <= a.MaxUnroll &&
		!li.HasNestedLoop && !li.HasBreakOrContinue

	return li
}

func subtractExprs(from, remove []ast.Expression) []ast.Expression {
	if len(remove) == 0 {
		return from
	}
	removeSet := make(map[ast.Expression]bool, len(remove))
	for _, e := range remove {
		removeSet[e] = true
	}
	var out []ast.Expression
	for _, e := range from {
		if !removeSet[e] {
			out = append(out, e)
		}
	}
	return out
}

func isDescendantLoop(root ast.Statement, candidate ast.Statement) bool {
	found := false
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		if s == candidate {
			found = true
			return
		}
		switch t := s.(type) {
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			walk(t.Then)
			walk(t.Else)
		case *ast.MatchStmt:
			for _, arm := range t.Cases {
				walk(arm.Body)
			}
			walk(t.Default)
		case *ast.WhileStmt:
			walk(t.Body)
		case *ast.ForStmt:
			walk(t.Body)
		case *ast.DoWhileStmt:
			walk(t.Body)
		}
	}
	walk(root)
	return found
}

// ---------------------------------------------------------------------------
// Modified-variable collection
// ---------------------------------------------------------------------------

func assignedSymbolsOf(stmt ast.Statement) map[*ast.Symbol]bool {
	out := make(map[*ast.Symbol]bool)
	if s, ok := stmt.(*ast.AssignmentStmt); ok {
		if id, ok := s.Target.(*ast.IdentifierExpr); ok && id.Symbol != nil {
			out[id.Symbol] = true
		}
	}
	if s, ok := stmt.(*ast.VariableDecl); ok && s.Symbol != nil {
		out[s.Symbol] = true
	}
	return out
}

func collectAssignedSymbolsDeep(stmt ast.Statement) map[*ast.Symbol]bool {
	out := make(map[*ast.Symbol]bool)
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if s == nil {
			return
		}
		for sym := range assignedSymbolsOf(s) {
			out[sym] = true
		}
		switch t := s.(type) {
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			walk(t.Then)
			walk(t.Else)
		case *ast.MatchStmt:
			for _, arm := range t.Cases {
				walk(arm.Body)
			}
			walk(t.Default)
		case *ast.WhileStmt:
			walk(t.Body)
		case *ast.ForStmt:
			if t.Init != nil {
				walk(t.Init)
			}
			if t.Post != nil {
				walk(t.Post)
			}
			walk(t.Body)
		case *ast.DoWhileStmt:
			walk(t.Body)
		}
	}
	walk(stmt)
	return out
}

func containsNestedLoop(stmt ast.Statement) bool {
	found := false
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		switch t := s.(type) {
		case *ast.WhileStmt, *ast.ForStmt, *ast.DoWhileStmt:
			_ = t
			found = true
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			walk(t.Then)
			walk(t.Else)
		case *ast.MatchStmt:
			for _, arm := range t.Cases {
				walk(arm.Body)
			}
			walk(t.Default)
		}
	}
	walk(stmt)
	return found
}

func containsBreakOrContinue(stmt ast.Statement) bool {
	found := false
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		switch t := s.(type) {
		case *ast.BreakStmt, *ast.ContinueStmt:
			found = true
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			walk(t.Then)
			walk(t.Else)
		case *ast.MatchStmt:
			for _, arm := range t.Cases {
				walk(arm.Body)
			}
			walk(t.Default)
		}
	}
	walk(stmt)
	return found
}

// ---------------------------------------------------------------------------
// Invariant-expression collection
// ---------------------------------------------------------------------------

// collectDirectExpressions gathers every expression appearing in stmt at any
// depth, except expressions inside a nested loop's own body (those surface
// via that nested loop's own InvariantExpressions, possibly promoted
// outward).
func collectDirectExpressions(stmt ast.Statement) []ast.Expression {
	var out []ast.Expression
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if s == nil {
			return
		}
		switch t := s.(type) {
		case *ast.VariableDecl:
			if t.Initializer != nil {
				out = append(out, t.Initializer)
			}
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			out = append(out, t.Condition)
			walk(t.Then)
			walk(t.Else)
		case *ast.MatchStmt:
			out = append(out, t.Subject)
			for _, arm := range t.Cases {
				out = append(out, arm.Values...)
				walk(arm.Body)
			}
			walk(t.Default)
		case *ast.ReturnStmt:
			if t.Value != nil {
				out = append(out, t.Value)
			}
		case *ast.ExpressionStmt:
			out = append(out, t.Expr)
		case *ast.AssignmentStmt:
			out = append(out, t.Value)
		}
		// Nested loops intentionally not descended into here.
	}
	walk(stmt)
	return out
}

func isInvariant(e ast.Expression, modified map[*ast.Symbol]bool) bool {
	switch t := e.(type) {
	case *ast.IntLiteralExpr, *ast.BoolLiteralExpr, *ast.StringLiteralExpr, *ast.SizeofExpr:
		return true
	case *ast.IdentifierExpr:
		return t.Symbol == nil || !modified[t.Symbol]
	case *ast.BinaryExpr:
		return isInvariant(t.Left, modified) && isInvariant(t.Right, modified)
	case *ast.UnaryExpr:
		return isInvariant(t.Operand, modified)
	case *ast.IndexExpr:
		return isInvariant(t.Target, modified) && isInvariant(t.Index, modified)
	case *ast.MemberExpr:
		return isInvariant(t.Target, modified)
	case *ast.LengthExpr:
		return isInvariant(t.Array, modified)
	default:
		// CallExpr and anything else: conservatively not invariant, since no
		// purity analysis exists to prove a call has no side effect.
		return false
	}
}

// ---------------------------------------------------------------------------
// Induction-variable detection
// ---------------------------------------------------------------------------

// detectInduction scans stmts (the loop body's statement list plus a
// for-loop's Post, descending into nested blocks only as straight-line
// sequencing) for variables assigned exactly once, classifying each as
// Basic (var ± constant) or Derived (multiplier*basic + offset). A variable
// assigned under an if/match branch is never an induction variable.
func (a *LoopAnalyzer) detectInduction(stmts []ast.Statement) []InductionVariable {
	counts := make(map[*ast.Symbol]int)
	lastValue := make(map[*ast.Symbol]ast.Expression)
	collectShallowAssignments(stmts, counts, lastValue)

	var result []InductionVariable
	basics := make(map[*ast.Symbol]int)
	var derivedCandidates []*ast.Symbol

	for sym, n := range counts {
		if n != 1 {
			continue
		}
		if delta, ok := matchBasicDelta(lastValue[sym], sym); ok {
			basics[sym] = delta
			result = append(result, InductionVariable{Symbol: sym, Kind: InductionBasic, Delta: delta})
		} else {
			derivedCandidates = append(derivedCandidates, sym)
		}
	}
	for _, sym := range derivedCandidates {
		if mult, offset, base, ok := matchDerived(lastValue[sym], basics); ok {
			result = append(result, InductionVariable{
				Symbol: sym, Kind: InductionDerived, Base: base, Multiplier: mult, Offset: offset,
			})
		}
	}
	return result
}

func collectShallowAssignments(stmts []ast.Statement, counts map[*ast.Symbol]int, lastValue map[*ast.Symbol]ast.Expression) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.AssignmentStmt:
			if id, ok := s.Target.(*ast.IdentifierExpr); ok && id.Symbol != nil {
				counts[id.Symbol]++
				lastValue[id.Symbol] = s.Value
			}
		case *ast.BlockStmt:
			collectShallowAssignments(s.Statements, counts, lastValue)
		case *ast.IfStmt, *ast.MatchStmt:
			// A branch does not run on every iteration, so an assignment
			// under it disqualifies its variable instead of counting once.
			for sym := range collectAssignedSymbolsDeep(s) {
				counts[sym] += 2
			}
		}
		// Nested loops are a boundary: their internal assignments do not
		// count toward this loop's own induction-variable detection.
	}
}

func matchBasicDelta(expr ast.Expression, sym *ast.Symbol) (int, bool) {
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || (bin.Op != "+" && bin.Op != "-") {
		return 0, false
	}
	if id, ok := bin.Left.(*ast.IdentifierExpr); ok && id.Symbol == sym {
		if lit, ok := bin.Right.(*ast.IntLiteralExpr); ok {
			if bin.Op == "-" {
				return -lit.Value, true
			}
			return lit.Value, true
		}
	}
	if bin.Op == "+" {
		if id, ok := bin.Right.(*ast.IdentifierExpr); ok && id.Symbol == sym {
			if lit, ok := bin.Left.(*ast.IntLiteralExpr); ok {
				return lit.Value, true
			}
		}
	}
	return 0, false
}

func matchMul(expr ast.Expression, basics map[*ast.Symbol]int) (int, *ast.Symbol, bool) {
	if id, ok := expr.(*ast.IdentifierExpr); ok {
		if _, isBasic := basics[id.Symbol]; isBasic {
			return 1, id.Symbol, true
		}
		return 0, nil, false
	}
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "*" {
		return 0, nil, false
	}
	if lit, ok := bin.Left.(*ast.IntLiteralExpr); ok {
		if id, ok := bin.Right.(*ast.IdentifierExpr); ok {
			if _, isBasic := basics[id.Symbol]; isBasic {
				return lit.Value, id.Symbol, true
			}
		}
	}
	if lit, ok := bin.Right.(*ast.IntLiteralExpr); ok {
		if id, ok := bin.Left.(*ast.IdentifierExpr); ok {
			if _, isBasic := basics[id.Symbol]; isBasic {
				return lit.Value, id.Symbol, true
			}
		}
	}
	return 0, nil, false
}

func matchDerived(expr ast.Expression, basics map[*ast.Symbol]int) (mult, offset int, base *ast.Symbol, ok bool) {
	bin, isBin := expr.(*ast.BinaryExpr)
	if !isBin || (bin.Op != "+" && bin.Op != "-") {
		if m, b, matched := matchMul(expr, basics); matched {
			return m, 0, b, true
		}
		return 0, 0, nil, false
	}
	if lit, isLit := bin.Right.(*ast.IntLiteralExpr); isLit {
		if m, b, matched := matchMul(bin.Left, basics); matched {
			off := lit.Value
			if bin.Op == "-" {
				off = -off
			}
			return m, off, b, true
		}
	}
	if lit, isLit := bin.Left.(*ast.IntLiteralExpr); isLit && bin.Op == "+" {
		if m, b, matched := matchMul(bin.Right, basics); matched {
			return m, lit.Value, b, true
		}
	}
	return 0, 0, nil, false
}

// ---------------------------------------------------------------------------
// Countability
// ---------------------------------------------------------------------------

// detectCountability recognizes the common `for (i = start; i <op> limit; i
// = i ± delta)` counting pattern. While/do-while loops, and any for-loop
// outside this pattern, are conservatively treated as not countable.
func (a *LoopAnalyzer) detectCountability(stmt ast.Statement, li *LoopInfo) {
	forStmt, ok := stmt.(*ast.ForStmt)
	if !ok || forStmt.Init == nil || forStmt.Condition == nil {
		return
	}
	var loopVar *ast.Symbol
	var start int
	switch init := forStmt.Init.(type) {
	case *ast.VariableDecl:
		lit, ok := init.Initializer.(*ast.IntLiteralExpr)
		if !ok || init.Symbol == nil {
			return
		}
		loopVar, start = init.Symbol, lit.Value
	case *ast.AssignmentStmt:
		id, ok := init.Target.(*ast.IdentifierExpr)
		lit, litOK := init.Value.(*ast.IntLiteralExpr)
		if !ok || !litOK || id.Symbol == nil {
			return
		}
		loopVar, start = id.Symbol, lit.Value
	default:
		return
	}

	var delta int
	found := false
	for _, iv := range li.InductionVariables {
		if iv.Symbol == loopVar && iv.Kind == InductionBasic {
			delta, found = iv.Delta, true
		}
	}
	if !found || delta == 0 {
		return
	}

	cond, ok := forStmt.Condition.(*ast.BinaryExpr)
	if !ok {
		return
	}
	id, idOK := cond.Left.(*ast.IdentifierExpr)
	lit, litOK := cond.Right.(*ast.IntLiteralExpr)
	if !idOK || !litOK || id.Symbol != loopVar {
		return
	}
	limit := lit.Value

	var count int
	switch {
	case delta > 0 && (cond.Op == "<" || cond.Op == "<="):
		span := limit - start
		if cond.Op == "<=" {
			span++
		}
		if span <= 0 {
			count = 0
		} else {
			count = (span + delta - 1) / delta
		}
	case delta < 0 && (cond.Op == ">" || cond.Op == ">="):
		span := start - limit
		if cond.Op == ">=" {
			span++
		}
		d := -delta
		if span <= 0 {
			count = 0
		} else {
			count = (span + d - 1) / d
		}
	default:
		return
	}

	li.IsCountable = true
	li.IterationCount = &count
}
