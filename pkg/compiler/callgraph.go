package compiler

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

// CallSite is one call expression found in a function body (spec.md §4.8).
type CallSite struct {
	Caller   *ast.Symbol
	Callee   *ast.Symbol
	Location ast.SourceLocation
}

// InfiniteDepth is the MaxCallDepth sentinel for a function participating in
// recursion (spec.md §4.8: "∞ for recursive functions").
const InfiniteDepth = -1

// CallGraph is the whole-program caller/callee relation over every function
// declaration (spec.md §4.8).
type CallGraph struct {
	Sites     []CallSite
	functions []*ast.Symbol
	callees   map[*ast.Symbol]map[*ast.Symbol]bool
	callers   map[*ast.Symbol]map[*ast.Symbol]bool
	// index maps a registered function to its position in functions, so the
	// reachability walks below (UnreachableFrom, IsRecursive) can track
	// visited-ness in a bitset instead of a map[*ast.Symbol]bool.
	index map[*ast.Symbol]int
}

// NewCallGraph returns an empty graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{
		callees: make(map[*ast.Symbol]map[*ast.Symbol]bool),
		callers: make(map[*ast.Symbol]map[*ast.Symbol]bool),
		index:   make(map[*ast.Symbol]int),
	}
}

func (g *CallGraph) registerFunction(sym *ast.Symbol) {
	if _, ok := g.callees[sym]; ok {
		return
	}
	g.index[sym] = len(g.functions)
	g.functions = append(g.functions, sym)
	g.callees[sym] = make(map[*ast.Symbol]bool)
	g.callers[sym] = make(map[*ast.Symbol]bool)
}

func (g *CallGraph) addCall(caller, callee *ast.Symbol, loc ast.SourceLocation) {
	g.registerFunction(caller)
	g.registerFunction(callee)
	g.Sites = append(g.Sites, CallSite{Caller: caller, Callee: callee, Location: loc})
	g.callees[caller][callee] = true
	g.callers[callee][caller] = true
}

func sortedSymbols(set map[*ast.Symbol]bool) []*ast.Symbol {
	out := make([]*ast.Symbol, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Callees returns every function f directly calls, sorted by name for
// deterministic iteration.
func (g *CallGraph) Callees(f *ast.Symbol) []*ast.Symbol { return sortedSymbols(g.callees[f]) }

// Callers returns every function that directly calls f.
func (g *CallGraph) Callers(f *ast.Symbol) []*ast.Symbol { return sortedSymbols(g.callers[f]) }

// Functions returns every function registered in the graph (insertion
// order: declaration order across modules).
func (g *CallGraph) Functions() []*ast.Symbol {
	out := make([]*ast.Symbol, len(g.functions))
	copy(out, g.functions)
	return out
}

// IsDirectlyRecursive reports f ∈ callees(f) (spec.md §4.8).
func (g *CallGraph) IsDirectlyRecursive(f *ast.Symbol) bool {
	return g.callees[f][f]
}

// IsRecursive reports whether a DFS from f finds a cycle back to f (spec.md
// §4.8), covering both direct and mutual/indirect recursion.
func (g *CallGraph) IsRecursive(f *ast.Symbol) bool {
	visited := bitset.New(uint(len(g.functions)))
	var dfs func(n *ast.Symbol) bool
	dfs = func(n *ast.Symbol) bool {
		for callee := range g.callees[n] {
			if callee == f {
				return true
			}
			idx := uint(g.index[callee])
			if visited.Test(idx) {
				continue
			}
			visited.Set(idx)
			if dfs(callee) {
				return true
			}
		}
		return false
	}
	return dfs(f)
}

// MaxCallDepth returns the longest simple call-chain length starting at f,
// or InfiniteDepth if f participates in recursion (spec.md §4.8).
func (g *CallGraph) MaxCallDepth(f *ast.Symbol) int {
	if g.IsRecursive(f) {
		return InfiniteDepth
	}
	onPath := make(map[*ast.Symbol]bool)
	memo := make(map[*ast.Symbol]int)
	var dfs func(n *ast.Symbol) int
	dfs = func(n *ast.Symbol) int {
		if d, ok := memo[n]; ok {
			return d
		}
		onPath[n] = true
		best := 0
		for callee := range g.callees[n] {
			if onPath[callee] {
				continue // guarded by the IsRecursive check above; defensive only.
			}
			if d := dfs(callee) + 1; d > best {
				best = d
			}
		}
		onPath[n] = false
		memo[n] = best
		return best
	}
	return dfs(f)
}

// EntryPoints returns every function with no callers. If every function has
// at least one caller (e.g. every function is reachable through some other
// function, common when a harness outside this graph calls into all of
// them), the result is empty rather than guessing (spec.md §4.8).
func (g *CallGraph) EntryPoints() []*ast.Symbol {
	var out []*ast.Symbol
	for _, f := range g.functions {
		if len(g.callers[f]) == 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UnreachableFrom returns every registered function not reachable from root
// via call edges (spec.md §4.8: "complement of DFS reachability"). Reachable
// nodes are tracked in a bitset indexed by registration order, the same
// dense reachability representation the CFG Builder (C7) uses for its own
// unreachable-code BFS.
func (g *CallGraph) UnreachableFrom(root *ast.Symbol) []*ast.Symbol {
	reachable := bitset.New(uint(len(g.functions)))
	var dfs func(n *ast.Symbol)
	dfs = func(n *ast.Symbol) {
		idx := uint(g.index[n])
		if reachable.Test(idx) {
			return
		}
		reachable.Set(idx)
		for callee := range g.callees[n] {
			dfs(callee)
		}
	}
	dfs(root)

	var out []*ast.Symbol
	for _, f := range g.functions {
		if !reachable.Test(uint(g.index[f])) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecursionDiagnostics returns one informational RecursionInfo diagnostic
// per recursive function (spec.md §4.8: recursion is not an error; the
// backend implements it via the hardware stack and callers are told that
// per-call stack usage cannot be statically bounded).
func (g *CallGraph) RecursionDiagnostics() []diag.Diagnostic {
	var diags []diag.Diagnostic
	for _, f := range g.functions {
		if g.IsRecursive(f) {
			diags = append(diags, diag.New(diag.CodeRecursionInfo, diag.Info, f.DeclLoc,
				"function %q participates in recursion; per-call stack usage cannot be statically bounded", f.Name))
		}
	}
	return diags
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// CallGraphBuilder walks function bodies recording a call-site for every
// call expression it finds, including calls nested inside expressions and
// control-flow bodies (spec.md §4.8).
type CallGraphBuilder struct {
	graph *CallGraph
}

// NewCallGraphBuilder returns a builder over a fresh CallGraph.
func NewCallGraphBuilder() *CallGraphBuilder {
	return &CallGraphBuilder{graph: NewCallGraph()}
}

// AddFunction walks d's body recording call sites whose callee resolved (via
// the type checker) to another function symbol.
func (b *CallGraphBuilder) AddFunction(d *ast.FunctionDecl) {
	b.graph.registerFunction(d.Symbol)
	if d.Body == nil {
		return
	}
	for _, stmt := range d.Body.Statements {
		b.walkStatement(d.Symbol, stmt)
	}
}

// Graph returns the graph built so far.
func (b *CallGraphBuilder) Graph() *CallGraph { return b.graph }

func (b *CallGraphBuilder) walkStatement(caller *ast.Symbol, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		if s.Initializer != nil {
			b.walkExpression(caller, s.Initializer)
		}
	case *ast.BlockStmt:
		for _, st := range s.Statements {
			b.walkStatement(caller, st)
		}
	case *ast.IfStmt:
		b.walkExpression(caller, s.Condition)
		b.walkStatement(caller, s.Then)
		if s.Else != nil {
			b.walkStatement(caller, s.Else)
		}
	case *ast.WhileStmt:
		b.walkExpression(caller, s.Condition)
		b.walkStatement(caller, s.Body)
	case *ast.ForStmt:
		if s.Init != nil {
			b.walkStatement(caller, s.Init)
		}
		if s.Condition != nil {
			b.walkExpression(caller, s.Condition)
		}
		if s.Post != nil {
			b.walkStatement(caller, s.Post)
		}
		b.walkStatement(caller, s.Body)
	case *ast.DoWhileStmt:
		b.walkStatement(caller, s.Body)
		b.walkExpression(caller, s.Condition)
	case *ast.MatchStmt:
		b.walkExpression(caller, s.Subject)
		for _, arm := range s.Cases {
			for _, v := range arm.Values {
				b.walkExpression(caller, v)
			}
			b.walkStatement(caller, arm.Body)
		}
		if s.Default != nil {
			b.walkStatement(caller, s.Default)
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			b.walkExpression(caller, s.Value)
		}
	case *ast.ExpressionStmt:
		b.walkExpression(caller, s.Expr)
	case *ast.AssignmentStmt:
		b.walkExpression(caller, s.Target)
		b.walkExpression(caller, s.Value)
	}
}

func (b *CallGraphBuilder) walkExpression(caller *ast.Symbol, expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.BinaryExpr:
		b.walkExpression(caller, e.Left)
		b.walkExpression(caller, e.Right)
	case *ast.UnaryExpr:
		b.walkExpression(caller, e.Operand)
	case *ast.IndexExpr:
		b.walkExpression(caller, e.Target)
		b.walkExpression(caller, e.Index)
	case *ast.MemberExpr:
		b.walkExpression(caller, e.Target)
	case *ast.LengthExpr:
		b.walkExpression(caller, e.Array)
	case *ast.CallExpr:
		if id, ok := e.Callee.(*ast.IdentifierExpr); ok && id.Symbol != nil && id.Symbol.Kind == ast.SymbolFunction {
			b.graph.addCall(caller, id.Symbol, e.Location())
		}
		for _, a := range e.Args {
			b.walkExpression(caller, a)
		}
	}
}
