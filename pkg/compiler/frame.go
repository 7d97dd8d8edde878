package compiler

import (
	"sort"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

// FrameSlot is one fixed offset within a function's static frame.
type FrameSlot struct {
	Symbol *ast.Symbol
	Offset int
	Size   int
}

// Frame is one function's static activation record (spec.md §4.13: there is
// no runtime call stack for locals/parameters; every function gets a fixed
// base address instead).
type Frame struct {
	Function    *ast.Symbol
	BaseAddress uint16
	Size        int
	ReturnSlot  *FrameSlot // nil for a void-returning function.
	ParamSlots  []FrameSlot
	LocalSlots  []FrameSlot
	// SharedWith lists the other functions colored into the same base
	// address, i.e. provably never live at the same time (spec.md §4.13).
	SharedWith []*ast.Symbol
	// Recursive functions always get a unique frame; this is informational,
	// not an error (they still can't use a software stack, so stack-depth
	// exhaustion remains the caller's concern per spec.md §9).
	Recursive bool
	// TempBase/TempCount reserve scratch slots past ParamSlots/LocalSlots for
	// the IL generator's spilled sub-expression results. "Virtual registers"
	// (spec.md §3) are a naming convenience only; this is where they
	// actually live. Each slot is 2 bytes (wide enough for a Word).
	TempBase  int
	TempCount int
}

// FrameMap is the whole-program output of the Frame Allocator.
type FrameMap struct {
	Frames map[*ast.Symbol]*Frame
}

// FrameAllocator assigns each function a fixed base address, coloring
// mutually-exclusive functions (neither transitively calls the other) onto
// the same address to conserve space (spec.md §4.13).
type FrameAllocator struct {
	target target.Target
	graph  *CallGraph
	diags  *diag.Collector

	layouts map[*ast.Symbol]functionFrameLayout
}

type functionFrameLayout struct {
	returnSlot *FrameSlot
	paramSlots []FrameSlot
	localSlots []FrameSlot
	tempBase   int
	tempCount  int
	size       int
}

// maxTempSlots caps how many spill slots a single function's frame reserves,
// regardless of how deeply its expressions nest; deeper nesting just reuses
// the deepest slot (correct but suboptimal, since a Blend65 expression tree
// this deep is already unreadable source).
const maxTempSlots = 8

// estimateTempCount returns the number of 2-byte scratch slots fn's body
// needs for spilled intermediate results: the maximum compound-operand
// nesting depth across every expression in the body, capped at
// maxTempSlots.
func estimateTempCount(fn *ast.FunctionDecl) int {
	if fn.Body == nil {
		return 0
	}
	depth := maxStmtsDepth(fn.Body.Statements)
	if depth > maxTempSlots {
		depth = maxTempSlots
	}
	return depth
}

func maxStmtsDepth(stmts []ast.Statement) int {
	max := 0
	for _, s := range stmts {
		if d := maxStmtDepth(s); d > max {
			max = d
		}
	}
	return max
}

func maxStmtDepth(stmt ast.Statement) int {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		return maxExprDepth(s.Initializer)
	case *ast.BlockStmt:
		return maxStmtsDepth(s.Statements)
	case *ast.IfStmt:
		d := maxExprDepth(s.Condition)
		if t := maxStmtDepth(s.Then); t > d {
			d = t
		}
		if s.Else != nil {
			if e := maxStmtDepth(s.Else); e > d {
				d = e
			}
		}
		return d
	case *ast.WhileStmt:
		return maxOf(maxExprDepth(s.Condition), maxStmtDepth(s.Body))
	case *ast.ForStmt:
		d := maxStmtDepth(s.Body)
		if s.Init != nil {
			d = maxOf(d, maxStmtDepth(s.Init))
		}
		if s.Condition != nil {
			d = maxOf(d, maxExprDepth(s.Condition))
		}
		if s.Post != nil {
			d = maxOf(d, maxStmtDepth(s.Post))
		}
		return d
	case *ast.DoWhileStmt:
		return maxOf(maxExprDepth(s.Condition), maxStmtDepth(s.Body))
	case *ast.MatchStmt:
		d := maxExprDepth(s.Subject)
		for _, arm := range s.Cases {
			for _, v := range arm.Values {
				self := 0
				if !isSimpleOperand(v) {
					self = 1 // genBinaryLike spills a compound case value before evaluating Subject.
				}
				d = maxOf(d, self+maxOf(maxExprDepth(s.Subject), maxExprDepth(v)))
			}
			d = maxOf(d, maxStmtDepth(arm.Body))
		}
		if s.Default != nil {
			d = maxOf(d, maxStmtDepth(s.Default))
		}
		return d
	case *ast.ReturnStmt:
		return maxExprDepth(s.Value)
	case *ast.ExpressionStmt:
		return maxExprDepth(s.Expr)
	case *ast.AssignmentStmt:
		return maxOf(maxExprDepth(s.Target), maxExprDepth(s.Value))
	default:
		return 0
	}
}

// maxExprDepth approximates how many spill slots evaluating e could need:
// one per compound (non-leaf) operand nested inside a binary expression, and
// one per compound argument an intrinsic call holds until its CALL.
func maxExprDepth(e ast.Expression) int {
	switch v := e.(type) {
	case nil:
		return 0
	case *ast.BinaryExpr:
		l, r := maxExprDepth(v.Left), maxExprDepth(v.Right)
		self := 0
		if !isSimpleOperand(v.Right) {
			self = 1
		}
		return maxOf(self+maxOf(l, r), maxOf(l, r))
	case *ast.UnaryExpr:
		return maxExprDepth(v.Operand)
	case *ast.CallExpr:
		// genIntrinsicCall spills each compound argument of an intrinsic and
		// keeps it until the CALL; a user function's arguments are stored
		// straight into the callee's parameter slots.
		intrinsic := false
		if id, ok := v.Callee.(*ast.IdentifierExpr); ok && id.Symbol != nil {
			intrinsic = id.Symbol.Kind == ast.SymbolIntrinsic
		}
		d, held := 0, 0
		for _, a := range v.Args {
			d = maxOf(d, held+maxExprDepth(a))
			if intrinsic && !isSimpleOperand(a) {
				held++
				d = maxOf(d, held)
			}
		}
		return d
	case *ast.IndexExpr:
		return maxOf(maxExprDepth(v.Target), maxExprDepth(v.Index)+1)
	case *ast.MemberExpr:
		return maxExprDepth(v.Target)
	case *ast.LengthExpr:
		return maxExprDepth(v.Array)
	default:
		return 0
	}
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NewFrameAllocator returns an allocator carving frames out of t.FrameRegion
// using graph to determine which functions can safely share an address.
func NewFrameAllocator(t target.Target, graph *CallGraph) *FrameAllocator {
	return &FrameAllocator{
		target:  t,
		graph:   graph,
		diags:   diag.NewCollector(),
		layouts: make(map[*ast.Symbol]functionFrameLayout),
	}
}

// Diagnostics returns every diagnostic recorded so far (FrameOverflow
// errors).
func (a *FrameAllocator) Diagnostics() []diag.Diagnostic {
	return a.diags.All()
}

// AddFunction computes fn's slot layout (return/param/local) ahead of
// address assignment.
func (a *FrameAllocator) AddFunction(fn *ast.FunctionDecl) {
	layout := functionFrameLayout{}
	offset := 0

	if fn.ReturnType != nil && fn.ReturnType.Kind() != ast.TypeVoid {
		size := fn.ReturnType.Size()
		if size == 0 {
			size = 1
		}
		layout.returnSlot = &FrameSlot{Offset: offset, Size: size}
		offset += size
	}

	for _, p := range fn.Parameters {
		if p.Symbol == nil {
			continue
		}
		size := slotSize(p.Symbol)
		layout.paramSlots = append(layout.paramSlots, FrameSlot{Symbol: p.Symbol, Offset: offset, Size: size})
		offset += size
	}

	if fn.Body != nil {
		for _, sym := range collectLocals(fn.Body.Statements) {
			size := slotSize(sym)
			layout.localSlots = append(layout.localSlots, FrameSlot{Symbol: sym, Offset: offset, Size: size})
			offset += size
		}
	}

	layout.tempBase = offset
	layout.tempCount = estimateTempCount(fn)
	offset += layout.tempCount * 2

	layout.size = offset
	if layout.size == 0 {
		layout.size = 1 // every function gets at least a 1-byte frame footprint.
	}
	a.layouts[fn.Symbol] = layout
}

func slotSize(sym *ast.Symbol) int {
	if sym.Type != nil {
		if s := sym.Type.Size(); s > 0 {
			return s
		}
	}
	return 1
}

// collectLocals gathers every local VariableDecl reachable in stmts,
// including ones nested inside blocks/branches/loops. All of a function's
// locals share one static frame regardless of which block declares them;
// this is conservative (sibling blocks each get a distinct slot even when
// their lifetimes never overlap) but never incorrect, and keeps slot
// assignment independent of any liveness analysis this middle-end does not
// otherwise perform.
func collectLocals(stmts []ast.Statement) []*ast.Symbol {
	var out []*ast.Symbol
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.VariableDecl:
			if s.Symbol != nil {
				out = append(out, s.Symbol)
			}
		case *ast.BlockStmt:
			out = append(out, collectLocals(s.Statements)...)
		case *ast.IfStmt:
			out = append(out, collectLocals(asStatements(s.Then))...)
			if s.Else != nil {
				out = append(out, collectLocals(asStatements(s.Else))...)
			}
		case *ast.WhileStmt:
			out = append(out, collectLocals(asStatements(s.Body))...)
		case *ast.ForStmt:
			if s.Init != nil {
				out = append(out, collectLocals(asStatements(s.Init))...)
			}
			out = append(out, collectLocals(asStatements(s.Body))...)
		case *ast.DoWhileStmt:
			out = append(out, collectLocals(asStatements(s.Body))...)
		case *ast.MatchStmt:
			for _, arm := range s.Cases {
				out = append(out, collectLocals(asStatements(arm.Body))...)
			}
			if s.Default != nil {
				out = append(out, collectLocals(asStatements(s.Default))...)
			}
		}
	}
	return out
}

type frameGroup struct {
	members []*ast.Symbol
	size    int
}

// Finalize colors every added function into address-sharing groups and lays
// out base addresses across t.FrameRegion, recording FrameOverflow when the
// region is exhausted.
func (a *FrameAllocator) Finalize() *FrameMap {
	functions := make([]*ast.Symbol, 0, len(a.layouts))
	for sym := range a.layouts {
		functions = append(functions, sym)
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })

	reach := make(map[*ast.Symbol]map[*ast.Symbol]bool, len(functions))
	for _, f := range functions {
		reach[f] = reachableSet(a.graph, f)
	}

	var groups []*frameGroup
	groupOf := make(map[*ast.Symbol]*frameGroup)
	for _, f := range functions {
		size := a.layouts[f].size
		if a.graph.IsRecursive(f) {
			g := &frameGroup{members: []*ast.Symbol{f}, size: size}
			groups = append(groups, g)
			groupOf[f] = g
			continue
		}
		placed := false
		for _, g := range groups {
			if conflictsWithGroup(f, g, reach, a.graph) {
				continue
			}
			g.members = append(g.members, f)
			if size > g.size {
				g.size = size
			}
			groupOf[f] = g
			placed = true
			break
		}
		if !placed {
			g := &frameGroup{members: []*ast.Symbol{f}, size: size}
			groups = append(groups, g)
			groupOf[f] = g
		}
	}

	frames := make(map[*ast.Symbol]*Frame, len(functions))
	cursor := a.target.FrameRegion.Start
	budget := a.target.FrameRegion
	for _, g := range groups {
		if uint32(cursor)+uint32(g.size) > uint32(budget.End)+1 {
			for _, f := range g.members {
				a.diags.Add(diag.New(diag.CodeFrameOverflow, diag.Error, f.DeclLoc,
					"function %q does not fit in the remaining static frame region (needs %d bytes)", f.Name, g.size))
			}
			continue
		}
		base := cursor
		cursor += uint16(g.size)
		for _, f := range g.members {
			layout := a.layouts[f]
			shared := make([]*ast.Symbol, 0, len(g.members)-1)
			for _, other := range g.members {
				if other != f {
					shared = append(shared, other)
				}
			}
			frames[f] = &Frame{
				Function:    f,
				BaseAddress: base,
				Size:        g.size,
				ReturnSlot:  layout.returnSlot,
				ParamSlots:  layout.paramSlots,
				LocalSlots:  layout.localSlots,
				SharedWith:  shared,
				Recursive:   a.graph.IsRecursive(f),
				TempBase:    layout.tempBase,
				TempCount:   layout.tempCount,
			}
		}
	}
	return &FrameMap{Frames: frames}
}

// conflictsWithGroup reports whether f transitively calls, or is called by,
// any existing member of g (spec.md §4.13: "mutually exclusive" is
// pairwise, so every member must be checked, not just one representative).
func conflictsWithGroup(f *ast.Symbol, g *frameGroup, reach map[*ast.Symbol]map[*ast.Symbol]bool, graph *CallGraph) bool {
	for _, m := range g.members {
		if graph.IsRecursive(m) {
			return true
		}
		if reach[f][m] || reach[m][f] {
			return true
		}
	}
	return false
}

// reachableSet returns every function transitively callable from start
// (start itself excluded), via graph's call edges.
func reachableSet(graph *CallGraph, start *ast.Symbol) map[*ast.Symbol]bool {
	out := make(map[*ast.Symbol]bool)
	var dfs func(n *ast.Symbol)
	dfs = func(n *ast.Symbol) {
		for _, callee := range graph.Callees(n) {
			if out[callee] {
				continue
			}
			out[callee] = true
			dfs(callee)
		}
	}
	dfs(start)
	return out
}
