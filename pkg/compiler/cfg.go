package compiler

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

// CFGNodeKind discriminates the seven node shapes a function's control-flow
// graph is built from (spec.md §4.7).
type CFGNodeKind int

const (
	CFGEntry CFGNodeKind = iota
	CFGExit
	CFGStatement
	CFGBranch
	CFGMerge
	CFGLoopHeader
	CFGLoopExit
)

func (k CFGNodeKind) String() string {
	switch k {
	case CFGEntry:
		return "entry"
	case CFGExit:
		return "exit"
	case CFGStatement:
		return "statement"
	case CFGBranch:
		return "branch"
	case CFGMerge:
		return "merge"
	case CFGLoopHeader:
		return "loop-header"
	case CFGLoopExit:
		return "loop-exit"
	default:
		return "?"
	}
}

// CFGNode is one node of a function's control-flow graph. Stmt is the source
// statement that produced this node, or nil for the synthetic Entry/Exit/
// Merge/LoopExit sentinels; only nodes with a non-nil Stmt are candidates
// for an UnreachableCode diagnostic. Reachable is computed by Build's final
// BFS pass from Entry (spec.md §3, §8: "post-build, nodes with
// reachable=false are unreachable") and is the only place that fact is
// recorded, so a later pass consuming a CFG (an emitter, or another analysis
// over the per-function CFGs in Result) can query it per node instead of
// re-deriving it.
type CFGNode struct {
	ID           int
	Kind         CFGNodeKind
	Stmt         ast.Statement
	Successors   []int
	Predecessors []int
	Reachable    bool
}

// CFG is one function's control-flow graph (spec.md §4.7, §8: "exactly one
// Entry and one Exit").
type CFG struct {
	Function *ast.Symbol
	Nodes    []*CFGNode
	EntryID  int
	ExitID   int
}

func (g *CFG) node(id int) *CFGNode { return g.Nodes[id] }

type loopFrame struct {
	header int
	exit   int
}

// CFGBuilder builds one CFG per function, maintaining the insertion-point
// `current` invariant described in spec.md §4.7: rather than a separate
// "current == null means unreachable" check duplicating the final BFS pass,
// this builder relies on the BFS pass alone — a dead code path simply never
// gets a predecessor link back to a live node, so it is, by construction, a
// disconnected (or entry-unreachable) subgraph that the single post-build
// BFS walk reports exactly once per statement. This sidesteps needing the
// ad-hoc dedup spec.md §4.7 calls for without changing the observable
// result.
type CFGBuilder struct {
	cfg       *CFG
	loopStack []loopFrame
}

// NewCFGBuilder constructs a builder for fn.
func NewCFGBuilder(fn *ast.FunctionDecl) *CFGBuilder {
	cfg := &CFG{Function: fn.Symbol}
	return &CFGBuilder{cfg: cfg}
}

// Build runs the traversal described in spec.md §4.7 and returns the
// resulting CFG plus any UnreachableCode diagnostics.
func (b *CFGBuilder) Build(fn *ast.FunctionDecl) (*CFG, []diag.Diagnostic) {
	b.cfg.EntryID = b.newNode(CFGEntry, nil)
	b.cfg.ExitID = b.newNode(CFGExit, nil)

	current := b.cfg.EntryID
	if fn.Body != nil {
		for _, stmt := range fn.Body.Statements {
			current = b.visitStatement(current, stmt)
		}
	}
	b.link(current, b.cfg.ExitID)

	return b.cfg, b.unreachableDiagnostics()
}

func (b *CFGBuilder) newNode(kind CFGNodeKind, stmt ast.Statement) int {
	id := len(b.cfg.Nodes)
	b.cfg.Nodes = append(b.cfg.Nodes, &CFGNode{ID: id, Kind: kind, Stmt: stmt})
	return id
}

func (b *CFGBuilder) link(from, to int) {
	if from < 0 || to < 0 {
		return
	}
	b.cfg.Nodes[from].Successors = append(b.cfg.Nodes[from].Successors, to)
	b.cfg.Nodes[to].Predecessors = append(b.cfg.Nodes[to].Predecessors, from)
}

// visitStatement extends the graph from current with stmt and returns the
// new insertion point, or -1 if stmt unconditionally diverts control flow
// (return/break/continue, or a branch all of whose arms diverge).
func (b *CFGBuilder) visitStatement(current int, stmt ast.Statement) int {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		for _, st := range s.Statements {
			current = b.visitStatement(current, st)
		}
		return current

	case *ast.IfStmt:
		branch := b.newNode(CFGBranch, s)
		b.link(current, branch)
		thenEnd := b.visitStatement(branch, s.Then)
		elseEnd := branch
		if s.Else != nil {
			elseEnd = b.visitStatement(branch, s.Else)
		}
		if thenEnd < 0 && elseEnd < 0 {
			return -1
		}
		merge := b.newNode(CFGMerge, nil)
		b.link(thenEnd, merge)
		if s.Else != nil {
			b.link(elseEnd, merge)
		} else {
			b.link(branch, merge)
		}
		return merge

	case *ast.WhileStmt:
		header := b.newNode(CFGLoopHeader, s)
		b.link(current, header)
		exit := b.newNode(CFGLoopExit, nil)
		b.loopStack = append(b.loopStack, loopFrame{header: header, exit: exit})
		bodyEnd := b.visitStatement(header, s.Body)
		b.link(bodyEnd, header)
		b.link(header, exit)
		b.loopStack = b.loopStack[:len(b.loopStack)-1]
		return exit

	case *ast.ForStmt:
		if s.Init != nil {
			current = b.visitStatement(current, s.Init)
		}
		header := b.newNode(CFGLoopHeader, s)
		b.link(current, header)
		exit := b.newNode(CFGLoopExit, nil)
		b.loopStack = append(b.loopStack, loopFrame{header: header, exit: exit})
		bodyEnd := b.visitStatement(header, s.Body)
		if bodyEnd >= 0 && s.Post != nil {
			bodyEnd = b.visitStatement(bodyEnd, s.Post)
		}
		b.link(bodyEnd, header)
		b.link(header, exit)
		b.loopStack = b.loopStack[:len(b.loopStack)-1]
		return exit

	case *ast.DoWhileStmt:
		// Body runs first; the condition check sits after it and back-edges
		// into the body (spec.md §4.7). `bodyStart` is a transparent
		// pass-through marking where the back edge re-enters.
		bodyStart := b.newNode(CFGMerge, nil)
		b.link(current, bodyStart)
		header := b.newNode(CFGLoopHeader, s)
		exit := b.newNode(CFGLoopExit, nil)
		b.loopStack = append(b.loopStack, loopFrame{header: header, exit: exit})
		bodyEnd := b.visitStatement(bodyStart, s.Body)
		b.loopStack = b.loopStack[:len(b.loopStack)-1]
		b.link(bodyEnd, header)
		b.link(header, bodyStart)
		b.link(header, exit)
		return exit

	case *ast.MatchStmt:
		branch := b.newNode(CFGBranch, s)
		b.link(current, branch)
		var ends []int
		anyLive := false
		for _, arm := range s.Cases {
			end := b.visitStatement(branch, arm.Body)
			ends = append(ends, end)
			anyLive = anyLive || end >= 0
		}
		if s.Default != nil {
			end := b.visitStatement(branch, s.Default)
			ends = append(ends, end)
			anyLive = anyLive || end >= 0
		} else {
			ends = append(ends, branch) // no default: falling through is possible.
			anyLive = true
		}
		if !anyLive {
			return -1
		}
		merge := b.newNode(CFGMerge, nil)
		for _, e := range ends {
			b.link(e, merge)
		}
		return merge

	case *ast.ReturnStmt:
		node := b.newNode(CFGStatement, s)
		b.link(current, node)
		b.link(node, b.cfg.ExitID)
		return -1

	case *ast.BreakStmt:
		node := b.newNode(CFGStatement, s)
		b.link(current, node)
		if len(b.loopStack) > 0 {
			b.link(node, b.loopStack[len(b.loopStack)-1].exit)
		}
		return -1

	case *ast.ContinueStmt:
		node := b.newNode(CFGStatement, s)
		b.link(current, node)
		if len(b.loopStack) > 0 {
			b.link(node, b.loopStack[len(b.loopStack)-1].header)
		}
		return -1

	default:
		// VariableDecl, ExpressionStmt, AssignmentStmt: straight-line.
		node := b.newNode(CFGStatement, s)
		b.link(current, node)
		return node
	}
}

// unreachableDiagnostics BFS-walks from Entry, stamping each node's
// Reachable field from the same bitset pass, and reports one UnreachableCode
// warning per statement-bearing node not reached (spec.md §4.7, §8). The
// visited set is a bitset rather than a []bool slice, the same reachability
// representation Memory-Layout Builder (C12) and Hint Analyzer (C11) already
// use for their own address occupancy sets.
func (b *CFGBuilder) unreachableDiagnostics() []diag.Diagnostic {
	visited := bitset.New(uint(len(b.cfg.Nodes)))
	queue := []int{b.cfg.EntryID}
	visited.Set(uint(b.cfg.EntryID))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range b.cfg.Nodes[id].Successors {
			if !visited.Test(uint(succ)) {
				visited.Set(uint(succ))
				queue = append(queue, succ)
			}
		}
	}

	var diags []diag.Diagnostic
	for _, n := range b.cfg.Nodes {
		n.Reachable = visited.Test(uint(n.ID))
		if n.Stmt != nil && !n.Reachable {
			diags = append(diags, diag.New(diag.CodeUnreachableCode, diag.Warning, n.Stmt.Location(),
				"unreachable code"))
		}
	}
	return diags
}
