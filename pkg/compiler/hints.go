package compiler

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

// HintKind discriminates the four recommendation shapes the 6502 hint
// analyzer emits (spec.md §4.11).
type HintKind int

const (
	HintZeroPageCandidate HintKind = iota
	HintHotVariable
	HintInlineCandidate
	HintTailCallCandidate
)

func (k HintKind) String() string {
	switch k {
	case HintZeroPageCandidate:
		return "ZeroPageCandidate"
	case HintHotVariable:
		return "HotVariable"
	case HintInlineCandidate:
		return "InlineCandidate"
	case HintTailCallCandidate:
		return "TailCallCandidate"
	default:
		return "?"
	}
}

// Priority ranks a Hint's expected payoff.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "?"
	}
}

func priorityFor(score int) Priority {
	switch {
	case score >= 100:
		return PriorityCritical
	case score >= 50:
		return PriorityHigh
	case score >= 20:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Hint is one backend-facing recommendation (spec.md §4.11).
type Hint struct {
	Kind                 HintKind
	Symbol               *ast.Symbol // set for ZeroPageCandidate/HotVariable.
	Function             *ast.Symbol // set for InlineCandidate/TailCallCandidate.
	Score                int
	EstimatedByteSaving  int
	EstimatedCycleSaving int
	Priority             Priority
}

// accessCounter tracks one symbol's read/write activity, including a
// loop-weighted score that multiplies loop-body accesses by
// loopAccessMultiplier^depth (spec.md §4.11).
type accessCounter struct {
	Reads, Writes int
	LoopWeighted  int
}

// functionStats backs InlineCandidate/TailCallCandidate detection.
type functionStats struct {
	InstructionCount int
	ParameterCount   int
	MakesCalls       bool
	HasLoops         bool
	HasTailCall      bool
}

// HintAnalyzer maintains per-symbol access counters and per-function
// structural stats across every function analyzed, so cross-function
// ranking (e.g. the zero-page byte-budget cutoff) considers the whole
// program at once (spec.md §4.11).
type HintAnalyzer struct {
	LoopAccessMultiplier   int
	MinZeroPageAccessCount int
	MaxInlineInstructions  int
	// ZeroPageByteBudget is sourced from the Target's own zero-page window
	// rather than re-declaring spec.md §4.11's literal "128 bytes" default,
	// so this analyzer can never recommend more bytes than the
	// Memory-Layout Builder (C12) actually has available (SPEC_FULL.md §4).
	ZeroPageByteBudget int

	counters  map[*ast.Symbol]*accessCounter
	funcStats map[*ast.Symbol]*functionStats
	// occupancy has one bit per zero-page byte offset; bit i is set once
	// that offset has been tentatively handed to a ZeroPageCandidate hint,
	// so zeroPageAndHotVariableHints's greedy pack can ask the bitset
	// itself how much of ZeroPageByteBudget remains rather than keeping a
	// second, parallel int counter in sync with it by hand.
	occupancy *bitset.BitSet
}

// NewHintAnalyzer returns an analyzer whose zero-page byte budget is drawn
// from t, not a hard-coded constant.
func NewHintAnalyzer(t target.Target) *HintAnalyzer {
	return &HintAnalyzer{
		LoopAccessMultiplier:   10,
		MinZeroPageAccessCount: 3,
		MaxInlineInstructions:  20,
		ZeroPageByteBudget:     t.ZeroPageBudget(),
		counters:               make(map[*ast.Symbol]*accessCounter),
		funcStats:              make(map[*ast.Symbol]*functionStats),
		occupancy:              bitset.New(uint(t.ZeroPageBudget())),
	}
}

func (h *HintAnalyzer) counter(sym *ast.Symbol) *accessCounter {
	c, ok := h.counters[sym]
	if !ok {
		c = &accessCounter{}
		h.counters[sym] = c
	}
	return c
}

// AnalyzeFunction walks fn's body recording access counts (weighted by
// enclosing loop depth) and structural stats used for inline/tail-call
// detection.
func (h *HintAnalyzer) AnalyzeFunction(fn *ast.FunctionDecl) {
	stats := &functionStats{ParameterCount: len(fn.Parameters)}
	h.funcStats[fn.Symbol] = stats
	if fn.Body == nil {
		return
	}
	stats.InstructionCount = countInstructions(fn.Body.Statements)
	stats.HasLoops = anyLoop(fn.Body.Statements)
	stats.MakesCalls = anyCall(fn.Body.Statements)
	stats.HasTailCall = endsInTailCall(fn.Body.Statements)

	h.walkStatements(fn.Body.Statements, 0)
}

func (h *HintAnalyzer) walkStatements(stmts []ast.Statement, depth int) {
	for _, s := range stmts {
		h.walkStatement(s, depth)
	}
}

func (h *HintAnalyzer) walkStatement(stmt ast.Statement, depth int) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		if s.Initializer != nil {
			h.walkExpression(s.Initializer, depth)
		}
	case *ast.BlockStmt:
		h.walkStatements(s.Statements, depth)
	case *ast.IfStmt:
		h.walkExpression(s.Condition, depth)
		h.walkStatement(s.Then, depth)
		if s.Else != nil {
			h.walkStatement(s.Else, depth)
		}
	case *ast.WhileStmt:
		h.walkExpression(s.Condition, depth)
		h.walkStatement(s.Body, depth+1)
	case *ast.ForStmt:
		if s.Init != nil {
			h.walkStatement(s.Init, depth)
		}
		if s.Condition != nil {
			h.walkExpression(s.Condition, depth)
		}
		if s.Post != nil {
			h.walkStatement(s.Post, depth+1)
		}
		h.walkStatement(s.Body, depth+1)
	case *ast.DoWhileStmt:
		h.walkStatement(s.Body, depth+1)
		h.walkExpression(s.Condition, depth)
	case *ast.MatchStmt:
		h.walkExpression(s.Subject, depth)
		for _, arm := range s.Cases {
			for _, v := range arm.Values {
				h.walkExpression(v, depth)
			}
			h.walkStatement(arm.Body, depth)
		}
		if s.Default != nil {
			h.walkStatement(s.Default, depth)
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			h.walkExpression(s.Value, depth)
		}
	case *ast.ExpressionStmt:
		h.walkExpression(s.Expr, depth)
	case *ast.AssignmentStmt:
		if id, ok := s.Target.(*ast.IdentifierExpr); ok && id.Symbol != nil {
			h.record(id.Symbol, false, depth)
		} else {
			h.walkExpression(s.Target, depth)
		}
		h.walkExpression(s.Value, depth)
	}
}

func (h *HintAnalyzer) walkExpression(expr ast.Expression, depth int) {
	switch e := expr.(type) {
	case *ast.IdentifierExpr:
		if e.Symbol != nil {
			h.record(e.Symbol, true, depth)
		}
	case *ast.BinaryExpr:
		h.walkExpression(e.Left, depth)
		h.walkExpression(e.Right, depth)
	case *ast.UnaryExpr:
		h.walkExpression(e.Operand, depth)
	case *ast.CallExpr:
		h.walkExpression(e.Callee, depth)
		for _, a := range e.Args {
			h.walkExpression(a, depth)
		}
	case *ast.IndexExpr:
		h.walkExpression(e.Target, depth)
		h.walkExpression(e.Index, depth)
	case *ast.MemberExpr:
		h.walkExpression(e.Target, depth)
	case *ast.LengthExpr:
		h.walkExpression(e.Array, depth)
	}
}

func (h *HintAnalyzer) record(sym *ast.Symbol, read bool, depth int) {
	c := h.counter(sym)
	if read {
		c.Reads++
	} else {
		c.Writes++
	}
	weight := 1
	for i := 0; i < depth; i++ {
		weight *= h.LoopAccessMultiplier
	}
	c.LoopWeighted += weight
}

// ---------------------------------------------------------------------------
// Structural helpers for function stats
// ---------------------------------------------------------------------------

func countInstructions(stmts []ast.Statement) int {
	n := 0
	for _, s := range stmts {
		n++
		switch t := s.(type) {
		case *ast.BlockStmt:
			n += countInstructions(t.Statements)
		case *ast.IfStmt:
			n += countInstructions(asStatements(t.Then))
			if t.Else != nil {
				n += countInstructions(asStatements(t.Else))
			}
		case *ast.WhileStmt:
			n += countInstructions(asStatements(t.Body))
		case *ast.ForStmt:
			n += countInstructions(asStatements(t.Body))
		case *ast.DoWhileStmt:
			n += countInstructions(asStatements(t.Body))
		case *ast.MatchStmt:
			for _, arm := range t.Cases {
				n += countInstructions(asStatements(arm.Body))
			}
			if t.Default != nil {
				n += countInstructions(asStatements(t.Default))
			}
		}
	}
	return n
}

func anyLoop(stmts []ast.Statement) bool {
	for _, s := range stmts {
		if containsNestedLoop(s) {
			return true
		}
		switch s.(type) {
		case *ast.WhileStmt, *ast.ForStmt, *ast.DoWhileStmt:
			return true
		}
	}
	return false
}

func anyCall(stmts []ast.Statement) bool {
	found := false
	var walkExpr func(e ast.Expression)
	walkExpr = func(e ast.Expression) {
		if found || e == nil {
			return
		}
		switch t := e.(type) {
		case *ast.CallExpr:
			found = true
		case *ast.BinaryExpr:
			walkExpr(t.Left)
			walkExpr(t.Right)
		case *ast.UnaryExpr:
			walkExpr(t.Operand)
		case *ast.IndexExpr:
			walkExpr(t.Target)
			walkExpr(t.Index)
		case *ast.MemberExpr:
			walkExpr(t.Target)
		case *ast.LengthExpr:
			walkExpr(t.Array)
		}
	}
	var walk func(s ast.Statement)
	walk = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		switch t := s.(type) {
		case *ast.VariableDecl:
			walkExpr(t.Initializer)
		case *ast.BlockStmt:
			for _, st := range t.Statements {
				walk(st)
			}
		case *ast.IfStmt:
			walkExpr(t.Condition)
			walk(t.Then)
			walk(t.Else)
		case *ast.WhileStmt:
			walkExpr(t.Condition)
			walk(t.Body)
		case *ast.ForStmt:
			walk(t.Init)
			walkExpr(t.Condition)
			walk(t.Post)
			walk(t.Body)
		case *ast.DoWhileStmt:
			walk(t.Body)
			walkExpr(t.Condition)
		case *ast.MatchStmt:
			walkExpr(t.Subject)
			for _, arm := range t.Cases {
				walk(arm.Body)
			}
			walk(t.Default)
		case *ast.ReturnStmt:
			walkExpr(t.Value)
		case *ast.ExpressionStmt:
			walkExpr(t.Expr)
		case *ast.AssignmentStmt:
			walkExpr(t.Target)
			walkExpr(t.Value)
		}
	}
	for _, s := range stmts {
		walk(s)
	}
	return found
}

// endsInTailCall reports whether the last statement reached in straight-line
// order is `return f(...)`.
func endsInTailCall(stmts []ast.Statement) bool {
	if len(stmts) == 0 {
		return false
	}
	last := stmts[len(stmts)-1]
	if block, ok := last.(*ast.BlockStmt); ok {
		return endsInTailCall(block.Statements)
	}
	ret, ok := last.(*ast.ReturnStmt)
	if !ok || ret.Value == nil {
		return false
	}
	_, isCall := ret.Value.(*ast.CallExpr)
	return isCall
}

// ---------------------------------------------------------------------------
// Hint emission
// ---------------------------------------------------------------------------

// BuildHints ranks every analyzed symbol and function, producing the four
// hint kinds spec.md §4.11 describes.
func (h *HintAnalyzer) BuildHints() []Hint {
	var hints []Hint
	hints = append(hints, h.zeroPageAndHotVariableHints()...)
	hints = append(hints, h.functionHints()...)
	return hints
}

type scoredSymbol struct {
	sym   *ast.Symbol
	score int
	c     *accessCounter
}

func (h *HintAnalyzer) zeroPageAndHotVariableHints() []Hint {
	var candidates []scoredSymbol
	for sym, c := range h.counters {
		if sym.Storage != ast.StorageDefault {
			continue // already pinned to @zp or @map; not a candidate to move.
		}
		total := c.Reads + c.Writes
		if total < h.MinZeroPageAccessCount {
			continue
		}
		candidates = append(candidates, scoredSymbol{sym: sym, score: c.LoopWeighted, c: c})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].sym.Name < candidates[j].sym.Name
	})

	var hints []Hint
	for _, cand := range candidates {
		size := 1
		if cand.sym.Type != nil {
			size = cand.sym.Type.Size()
		}
		used := h.occupancy.Count()
		if used+uint(size) > uint(h.ZeroPageByteBudget) {
			continue
		}
		for off := used; off < used+uint(size); off++ {
			h.occupancy.Set(off)
		}
		hints = append(hints, Hint{
			Kind:                 HintZeroPageCandidate,
			Symbol:               cand.sym,
			Score:                cand.score,
			EstimatedByteSaving:  cand.c.Reads + cand.c.Writes,
			EstimatedCycleSaving: cand.c.Reads + cand.c.Writes,
			Priority:             priorityFor(cand.score),
		})
	}

	const topHotVariables = 3
	hotCount := 0
	for _, cand := range candidates {
		if cand.c.LoopWeighted <= cand.c.Reads+cand.c.Writes {
			continue // no loop-body weighting contributed; not "hot".
		}
		hints = append(hints, Hint{
			Kind:                 HintHotVariable,
			Symbol:               cand.sym,
			Score:                cand.c.LoopWeighted,
			EstimatedByteSaving:  0,
			EstimatedCycleSaving: cand.c.LoopWeighted,
			Priority:             priorityFor(cand.c.LoopWeighted),
		})
		hotCount++
		if hotCount >= topHotVariables {
			break
		}
	}
	return hints
}

func (h *HintAnalyzer) functionHints() []Hint {
	var hints []Hint
	for fn, stats := range h.funcStats {
		if stats.InstructionCount <= h.MaxInlineInstructions && stats.ParameterCount < 6 &&
			!stats.MakesCalls && !stats.HasLoops {
			score := h.MaxInlineInstructions - stats.InstructionCount
			hints = append(hints, Hint{
				Kind:                 HintInlineCandidate,
				Function:             fn,
				Score:                score,
				EstimatedByteSaving:  3, // approximate cost of the call/return sequence avoided.
				EstimatedCycleSaving: 12,
				Priority:             priorityFor(score * 5),
			})
		}
		if stats.HasTailCall {
			hints = append(hints, Hint{
				Kind:                 HintTailCallCandidate,
				Function:             fn,
				Score:                1,
				EstimatedByteSaving:  0,
				EstimatedCycleSaving: 6, // approximate cost of the elided return-then-call round trip.
				Priority:             PriorityMedium,
			})
		}
	}
	sort.Slice(hints, func(i, j int) bool {
		if hints[i].Kind != hints[j].Kind {
			return hints[i].Kind < hints[j].Kind
		}
		name := func(h Hint) string {
			if h.Function != nil {
				return h.Function.Name
			}
			return ""
		}
		return name(hints[i]) < name(hints[j])
	})
	return hints
}
