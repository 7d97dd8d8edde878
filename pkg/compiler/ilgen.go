package compiler

import (
	"fmt"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/il"
)

// loopLabels is the {continueLabel, breakLabel} pair active for the
// innermost enclosing loop, pushed/popped as the generator descends into
// While/For/DoWhile bodies (spec.md §4.14).
type loopLabels struct {
	continueLabel string
	breakLabel    string
}

// ILGenerator lowers one function at a time into linear IL (spec.md §4.14,
// package il's data model). Compile constructs one generator per module,
// run sequentially, sharing the same *FrameMap and enum table; it is not
// safe for concurrent use by more than one goroutine against the same
// instance.
type ILGenerator struct {
	frames    *FrameMap
	enumTypes map[string]*ast.EnumType

	fn           *ast.FunctionDecl
	frame        *Frame
	slots        map[*ast.Symbol]FrameSlot
	blocks       []*il.BasicBlock
	current      *il.BasicBlock
	labelCounter int
	tempDepth    int
	loopStack    []loopLabels
	// loopInfo is the current function's ForStmt -> *LoopInfo table (C9),
	// consulted so an UnrollCandidate for-loop lowers to duplicated
	// straight-line code instead of a tested/branching loop (SPEC_FULL.md
	// §4's supplement: "the IL generator must actually consume
	// LoopInfo.isCountable/UnrollCandidate").
	loopInfo map[ast.Statement]*LoopInfo
	// allowUnroll gates whether loopInfo is actually consulted; Options
	// (SPEC_FULL.md §1.3) decides this per Compile call, so O0/optimizations-
	// disabled runs always get the conservative lowering even when C9 found
	// an UnrollCandidate.
	allowUnroll bool
}

// NewILGenerator returns a generator resolving calls and variable references
// against frames, and enum-member reads against enumTypes. allowUnroll comes
// from the active Options (O1+ with EnableOptimizations set).
func NewILGenerator(frames *FrameMap, enumTypes map[string]*ast.EnumType, allowUnroll bool) *ILGenerator {
	return &ILGenerator{frames: frames, enumTypes: enumTypes, allowUnroll: allowUnroll}
}

// GenerateFunction lowers fn's body into an il.Function. A missing/nil body
// (an intrinsic or extern declaration) lowers to an empty function: nothing
// for the emitter to place, since intrinsics are backend-provided. loopInfo
// is fn's Loop Analyzer (C9) output, keyed by loop AST node; pass nil if
// none was computed (every for-loop then lowers conservatively, never
// unrolled).
func (g *ILGenerator) GenerateFunction(fn *ast.FunctionDecl, loopInfo map[ast.Statement]*LoopInfo) *il.Function {
	g.fn = fn
	g.frame = g.frames.Frames[fn.Symbol]
	g.loopInfo = loopInfo
	g.slots = make(map[*ast.Symbol]FrameSlot)
	if g.frame != nil {
		for _, s := range g.frame.ParamSlots {
			g.slots[s.Symbol] = s
		}
		for _, s := range g.frame.LocalSlots {
			g.slots[s.Symbol] = s
		}
	}
	g.blocks = nil
	g.current = nil
	g.labelCounter = 0
	g.tempDepth = 0
	g.loopStack = nil

	g.startBlock("entry")
	if fn.Body != nil {
		g.genStatements(fn.Body.Statements)
	}
	if g.current != nil {
		g.emit(fn.Location(), il.OpReturn)
	}
	return &il.Function{Name: fn.Name, Blocks: g.blocks}
}

// GenerateModuleInit lowers every plain global initializer in globals into a
// single synthetic per-module init routine the emitter runs once before
// entry, since the IL Generator otherwise only ever lowers function bodies
// (spec.md §3's "IL Program" carries one Function list per Module; this adds
// the one the spec's global-initializer semantics need but never names
// explicitly).
func (g *ILGenerator) GenerateModuleInit(moduleName string, globals []*ast.VariableDecl) *il.Function {
	g.fn = nil
	g.frame = nil
	g.slots = nil
	g.blocks = nil
	g.current = nil
	g.labelCounter = 0
	g.tempDepth = 0
	g.loopStack = nil

	g.startBlock("entry")
	for _, d := range globals {
		if d.Initializer == nil || d.Symbol == nil {
			continue
		}
		g.genExpr(d.Initializer)
		g.emit(d.Location(), il.OpStoreVar, il.Addr(d.Symbol.MapAddress, d.Symbol))
	}
	if g.current != nil {
		g.emit(ast.SourceLocation{}, il.OpReturn)
	}
	return &il.Function{Name: moduleName + ".init", Blocks: g.blocks}
}

// ---------------------------------------------------------------------------
// Block/label plumbing
// ---------------------------------------------------------------------------

func (g *ILGenerator) startBlock(label string) *il.BasicBlock {
	b := &il.BasicBlock{Label: label}
	g.blocks = append(g.blocks, b)
	g.current = b
	return b
}

func (g *ILGenerator) freshLabel(prefix string) string {
	g.labelCounter++
	return fmt.Sprintf("%s_%s_%d", g.fn.Name, prefix, g.labelCounter)
}

func (g *ILGenerator) emit(loc ast.SourceLocation, op il.Opcode, operands ...il.Operand) {
	if g.current == nil {
		return // unreachable: control already left this block (e.g. after return/break).
	}
	g.current.Instructions = append(g.current.Instructions, il.Instruction{Op: op, Operands: operands, Loc: loc})
}

// allocTemp reserves the next spill slot in the current frame's temp region
// (spec.md §3: virtual registers resolve to frame slots). freeTemp gives it
// back once the sub-expression using it is folded into its parent.
func (g *ILGenerator) allocTemp() uint16 {
	depth := g.tempDepth
	if g.frame.TempCount > 0 && depth >= g.frame.TempCount {
		depth = g.frame.TempCount - 1 // deepest slot is reused past the static estimate; see estimateTempCount.
	}
	g.tempDepth++
	return g.frame.BaseAddress + uint16(g.frame.TempBase) + uint16(depth*2)
}

func (g *ILGenerator) freeTemp() {
	if g.tempDepth > 0 {
		g.tempDepth--
	}
}

// addrOfSymbol resolves sym to its concrete operand: a frame-relative
// address for a parameter/local, or its already-resolved global address
// (zero page, @map, or plain RAM — all three populate Symbol.MapAddress, per
// the Memory-Layout Builder).
func (g *ILGenerator) addrOfSymbol(sym *ast.Symbol) il.Operand {
	if slot, ok := g.slots[sym]; ok {
		return il.Addr(g.frame.BaseAddress+uint16(slot.Offset), sym)
	}
	return il.Addr(sym.MapAddress, sym)
}

// isSimpleOperand reports whether e can be used directly as an instruction
// operand without first being evaluated into the accumulator and spilled —
// a literal or a plain variable reference.
func isSimpleOperand(e ast.Expression) bool {
	switch e.(type) {
	case *ast.IntLiteralExpr, *ast.BoolLiteralExpr, *ast.IdentifierExpr:
		return true
	default:
		return false
	}
}

func (g *ILGenerator) operandFor(e ast.Expression) il.Operand {
	switch v := e.(type) {
	case *ast.IntLiteralExpr:
		return il.Imm(v.Value)
	case *ast.BoolLiteralExpr:
		if v.Value {
			return il.Imm(1)
		}
		return il.Imm(0)
	case *ast.IdentifierExpr:
		if v.Symbol != nil {
			return g.addrOfSymbol(v.Symbol)
		}
	}
	return il.Imm(0)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *ILGenerator) genStatements(stmts []ast.Statement) {
	for _, s := range stmts {
		if g.current == nil {
			break // rest of this block is unreachable (C7/diagnostics already flag it).
		}
		g.genStatement(s)
	}
}

func (g *ILGenerator) genStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		g.genLocalDecl(s)
	case *ast.BlockStmt:
		g.genStatements(s.Statements)
	case *ast.IfStmt:
		g.genIf(s)
	case *ast.WhileStmt:
		g.genWhile(s)
	case *ast.ForStmt:
		g.genFor(s)
	case *ast.DoWhileStmt:
		g.genDoWhile(s)
	case *ast.MatchStmt:
		g.genMatchStmt(s)
	case *ast.ReturnStmt:
		g.genReturn(s)
	case *ast.BreakStmt:
		g.genBreak(s)
	case *ast.ContinueStmt:
		g.genContinue(s)
	case *ast.ExpressionStmt:
		g.genExpr(s.Expr)
	case *ast.AssignmentStmt:
		g.genAssignment(s)
	}
}

func (g *ILGenerator) genLocalDecl(d *ast.VariableDecl) {
	if d.Initializer == nil || d.Symbol == nil {
		return
	}
	g.genExpr(d.Initializer)
	g.emit(d.Location(), il.OpStoreVar, g.addrOfSymbol(d.Symbol))
}

func (g *ILGenerator) genAssignment(s *ast.AssignmentStmt) {
	switch target := s.Target.(type) {
	case *ast.IdentifierExpr:
		g.genExpr(s.Value)
		if target.Symbol != nil {
			g.emit(s.Location(), il.OpStoreVar, g.addrOfSymbol(target.Symbol))
		}
	case *ast.IndexExpr:
		g.genIndexStore(target, s.Value)
	default:
		// MemberExpr is never an assignable target in Blend65 (no struct
		// type exists; it only denotes an enum-constant or module-qualified
		// read) so this is unreachable once the type checker has accepted
		// the program.
	}
}

func (g *ILGenerator) genReturn(s *ast.ReturnStmt) {
	if s.Value != nil {
		g.genExpr(s.Value)
		if g.frame != nil && g.frame.ReturnSlot != nil {
			g.emit(s.Location(), il.OpStoreVar, il.Addr(g.frame.BaseAddress+uint16(g.frame.ReturnSlot.Offset), nil))
		}
	}
	g.emit(s.Location(), il.OpReturn)
	g.current = nil
}

func (g *ILGenerator) genBreak(s *ast.BreakStmt) {
	if len(g.loopStack) == 0 {
		return // unreachable: C6 already reports ControlFlowOutsideLoop.
	}
	top := g.loopStack[len(g.loopStack)-1]
	g.emit(s.Location(), il.OpJump, il.Lbl(top.breakLabel))
	g.current = nil
}

func (g *ILGenerator) genContinue(s *ast.ContinueStmt) {
	if len(g.loopStack) == 0 {
		return // unreachable: C6 already reports ControlFlowOutsideLoop.
	}
	top := g.loopStack[len(g.loopStack)-1]
	g.emit(s.Location(), il.OpJump, il.Lbl(top.continueLabel))
	g.current = nil
}

// genIf lowers `if (cond) then [else else]`. JumpIfFalse's not-taken
// (true-condition) path falls through directly into the Then block, which
// must therefore be the literal next block appended (package il's
// fall-through convention).
func (g *ILGenerator) genIf(s *ast.IfStmt) {
	elseLabel := g.freshLabel("if_else")
	endLabel := g.freshLabel("if_end")

	g.genExpr(s.Condition)
	g.emit(s.Condition.Location(), il.OpJumpIfFalse, il.Lbl(elseLabel))

	g.startBlock(g.freshLabel("if_then"))
	g.genStatement(s.Then)
	thenFellThrough := g.current != nil
	if thenFellThrough {
		g.emit(s.Location(), il.OpJump, il.Lbl(endLabel))
	}

	g.startBlock(elseLabel)
	elseFellThrough := true
	if s.Else != nil {
		g.genStatement(s.Else)
		elseFellThrough = g.current != nil
		if elseFellThrough {
			g.emit(s.Location(), il.OpJump, il.Lbl(endLabel))
		}
	} else {
		g.emit(s.Location(), il.OpJump, il.Lbl(endLabel))
	}

	if thenFellThrough || elseFellThrough {
		g.startBlock(endLabel)
	} else {
		g.current = nil // both branches terminate (return/break/continue): code after is unreachable.
	}
}

// genWhile lowers `while (cond) body`. The header block always re-tests the
// condition; JumpIfFalse's taken target is the exit, its fall-through is the
// body.
func (g *ILGenerator) genWhile(s *ast.WhileStmt) {
	headerLabel := g.freshLabel("while_head")
	exitLabel := g.freshLabel("while_exit")

	g.emit(s.Location(), il.OpJump, il.Lbl(headerLabel))
	g.startBlock(headerLabel)
	g.genExpr(s.Condition)
	g.emit(s.Condition.Location(), il.OpJumpIfFalse, il.Lbl(exitLabel))

	g.startBlock(g.freshLabel("while_body"))
	g.loopStack = append(g.loopStack, loopLabels{continueLabel: headerLabel, breakLabel: exitLabel})
	g.genStatement(s.Body)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	if g.current != nil {
		g.emit(s.Location(), il.OpJump, il.Lbl(headerLabel))
	}

	g.startBlock(exitLabel)
}

// genFor lowers `for (init; cond; post) body`. A missing condition is an
// unconditional jump into the body (an infinite loop only `break` can
// leave).
func (g *ILGenerator) genFor(s *ast.ForStmt) {
	if info := g.loopInfo[s]; g.allowUnroll && info != nil && info.UnrollCandidate && info.IterationCount != nil {
		g.genForUnrolled(s, *info.IterationCount)
		return
	}

	if s.Init != nil {
		g.genStatement(s.Init)
	}
	if g.current == nil {
		return // init already terminated control flow; body is unreachable.
	}

	headerLabel := g.freshLabel("for_head")
	postLabel := g.freshLabel("for_post")
	exitLabel := g.freshLabel("for_exit")
	bodyLabel := g.freshLabel("for_body")

	g.emit(s.Location(), il.OpJump, il.Lbl(headerLabel))
	g.startBlock(headerLabel)
	if s.Condition != nil {
		g.genExpr(s.Condition)
		g.emit(s.Condition.Location(), il.OpJumpIfFalse, il.Lbl(exitLabel))
	} else {
		g.emit(s.Location(), il.OpJump, il.Lbl(bodyLabel))
	}

	g.startBlock(bodyLabel)
	g.loopStack = append(g.loopStack, loopLabels{continueLabel: postLabel, breakLabel: exitLabel})
	g.genStatement(s.Body)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	if g.current != nil {
		g.emit(s.Location(), il.OpJump, il.Lbl(postLabel))
	}

	g.startBlock(postLabel)
	if s.Post != nil {
		g.genStatement(s.Post)
	}
	if g.current != nil {
		g.emit(s.Location(), il.OpJump, il.Lbl(headerLabel))
	}

	g.startBlock(exitLabel)
}

// genForUnrolled lowers an UnrollCandidate for-loop (C9) to straight-line
// code: Init once, then count copies of Body+Post with no header test, no
// labels, and no loopStack entry. break/continue never appear inside an
// UnrollCandidate body — the analyzer only sets UnrollCandidate when
// HasBreakOrContinue is false — so there is nothing for a loopStack entry to
// target anyway (SPEC_FULL.md §4's supplement: consume LoopInfo instead of
// leaving it dead weight).
func (g *ILGenerator) genForUnrolled(s *ast.ForStmt, count int) {
	if s.Init != nil {
		g.genStatement(s.Init)
	}
	for i := 0; i < count && g.current != nil; i++ {
		g.genStatement(s.Body)
		if g.current != nil && s.Post != nil {
			g.genStatement(s.Post)
		}
	}
}

// genDoWhile lowers `do body while (cond);`. JumpIfTrue's taken target loops
// back into the body, its fall-through reaches exit.
func (g *ILGenerator) genDoWhile(s *ast.DoWhileStmt) {
	bodyLabel := g.freshLabel("do_body")
	condLabel := g.freshLabel("do_cond")
	exitLabel := g.freshLabel("do_exit")

	g.emit(s.Location(), il.OpJump, il.Lbl(bodyLabel))
	g.startBlock(bodyLabel)
	g.loopStack = append(g.loopStack, loopLabels{continueLabel: condLabel, breakLabel: exitLabel})
	g.genStatement(s.Body)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	if g.current != nil {
		g.emit(s.Location(), il.OpJump, il.Lbl(condLabel))
	}

	g.startBlock(condLabel)
	g.genExpr(s.Condition)
	g.emit(s.Condition.Location(), il.OpJumpIfTrue, il.Lbl(bodyLabel))

	g.startBlock(exitLabel)
}

// genMatchStmt lowers a MatchStmt by desugaring it into a chain of per-value
// equality tests against Subject, re-evaluating Subject fresh at every test
// rather than caching it in a temp — a deliberate simplification, since
// Blend65 match subjects are always side-effect-free reads (spec.md §4.6
// restricts MatchStmt subjects to numeric/enum-typed expressions).
func (g *ILGenerator) genMatchStmt(s *ast.MatchStmt) {
	endLabel := g.freshLabel("match_end")
	anyReachesEnd := false
	g.genMatchArm(s, 0, endLabel, &anyReachesEnd)
	if anyReachesEnd {
		g.startBlock(endLabel)
	} else {
		g.current = nil
	}
}

func (g *ILGenerator) genMatchArm(s *ast.MatchStmt, i int, endLabel string, anyReachesEnd *bool) {
	if g.current == nil {
		return
	}
	if i == len(s.Cases) {
		if s.Default != nil {
			g.genStatement(s.Default)
		}
		if g.current != nil {
			g.emit(s.Location(), il.OpJump, il.Lbl(endLabel))
			*anyReachesEnd = true
			g.current = nil
		}
		return
	}

	arm := s.Cases[i]
	bodyLabel := g.freshLabel("match_arm_body")
	nextLabel := g.freshLabel("match_next")
	for _, v := range arm.Values {
		g.genBinaryLike(il.OpCmpEq, s.Subject, v, v.Location())
		g.emit(v.Location(), il.OpJumpIfTrue, il.Lbl(bodyLabel))
		g.startBlock(g.freshLabel("match_arm_test"))
	}
	// The block appended next is this arm's body, so the miss path jumps
	// explicitly to the next arm's tests; an arm with no values always runs.
	if len(arm.Values) == 0 {
		g.emit(s.Location(), il.OpJump, il.Lbl(bodyLabel))
	} else {
		g.emit(s.Location(), il.OpJump, il.Lbl(nextLabel))
	}

	g.startBlock(bodyLabel)
	g.genStatement(arm.Body)
	if g.current != nil {
		g.emit(arm.Body.Location(), il.OpJump, il.Lbl(endLabel))
		*anyReachesEnd = true
	}

	g.startBlock(nextLabel)
	g.genMatchArm(s, i+1, endLabel, anyReachesEnd)
}

// ---------------------------------------------------------------------------
// Expressions — every genExpr leaves its result in the implicit accumulator.
// ---------------------------------------------------------------------------

func (g *ILGenerator) genExpr(e ast.Expression) {
	switch v := e.(type) {
	case *ast.IntLiteralExpr:
		g.emit(v.Location(), il.OpLoadConst, il.Imm(v.Value))
	case *ast.BoolLiteralExpr:
		val := 0
		if v.Value {
			val = 1
		}
		g.emit(v.Location(), il.OpLoadConst, il.Imm(val))
	case *ast.StringLiteralExpr:
		g.emit(v.Location(), il.OpLoadConst, il.Data(v.Value))
	case *ast.IdentifierExpr:
		g.genIdentifier(v)
	case *ast.BinaryExpr:
		g.genBinaryExpr(v)
	case *ast.UnaryExpr:
		g.genUnary(v)
	case *ast.CallExpr:
		g.genCall(v)
	case *ast.IndexExpr:
		g.genIndexLoad(v)
	case *ast.MemberExpr:
		g.genMember(v)
	case *ast.SizeofExpr:
		g.emit(v.Location(), il.OpLoadConst, il.Imm(v.TypeArg.Size()))
	case *ast.LengthExpr:
		g.genLength(v)
	}
}

func (g *ILGenerator) genIdentifier(e *ast.IdentifierExpr) {
	if e.Symbol == nil {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
		return
	}
	if e.Symbol.Kind == ast.SymbolEnumMember {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(enumMemberValue(g.enumTypes, e.Symbol.Name)))
		return
	}
	g.emit(e.Location(), il.OpLoadVar, g.addrOfSymbol(e.Symbol))
}

func enumMemberValue(enumTypes map[string]*ast.EnumType, member string) int {
	for _, t := range enumTypes {
		if v, ok := t.Members[member]; ok {
			return v
		}
	}
	return 0
}

func (g *ILGenerator) genUnary(e *ast.UnaryExpr) {
	switch e.Op {
	case "&":
		if id, ok := e.Operand.(*ast.IdentifierExpr); ok && id.Symbol != nil {
			op := g.addrOfSymbol(id.Symbol)
			g.emit(e.Location(), il.OpLoadConst, il.Imm(int(op.Address)))
			return
		}
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
	case "-":
		g.genExpr(e.Operand)
		g.emit(e.Location(), il.OpNeg)
	case "!":
		g.genExpr(e.Operand)
		g.emit(e.Location(), il.OpNot)
	case "~":
		g.genExpr(e.Operand)
		g.emit(e.Location(), il.OpXor, il.Imm(-1))
	default:
		g.genExpr(e.Operand)
	}
}

var binaryOpcodes = map[string]il.Opcode{
	"+":  il.OpAdd,
	"-":  il.OpSub,
	"*":  il.OpMul,
	"/":  il.OpDiv,
	"%":  il.OpMod,
	"&":  il.OpAnd,
	"|":  il.OpOr,
	"^":  il.OpXor,
	"<<": il.OpShl,
	">>": il.OpShr,
	"==": il.OpCmpEq,
	"!=": il.OpCmpNe,
	"<":  il.OpCmpLt,
	"<=": il.OpCmpLe,
	">":  il.OpCmpGt,
	">=": il.OpCmpGe,
}

func (g *ILGenerator) genBinaryExpr(e *ast.BinaryExpr) {
	switch e.Op {
	case "&&":
		g.genLogicalAnd(e)
		return
	case "||":
		g.genLogicalOr(e)
		return
	}
	op, ok := binaryOpcodes[e.Op]
	if !ok {
		g.genExpr(e.Left)
		return
	}
	g.genBinaryLike(op, e.Left, e.Right, e.Location())
}

// genBinaryLike emits `left OP right`, spilling right to a temp frame slot
// only when it is a compound sub-expression (one that itself needs the
// accumulator to evaluate); a literal or bare identifier is used directly as
// the instruction's second operand (spec.md §4.14's accumulator model never
// allows two in-flight accumulator values at once).
func (g *ILGenerator) genBinaryLike(op il.Opcode, left, right ast.Expression, loc ast.SourceLocation) {
	if isSimpleOperand(right) {
		g.genExpr(left)
		g.emit(loc, op, g.operandFor(right))
		return
	}
	g.genExpr(right)
	tmp := g.allocTemp()
	g.emit(right.Location(), il.OpStoreVar, il.Addr(tmp, nil))
	g.genExpr(left)
	g.emit(loc, op, il.Addr(tmp, nil))
	g.freeTemp()
}

// genLogicalAnd short-circuits: if Left is false the whole expression is
// false without evaluating Right.
func (g *ILGenerator) genLogicalAnd(e *ast.BinaryExpr) {
	falseLabel := g.freshLabel("and_false")
	endLabel := g.freshLabel("and_end")

	g.genExpr(e.Left)
	g.emit(e.Location(), il.OpJumpIfFalse, il.Lbl(falseLabel))

	g.startBlock(g.freshLabel("and_rhs"))
	g.genExpr(e.Right)
	g.emit(e.Location(), il.OpJump, il.Lbl(endLabel))

	g.startBlock(falseLabel)
	g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
	g.emit(e.Location(), il.OpJump, il.Lbl(endLabel))

	g.startBlock(endLabel)
}

// genLogicalOr short-circuits: if Left is true the whole expression is true
// without evaluating Right.
func (g *ILGenerator) genLogicalOr(e *ast.BinaryExpr) {
	trueLabel := g.freshLabel("or_true")
	endLabel := g.freshLabel("or_end")

	g.genExpr(e.Left)
	g.emit(e.Location(), il.OpJumpIfTrue, il.Lbl(trueLabel))

	g.startBlock(g.freshLabel("or_rhs"))
	g.genExpr(e.Right)
	g.emit(e.Location(), il.OpJump, il.Lbl(endLabel))

	g.startBlock(trueLabel)
	g.emit(e.Location(), il.OpLoadConst, il.Imm(1))
	g.emit(e.Location(), il.OpJump, il.Lbl(endLabel))

	g.startBlock(endLabel)
}

// genCall lowers a call. A user function's arguments are evaluated and
// stored into the callee's own parameter slots (known statically, since SFA
// gives every function a fixed frame), then CALL transfers control, then —
// if the callee returns a value — it is loaded back out of the callee's own
// ReturnSlot. There is no separate "caller-side" return slot; the callee
// always writes its result into its own static frame, which the caller
// statically knows how to read (spec.md §4.13/§4.14).
//
// An Intrinsic has no static frame of its own — it lowers straight to a
// backend-provided opcode — so its arguments travel as direct CALL operands
// instead (spec.md §3: "operands are constants, frame-slot addresses, block
// labels, or intrinsic identifiers"), and its result (if any) is left in the
// accumulator by convention, the same place CALL leaves it for the backend
// to consume.
func (g *ILGenerator) genCall(e *ast.CallExpr) {
	id, ok := e.Callee.(*ast.IdentifierExpr)
	if !ok || id.Symbol == nil {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
		return
	}
	if id.Symbol.Kind == ast.SymbolIntrinsic {
		g.genIntrinsicCall(id, e)
		return
	}
	calleeFrame := g.frames.Frames[id.Symbol]
	for i, arg := range e.Args {
		g.genExpr(arg)
		if calleeFrame != nil && i < len(calleeFrame.ParamSlots) {
			slot := calleeFrame.ParamSlots[i]
			g.emit(arg.Location(), il.OpStoreVar, il.Addr(calleeFrame.BaseAddress+uint16(slot.Offset), slot.Symbol))
		}
	}
	g.emit(e.Location(), il.OpCall, il.Lbl(id.Symbol.Name))
	if calleeFrame != nil && calleeFrame.ReturnSlot != nil {
		g.emit(e.Location(), il.OpLoadVar, il.Addr(calleeFrame.BaseAddress+uint16(calleeFrame.ReturnSlot.Offset), nil))
	}
}

func (g *ILGenerator) genIntrinsicCall(id *ast.IdentifierExpr, e *ast.CallExpr) {
	operands := make([]il.Operand, 0, len(e.Args)+1)
	operands = append(operands, il.Lbl(id.Symbol.Name))
	spilled := 0
	for _, arg := range e.Args {
		if isSimpleOperand(arg) {
			operands = append(operands, g.operandFor(arg))
			continue
		}
		g.genExpr(arg)
		tmp := g.allocTemp()
		g.emit(arg.Location(), il.OpStoreVar, il.Addr(tmp, nil))
		operands = append(operands, il.Addr(tmp, nil))
		spilled++
	}
	g.emit(e.Location(), il.OpCall, operands...)
	for i := 0; i < spilled; i++ {
		g.freeTemp()
	}
}

func elementSizeOf(target ast.Expression) int {
	t, ok := target.Meta().Type()
	if !ok {
		return 1
	}
	arr, ok := t.(*ast.ArrayType)
	if !ok {
		return 1
	}
	if s := arr.Element.Size(); s > 0 {
		return s
	}
	return 1
}

func (g *ILGenerator) genIndexLoad(e *ast.IndexExpr) {
	base := g.addrOf(e.Target)
	size := elementSizeOf(e.Target)
	g.genExpr(e.Index)
	g.emit(e.Location(), il.OpIndexLoad, base, il.Imm(size))
}

func (g *ILGenerator) genIndexStore(target *ast.IndexExpr, value ast.Expression) {
	base := g.addrOf(target.Target)
	size := elementSizeOf(target.Target)

	g.genExpr(value)
	tmp := g.allocTemp()
	g.emit(value.Location(), il.OpStoreVar, il.Addr(tmp, nil))

	g.genExpr(target.Index)
	g.emit(target.Location(), il.OpIndexStore, base, il.Imm(size), il.Addr(tmp, nil))
	g.freeTemp()
}

// addrOf resolves an array-bearing expression to its base-address operand.
// Only a plain identifier target is supported: Blend65 has no struct/record
// type, so `arr[i]` with arr itself an l-value is the only shape the type
// checker accepts for an indexable target (spec.md §4.6).
func (g *ILGenerator) addrOf(e ast.Expression) il.Operand {
	if id, ok := e.(*ast.IdentifierExpr); ok && id.Symbol != nil {
		return g.addrOfSymbol(id.Symbol)
	}
	return il.Imm(0)
}

// genMember lowers an enum-member read (`Color.Red`); this is the only
// MemberExpr shape the type checker (C6) resolves to anything other than
// Unknown (see checkMember), so any other shape is unreachable in a
// type-checked program.
func (g *ILGenerator) genMember(e *ast.MemberExpr) {
	id, ok := e.Target.(*ast.IdentifierExpr)
	if !ok {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
		return
	}
	if enumType, ok := g.enumTypes[id.Name]; ok {
		if v, ok := enumType.Members[e.Member]; ok {
			g.emit(e.Location(), il.OpLoadConst, il.Imm(v))
			return
		}
	}
	g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
}

// genLength folds `length(array)` to the array's compile-time-known element
// count; a dynamic-length array has none, so this path is only reachable for
// a fixed-length array, per spec.md §8's restriction on what `length` may be
// applied to.
func (g *ILGenerator) genLength(e *ast.LengthExpr) {
	t, ok := e.Array.Meta().Type()
	if !ok {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
		return
	}
	arr, ok := t.(*ast.ArrayType)
	if !ok || arr.Length == nil {
		g.emit(e.Location(), il.OpLoadConst, il.Imm(0))
		return
	}
	g.emit(e.Location(), il.OpLoadConst, il.Imm(*arr.Length))
}
