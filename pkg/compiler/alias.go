package compiler

import (
	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

// MemoryRegion classifies the address space a symbol's storage lives in
// (spec.md §4.10). Zero page is a 6502 architectural constant ($00-$FF on
// every 6502-based target); Hardware/ROM/Code boundaries are read from the
// Target descriptor rather than hard-coded, per the Code-region open
// question's resolution (DESIGN.md).
type MemoryRegion int

const (
	RegionUnknown MemoryRegion = iota
	RegionZeroPage
	RegionRAM
	RegionHardware
	RegionROM
	RegionCode
)

func (r MemoryRegion) String() string {
	switch r {
	case RegionZeroPage:
		return "zero-page"
	case RegionRAM:
		return "ram"
	case RegionHardware:
		return "hardware"
	case RegionROM:
		return "rom"
	case RegionCode:
		return "code"
	default:
		return "unknown"
	}
}

// ClassifyAddress returns the MemoryRegion containing addr for t.
func ClassifyAddress(addr uint16, t target.Target) MemoryRegion {
	if addr <= 0xFF {
		return RegionZeroPage
	}
	for _, r := range t.HardwareRanges {
		if r.Contains(addr) {
			return RegionHardware
		}
	}
	for _, r := range t.ROMRanges {
		if r.Contains(addr) {
			return RegionROM
		}
	}
	if t.CodeRange.Contains(addr) {
		return RegionCode
	}
	return RegionRAM
}

// AliasResult is the whole-program output of the Alias Analyzer.
type AliasResult struct {
	Regions  map[*ast.Symbol]MemoryRegion
	PointsTo map[*ast.Symbol]map[*ast.Symbol]bool
}

// NonAlias reports whether a and b are provably distinct locations: either
// different MemoryRegion, or both pinned to distinct fixed addresses
// (spec.md §4.10).
func (r *AliasResult) NonAlias(a, b *ast.Symbol) bool {
	if a == b {
		return false
	}
	if r.Regions[a] != r.Regions[b] {
		return true
	}
	if a.Storage == ast.StorageMapped && b.Storage == ast.StorageMapped {
		return a.MapAddress != b.MapAddress
	}
	return false
}

// AliasAnalyzer classifies every declared symbol's MemoryRegion and builds
// points-to sets via transitive closure over assignment and address-of
// (spec.md §4.10). One analyzer is shared across every module in a
// compilation so points-to edges across module boundaries still resolve.
type AliasAnalyzer struct {
	target target.Target
	diags  *diag.Collector

	regions map[*ast.Symbol]MemoryRegion
	edges   map[*ast.Symbol]map[*ast.Symbol]bool
}

// NewAliasAnalyzer returns an analyzer classifying addresses against t.
func NewAliasAnalyzer(t target.Target) *AliasAnalyzer {
	return &AliasAnalyzer{
		target:  t,
		diags:   diag.NewCollector(),
		regions: make(map[*ast.Symbol]MemoryRegion),
		edges:   make(map[*ast.Symbol]map[*ast.Symbol]bool),
	}
}

// Diagnostics returns every diagnostic recorded so far (SelfModifyingCode
// warnings).
func (a *AliasAnalyzer) Diagnostics() []diag.Diagnostic {
	return a.diags.All()
}

// ClassifyDecl computes and records sym's MemoryRegion from its storage
// class.
func (a *AliasAnalyzer) ClassifyDecl(sym *ast.Symbol) MemoryRegion {
	var region MemoryRegion
	switch sym.Storage {
	case ast.StorageMapped:
		region = ClassifyAddress(sym.MapAddress, a.target)
	case ast.StorageZeroPage:
		region = RegionZeroPage
	default:
		region = RegionRAM
	}
	a.regions[sym] = region
	sym.Metadata.Set(ast.MetaAliasRegion, region)
	return region
}

func (a *AliasAnalyzer) addEdge(from, to *ast.Symbol) {
	if a.edges[from] == nil {
		a.edges[from] = make(map[*ast.Symbol]bool)
	}
	a.edges[from][to] = true
}

// AnalyzeGlobal classifies d's symbol and records any points-to edge its
// initializer establishes.
func (a *AliasAnalyzer) AnalyzeGlobal(d *ast.VariableDecl) {
	if d.Symbol == nil {
		return
	}
	a.ClassifyDecl(d.Symbol)
	if d.Initializer != nil {
		a.recordPointsTo(d.Symbol, d.Initializer)
	}
	if d.Symbol.Storage == ast.StorageMapped && a.regions[d.Symbol] == RegionCode {
		a.diags.Add(diag.New(diag.CodeSelfModifyingCode, diag.Warning, d.Location(),
			"@map declaration %q maps into the code region", d.Name))
	}
}

// AnalyzeFunction classifies fn's parameters and locals, and walks its body
// recording points-to edges and SelfModifyingCode warnings.
func (a *AliasAnalyzer) AnalyzeFunction(fn *ast.FunctionDecl) {
	for _, p := range fn.Parameters {
		if p.Symbol != nil {
			a.ClassifyDecl(p.Symbol)
		}
	}
	if fn.Body != nil {
		a.walkStatements(fn.Body.Statements)
	}
}

func (a *AliasAnalyzer) walkStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		a.walkStatement(stmt)
	}
}

func (a *AliasAnalyzer) walkStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VariableDecl:
		a.ClassifyDecl(s.Symbol)
		if s.Initializer != nil {
			a.recordPointsTo(s.Symbol, s.Initializer)
		}
	case *ast.BlockStmt:
		a.walkStatements(s.Statements)
	case *ast.IfStmt:
		a.walkStatement(s.Then)
		if s.Else != nil {
			a.walkStatement(s.Else)
		}
	case *ast.WhileStmt:
		a.walkStatement(s.Body)
	case *ast.ForStmt:
		if s.Init != nil {
			a.walkStatement(s.Init)
		}
		if s.Post != nil {
			a.walkStatement(s.Post)
		}
		a.walkStatement(s.Body)
	case *ast.DoWhileStmt:
		a.walkStatement(s.Body)
	case *ast.MatchStmt:
		for _, arm := range s.Cases {
			a.walkStatement(arm.Body)
		}
		if s.Default != nil {
			a.walkStatement(s.Default)
		}
	case *ast.AssignmentStmt:
		if id, ok := s.Target.(*ast.IdentifierExpr); ok && id.Symbol != nil {
			a.recordPointsTo(id.Symbol, s.Value)
			if region, ok := a.regions[id.Symbol]; ok && region == RegionCode {
				a.diags.Add(diag.New(diag.CodeSelfModifyingCode, diag.Warning, s.Location(),
					"assignment to %q writes into the code region", id.Symbol.Name))
			}
		}
	}
}

// recordPointsTo adds a direct points-to edge from target to whatever value
// denotes: `&other` (address-of) or a plain reference to any other symbol
// (direct assignment) is recorded as an edge; the transitive closure is
// computed once in Finalize.
func (a *AliasAnalyzer) recordPointsTo(targetSym *ast.Symbol, value ast.Expression) {
	switch v := value.(type) {
	case *ast.UnaryExpr:
		if v.Op == "&" {
			if id, ok := v.Operand.(*ast.IdentifierExpr); ok && id.Symbol != nil {
				a.addEdge(targetSym, id.Symbol)
			}
		}
	case *ast.IdentifierExpr:
		if v.Symbol != nil && v.Symbol != targetSym {
			a.addEdge(targetSym, v.Symbol)
		}
	}
}

// Finalize computes the transitive closure of every points-to edge and
// returns the whole-program AliasResult.
func (a *AliasAnalyzer) Finalize() *AliasResult {
	closure := make(map[*ast.Symbol]map[*ast.Symbol]bool, len(a.edges))
	for sym := range a.edges {
		closure[sym] = closureOf(sym, a.edges, make(map[*ast.Symbol]bool))
		sym.Metadata.Set(ast.MetaAliasPointsTo, setKeys(closure[sym]))
	}
	return &AliasResult{Regions: a.regions, PointsTo: closure}
}

func closureOf(sym *ast.Symbol, edges map[*ast.Symbol]map[*ast.Symbol]bool, visiting map[*ast.Symbol]bool) map[*ast.Symbol]bool {
	out := make(map[*ast.Symbol]bool)
	if visiting[sym] {
		return out
	}
	visiting[sym] = true
	for direct := range edges[sym] {
		out[direct] = true
		for transitive := range closureOf(direct, edges, visiting) {
			out[transitive] = true
		}
	}
	return out
}

func setKeys(m map[*ast.Symbol]bool) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s.Name)
	}
	return out
}
