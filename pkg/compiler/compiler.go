package compiler

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/il"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

// ModuleResult is one module's worth of per-pass output (spec.md §6
// "Output", scoped down to a single module). Success is false whenever a
// pass for this module could not meaningfully continue (spec.md §7): the
// module's own diagnostics were still recorded, but its Scope/CFGs/LoopInfo
// may be nil or partial, and downstream passes skip it while siblings
// continue.
type ModuleResult struct {
	Name    string
	Program *ast.Program
	Scope   *Scope
	CFGs    map[*ast.Symbol]*CFG
	Loops   map[*ast.Symbol]map[ast.Statement]*LoopInfo
	Success bool
}

// Result is the middle-end's whole-compilation output (spec.md §6
// "Output"): the annotated AST lives on each ModuleResult.Program (node
// metadata populated in place by the passes that ran over it), alongside
// the symbol table, CFGs and LoopInfo. CallGraph, MemoryLayout, FrameMap
// and IL are inherently whole-program, so they are carried once at the top
// level rather than duplicated per module.
type Result struct {
	Modules      map[string]*ModuleResult
	ModuleOrder  []string
	CallGraph    *CallGraph
	MemoryLayout *GlobalMemoryLayout
	Frames       *FrameMap
	IL           *il.Program
	Diagnostics  []diag.Diagnostic
	Success      bool
}

// Compile runs every pass (C3 through C14) over programs in dependency-
// graph topological order (spec.md §5: "modules are processed in
// dependency-graph topological order, leaves first"), assembling the
// combined Result. log receives pass-orchestration events at Debug (module
// start/finish) and Info (whole-program summary); Warn/Error on log are
// reserved for conditions outside the diagnostic stream itself — a cyclic
// import graph, for instance, still reports a diag.Diagnostic, but log.Warn
// additionally flags it as an orchestration anomaly worth grepping logs for
// (SPEC_FULL.md §1.1).
func Compile(programs map[string]*ast.Program, t target.Target, opts Options, log *logrus.Entry) *Result {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	registry := NewModuleRegistry()
	for name, p := range programs {
		registry.Register(name, p)
	}

	globals := NewGlobalSymbolTable()
	registry.BindGlobalSymbolTable(globals)

	diags := diag.NewCollector()

	order, cycleDiags := topologicalOrder(programs)
	for _, d := range cycleDiags {
		diags.Add(d)
		log.Warn("import graph is cyclic; skipping the cycle-closing import edge when ordering modules")
	}

	result := &Result{
		Modules:     make(map[string]*ModuleResult),
		ModuleOrder: order,
	}

	// Pass 1 (C5): build each module's top-level scope and symbol table, in
	// topological order, and index its exports in the GlobalSymbolTable. The
	// Symbol-Table Builder does not read other modules' exports; imports are
	// bound in Pass 2.
	arenas := make(map[string]*ScopeArena)
	for _, name := range order {
		log.Debugf("module %q: building symbol table", name)
		program := programs[name]
		builder, root := NewSymbolTableBuilder(name)
		scope := builder.Build(program, root)
		diags.Merge(collectorOf(builder.Diagnostics()))
		arenas[name] = builder.Arena()
		registry.SetModuleScope(name, scope)

		success := !hasErrorIn(builder.Diagnostics())
		result.Modules[name] = &ModuleResult{Name: name, Program: program, Scope: scope, Success: success}
		for _, sym := range exportedSymbolsOf(scope) {
			globals.Register(name, sym)
		}
		log.Debugf("module %q: symbol table built, success=%v", name, success)
	}

	// Pass 2 (C3/C4): resolve imports against the registry now that every
	// module's exports are registered.
	resolver := NewImportResolver(registry)
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		for _, decl := range mr.Program.Declarations {
			imp, ok := decl.(*ast.ImportDecl)
			if !ok {
				continue
			}
			bound, importDiags := resolver.Resolve(imp)
			diags.Merge(collectorOf(importDiags))
			if hasErrorIn(importDiags) {
				continue
			}
			for _, sym := range bound {
				if err := mr.Scope.Declare(sym); err != nil {
					diags.Add(diag.New(diag.CodeImportConflict, diag.Error, imp.Location(), "%s", err.Error()))
				}
			}
		}
	}

	// Pass 3 (C6): type-check each successful module.
	typeCheckers := make(map[string]*TypeChecker)
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		checker := NewTypeChecker(arenas[name])
		checker.Check(mr.Program, mr.Scope)
		diags.Merge(collectorOf(checker.Diagnostics()))
		typeCheckers[name] = checker
		if hasErrorIn(checker.Diagnostics()) {
			mr.Success = false
		}
	}

	// Pass 4 (C7/C8/C9): per-function CFG, whole-program call graph, and
	// per-function loop analysis. The call graph spans every module, so it
	// is built across the whole successful set before any single-function
	// pass that depends on it (C13 needs CallGraph for frame coloring).
	callGraphBuilder := NewCallGraphBuilder()
	loopAnalyzer := NewLoopAnalyzer()
	var allFunctions []*ast.FunctionDecl
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		mr.CFGs = make(map[*ast.Symbol]*CFG)
		mr.Loops = make(map[*ast.Symbol]map[ast.Statement]*LoopInfo)
		for _, decl := range mr.Program.Declarations {
			fn, ok := decl.(*ast.FunctionDecl)
			if !ok {
				continue
			}
			allFunctions = append(allFunctions, fn)
			callGraphBuilder.AddFunction(fn)

			cfg, cfgDiags := NewCFGBuilder(fn).Build(fn)
			diags.Merge(collectorOf(cfgDiags))
			if fn.Symbol != nil {
				mr.CFGs[fn.Symbol] = cfg
				loops := loopAnalyzer.Analyze(fn)
				mr.Loops[fn.Symbol] = loops
				for node, info := range loops {
					node.Meta().Set(ast.MetaLoop, info)
				}
			}
		}
	}
	result.CallGraph = callGraphBuilder.Graph()
	diags.Merge(collectorOf(result.CallGraph.RecursionDiagnostics()))

	// Pass 5 (C10/C11): alias and 6502-hint analysis, whole-program so
	// zero-page recommendations rank across every function at once.
	aliasAnalyzer := NewAliasAnalyzer(t)
	hintAnalyzer := NewHintAnalyzer(t)
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		for _, decl := range mr.Program.Declarations {
			switch d := decl.(type) {
			case *ast.VariableDecl:
				aliasAnalyzer.AnalyzeGlobal(d)
			case *ast.FunctionDecl:
				aliasAnalyzer.AnalyzeFunction(d)
				hintAnalyzer.AnalyzeFunction(d)
			}
		}
	}
	aliasAnalyzer.Finalize()
	diags.Merge(collectorOf(aliasAnalyzer.Diagnostics()))
	attachHints(hintAnalyzer.BuildHints())

	// Pass 6 (C12): whole-program global memory layout.
	memoryBuilder := NewMemoryLayoutBuilder(t)
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		for _, decl := range mr.Program.Declarations {
			if d, ok := decl.(*ast.VariableDecl); ok {
				memoryBuilder.AddGlobal(d)
			}
		}
	}
	result.MemoryLayout = memoryBuilder.Finalize()
	diags.Merge(collectorOf(memoryBuilder.Diagnostics()))

	// Pass 7 (C13): static frame allocation, whole-program since frame
	// sharing colors across the entire call graph.
	frameAllocator := NewFrameAllocator(t, result.CallGraph)
	for _, fn := range allFunctions {
		frameAllocator.AddFunction(fn)
	}
	result.Frames = frameAllocator.Finalize()
	diags.Merge(collectorOf(frameAllocator.Diagnostics()))

	// Pass 8 (C14): IL generation, one generator per module so enum tables
	// and per-function LoopInfo stay scoped to the module being lowered.
	result.IL = &il.Program{SourceInfo: make(map[string]string)}
	for _, name := range order {
		mr := result.Modules[name]
		if !mr.Success {
			continue
		}
		checker := typeCheckers[name]
		var enumTypes map[string]*ast.EnumType
		if checker != nil {
			enumTypes = checker.EnumTypes()
		}
		gen := NewILGenerator(result.Frames, enumTypes, opts.unrollEnabled())

		ilModule := &il.Module{Name: name}
		var globals []*ast.VariableDecl
		for _, decl := range mr.Program.Declarations {
			switch d := decl.(type) {
			case *ast.FunctionDecl:
				ilModule.Functions = append(ilModule.Functions, gen.GenerateFunction(d, mr.Loops[d.Symbol]))
			case *ast.VariableDecl:
				if d.Storage == ast.StorageDefault {
					globals = append(globals, d)
				}
			}
		}
		if len(globals) > 0 {
			ilModule.Functions = append(ilModule.Functions, gen.GenerateModuleInit(name, globals))
		}
		result.IL.Modules = append(result.IL.Modules, ilModule)
		log.Debugf("module %q: IL generated, %d function(s)", name, len(ilModule.Functions))
	}
	for _, entry := range result.MemoryLayout.RAM {
		result.IL.GlobalData = append(result.IL.GlobalData, il.GlobalDataEntry{
			Name: entry.Symbol.Name, Address: entry.Address, Size: entry.Size,
		})
	}

	result.Diagnostics = diags.All()
	result.Success = !diags.HasErrors()
	log.Infof("compile finished: %d module(s), %d diagnostic(s), success=%v",
		len(order), len(result.Diagnostics), result.Success)
	return result
}

func hasErrorIn(ds []diag.Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == diag.Error {
			return true
		}
	}
	return false
}

func collectorOf(ds []diag.Diagnostic) *diag.Collector {
	c := diag.NewCollector()
	for _, d := range ds {
		c.Add(d)
	}
	return c
}

// attachHints groups hints by the symbol/function they target and annotates
// each one's Metadata (MetaHints), so the "annotated AST" output (spec.md
// §6) actually carries the 6502 Hint Analyzer's (C11) recommendations
// rather than only returning them as a detached slice.
func attachHints(hints []Hint) {
	bySymbol := make(map[*ast.Symbol][]Hint)
	for _, h := range hints {
		target := h.Symbol
		if target == nil {
			target = h.Function
		}
		if target == nil {
			continue
		}
		bySymbol[target] = append(bySymbol[target], h)
	}
	for sym, hs := range bySymbol {
		sym.Metadata.Set(ast.MetaHints, hs)
	}
}

func exportedSymbolsOf(scope *Scope) []*ast.Symbol {
	var out []*ast.Symbol
	for _, sym := range scope.Names {
		if sym.IsExported {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// topologicalOrder returns programs' module names ordered leaves-first by
// import dependency (spec.md §5). A cycle is reported via the returned
// diagnostics (CodeImportConflict, the closest taxonomy entry to "modules
// mutually depend on each other"); the DFS (over names in sorted order) skips
// the edge that closes the cycle and still appends every module once, so
// Compile processes every module.
func topologicalOrder(programs map[string]*ast.Program) ([]string, []diag.Diagnostic) {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string][]string, len(names))
	for _, name := range names {
		for _, decl := range programs[name].Declarations {
			if imp, ok := decl.(*ast.ImportDecl); ok {
				if _, known := programs[imp.ModuleName]; known {
					deps[name] = append(deps[name], imp.ModuleName)
				}
			}
		}
	}

	var order []string
	state := make(map[string]int) // 0=unvisited, 1=visiting, 2=done.
	var diags []diag.Diagnostic
	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case 2:
			return true
		case 1:
			return false // cycle: caller records a diagnostic and moves on.
		}
		state[name] = 1
		for _, dep := range deps[name] {
			if !visit(dep) {
				diags = append(diags, diag.New(diag.CodeImportConflict, diag.Error, ast.SourceLocation{},
					"module %q participates in a circular import involving %q", name, dep))
			}
		}
		state[name] = 2
		order = append(order, name)
		return true
	}
	for _, name := range names {
		visit(name)
	}
	return order, diags
}
