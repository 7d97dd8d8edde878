package compiler

import (
	"sort"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

// ModuleRegistry tracks every parsed module's Program and, once the
// Symbol-Table Builder (C5) has run, each module's top-level scope (spec.md
// §4.3 "Registry maps module name -> parsed Program"). It also caches each
// module's export map on first use, invalidated by Reset, per the spec's
// literal requirement that this caching behavior be a real operation
// (SPEC_FULL.md §4).
type ModuleRegistry struct {
	order   []string
	modules map[string]*ast.Program
	scopes  map[string]*Scope
	exports map[string]map[string]*ast.Symbol // cached; nil entry means "not yet built".
	// globals is the GlobalSymbolTable Reset also purges, if one was bound
	// via BindGlobalSymbolTable. A module's cached export map is only ever
	// this registry's own view; the cross-module index (C4) is a second
	// copy of the same facts that Reset must keep in sync with, per
	// SPEC_FULL.md §4.
	globals *GlobalSymbolTable
}

// NewModuleRegistry returns an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[string]*ast.Program),
		scopes:  make(map[string]*Scope),
		exports: make(map[string]map[string]*ast.Symbol),
	}
}

// BindGlobalSymbolTable links table so Reset/Register also purge name's
// entries from it. Optional: a registry used only up through C5 (before a
// GlobalSymbolTable exists yet) never calls this.
func (r *ModuleRegistry) BindGlobalSymbolTable(table *GlobalSymbolTable) {
	r.globals = table
}

// Register records program under its module name. Re-registering a name
// replaces the previous Program and implicitly Resets any cached state.
func (r *ModuleRegistry) Register(name string, program *ast.Program) {
	if _, exists := r.modules[name]; !exists {
		r.order = append(r.order, name)
	}
	r.modules[name] = program
	delete(r.scopes, name)
	r.Reset(name)
}

// SetModuleScope records the top-level scope the Symbol-Table Builder (C5)
// produced for name, used by import resolution to look up exported
// symbols.
func (r *ModuleRegistry) SetModuleScope(name string, scope *Scope) {
	r.scopes[name] = scope
	delete(r.exports, name) // a fresh scope invalidates any cached export map.
}

// Get returns the Program registered under name, if any.
func (r *ModuleRegistry) Get(name string) (*ast.Program, bool) {
	p, ok := r.modules[name]
	return p, ok
}

// Names returns every registered module name, in registration order.
func (r *ModuleRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Reset invalidates name's cached export map, forcing it to be rebuilt on
// next use (spec.md §4.3 "invalidates on explicit reset"), and, if a
// GlobalSymbolTable was bound via BindGlobalSymbolTable, also purges every
// entry that table indexed under name — otherwise a recompiled module's
// stale symbols would still satisfy cross-module lookups after Reset
// (SPEC_FULL.md §4).
func (r *ModuleRegistry) Reset(name string) {
	delete(r.exports, name)
	if r.globals != nil {
		r.globals.RemoveModule(name)
	}
}

// exportsOf returns the cached (building it on first use) map of exported
// symbol name -> Symbol for the given module. The second return is false if
// the module is unknown or has no scope yet.
func (r *ModuleRegistry) exportsOf(name string) (map[string]*ast.Symbol, bool) {
	if cached, ok := r.exports[name]; ok {
		return cached, true
	}
	scope, ok := r.scopes[name]
	if !ok {
		return nil, false
	}
	exported := make(map[string]*ast.Symbol)
	for symName, sym := range scope.Names {
		if sym.IsExported {
			exported[symName] = sym
		}
	}
	r.exports[name] = exported
	return exported, true
}

// ---------------------------------------------------------------------------
// Import Resolver (spec.md §4.3)
// ---------------------------------------------------------------------------

// ImportResolver validates import declarations against the ModuleRegistry's
// recorded exports.
type ImportResolver struct {
	registry *ModuleRegistry
}

// NewImportResolver constructs a resolver backed by registry.
func NewImportResolver(registry *ModuleRegistry) *ImportResolver {
	return &ImportResolver{registry: registry}
}

// Resolve validates imp and returns the set of symbols it binds (name ->
// Symbol, using imp's local aliasing convention of "imported under its own
// original name"), along with any diagnostics. A non-empty diagnostics
// slice containing an Error means no bindings should be trusted.
func (r *ImportResolver) Resolve(imp *ast.ImportDecl) (map[string]*ast.Symbol, []diag.Diagnostic) {
	var diags []diag.Diagnostic

	if _, ok := r.registry.Get(imp.ModuleName); !ok {
		diags = append(diags, diag.New(diag.CodeModuleNotFound, diag.Error, imp.Location(),
			"module %q not found", imp.ModuleName))
		return nil, diags
	}

	exports, ok := r.registry.exportsOf(imp.ModuleName)
	if !ok {
		diags = append(diags, diag.New(diag.CodeModuleNotFound, diag.Error, imp.Location(),
			"module %q has not been symbol-table built yet", imp.ModuleName))
		return nil, diags
	}

	bound := make(map[string]*ast.Symbol)

	if imp.Wildcard {
		if len(exports) == 0 {
			diags = append(diags, diag.New(diag.CodeNoExports, diag.Warning, imp.Location(),
				"module %q exports no symbols", imp.ModuleName))
			return bound, diags
		}
		for name, sym := range exports {
			bound[name] = r.importedSymbol(imp.ModuleName, name, sym)
		}
		return bound, diags
	}

	scope, hasScope := r.registry.scopes[imp.ModuleName]
	for _, name := range imp.Names {
		sym, exported := exports[name]
		if exported {
			bound[name] = r.importedSymbol(imp.ModuleName, name, sym)
			continue
		}
		// Not exported: distinguish "doesn't exist at all" from "exists but
		// private" for a more precise diagnostic.
		if hasScope {
			if _, declared := scope.LookupLocal(name); declared {
				diags = append(diags, diag.New(diag.CodeSymbolNotExported, diag.Error, imp.Location(),
					"symbol %q in module %q is not exported", name, imp.ModuleName))
				continue
			}
		}
		diags = append(diags, diag.New(diag.CodeSymbolNotFound, diag.Error, imp.Location(),
			"symbol %q not found in module %q", name, imp.ModuleName))
	}
	return bound, diags
}

// importedSymbol constructs the ImportedSymbol binding seen by the
// importing module (spec.md §4.5: "Imports produce ImportedSymbol entries
// with sourceModule+originalName set").
func (r *ImportResolver) importedSymbol(moduleName, name string, original *ast.Symbol) *ast.Symbol {
	return &ast.Symbol{
		Name:         name,
		Kind:         ast.SymbolImported,
		Type:         original.Type,
		DeclLoc:      original.DeclLoc,
		IsExported:   false,
		IsConst:      original.IsConst,
		SourceModule: moduleName,
		OriginalName: original.Name,
		Signature:    original.Signature,
	}
}

// ---------------------------------------------------------------------------
// Global Symbol Table (spec.md §4.4)
// ---------------------------------------------------------------------------

// SimpleLookupResult is the outcome of a simple-name lookup in the
// GlobalSymbolTable: either a unique symbol, or an ambiguous set of
// candidates the caller must disambiguate via a qualified reference.
type SimpleLookupResult struct {
	Symbol     *ast.Symbol
	Ambiguous  bool
	Candidates []*ast.Symbol
}

// GlobalSymbolTable is the cross-module exported-symbol index (spec.md
// §4.4): three indices over every exported symbol in the compilation.
type GlobalSymbolTable struct {
	byQualified map[string]*ast.Symbol
	bySimple    map[string][]*ast.Symbol
	byModule    map[string][]*ast.Symbol
}

// NewGlobalSymbolTable returns an empty table.
func NewGlobalSymbolTable() *GlobalSymbolTable {
	return &GlobalSymbolTable{
		byQualified: make(map[string]*ast.Symbol),
		bySimple:    make(map[string][]*ast.Symbol),
		byModule:    make(map[string][]*ast.Symbol),
	}
}

func qualifiedKey(module, name string) string { return module + "." + name }

// Register indexes sym (declared in moduleName) into all three indices.
// Only exported symbols should be registered here; the caller is
// responsible for that filtering (spec.md §4.4 describes this as a "cross-
// module exported-symbol index").
func (g *GlobalSymbolTable) Register(moduleName string, sym *ast.Symbol) {
	g.byQualified[qualifiedKey(moduleName, sym.Name)] = sym
	g.bySimple[sym.Name] = append(g.bySimple[sym.Name], sym)
	g.byModule[moduleName] = append(g.byModule[moduleName], sym)
}

// LookupQualified returns the symbol named name exported from moduleName.
func (g *GlobalSymbolTable) LookupQualified(moduleName, name string) (*ast.Symbol, bool) {
	sym, ok := g.byQualified[qualifiedKey(moduleName, name)]
	return sym, ok
}

// LookupSimple looks up name across every module. If more than one module
// exports a symbol with that name, the result is marked Ambiguous and lists
// every candidate; the caller (typically the type checker) must require a
// qualified reference in that case.
func (g *GlobalSymbolTable) LookupSimple(name string) SimpleLookupResult {
	candidates := g.bySimple[name]
	switch len(candidates) {
	case 0:
		return SimpleLookupResult{}
	case 1:
		return SimpleLookupResult{Symbol: candidates[0]}
	default:
		out := make([]*ast.Symbol, len(candidates))
		copy(out, candidates)
		return SimpleLookupResult{Ambiguous: true, Candidates: out}
	}
}

// ByModule returns every exported symbol registered under moduleName, in
// registration order.
func (g *GlobalSymbolTable) ByModule(moduleName string) []*ast.Symbol {
	out := make([]*ast.Symbol, len(g.byModule[moduleName]))
	copy(out, g.byModule[moduleName])
	return out
}

// RemoveModule purges every symbol registered under moduleName from all
// three indices, so a stale entry can never satisfy a lookup after the
// owning ModuleRegistry entry is Reset (SPEC_FULL.md §4). bySimple entries
// contributed by other modules for the same simple name are left alone.
func (g *GlobalSymbolTable) RemoveModule(moduleName string) {
	stale := g.byModule[moduleName]
	delete(g.byModule, moduleName)
	for _, sym := range stale {
		delete(g.byQualified, qualifiedKey(moduleName, sym.Name))
		candidates := g.bySimple[sym.Name]
		kept := candidates[:0]
		for _, c := range candidates {
			if c != sym {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(g.bySimple, sym.Name)
		} else {
			g.bySimple[sym.Name] = kept
		}
	}
}

// Modules returns every module name that has registered at least one
// symbol, sorted for deterministic iteration (spec.md §4.12's determinism
// requirement: "ordering (module name, then declaration order) is stable").
func (g *GlobalSymbolTable) Modules() []string {
	out := make([]string, 0, len(g.byModule))
	for name := range g.byModule {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
