package ast

// MetaKey is the closed set of keys under which analysis passes annotate an
// AST node. Values are tagged by key, never by a free-form string, so a
// typo in a key name is a compile error rather than a silently-missing
// annotation (spec.md §9, "Metadata maps on AST nodes").
type MetaKey int

const (
	// MetaType holds the TypeInfo the type checker (C6) resolved for an
	// expression or declaration.
	MetaType MetaKey = iota
	// MetaAliasRegion holds the MemoryRegion the alias analyzer (C10)
	// classified a symbol's storage into.
	MetaAliasRegion
	// MetaAliasPointsTo holds the []string points-to set the alias analyzer
	// (C10) computed for a pointer-valued symbol.
	MetaAliasPointsTo
	// MetaSelfModifying marks a node that writes into the Code memory
	// region (C10).
	MetaSelfModifying
	// MetaHints holds the []Hint the 6502 hint analyzer (C11) attached to a
	// symbol or function declaration.
	MetaHints
	// MetaFrameSlot holds the frame slot address the frame allocator (C13)
	// assigned to a variable or parameter declaration.
	MetaFrameSlot
	// MetaLoop holds the *LoopInfo the loop analyzer (C9) built for a loop
	// statement.
	MetaLoop
)

// Metadata is a per-node annotation bag. The zero value is ready to use.
type Metadata struct {
	values map[MetaKey]interface{}
}

// Set stores value under key, overwriting any previous value.
func (m *Metadata) Set(key MetaKey, value interface{}) {
	if m.values == nil {
		m.values = make(map[MetaKey]interface{})
	}
	m.values[key] = value
}

// Get retrieves the value stored under key, if any.
func (m *Metadata) Get(key MetaKey) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Type returns the TypeInfo annotated on this node by the type checker, if
// any.
func (m *Metadata) Type() (TypeInfo, bool) {
	v, ok := m.Get(MetaType)
	if !ok {
		return nil, false
	}
	t, ok := v.(TypeInfo)
	return t, ok
}

// SetType annotates this node with the resolved TypeInfo.
func (m *Metadata) SetType(t TypeInfo) {
	m.Set(MetaType, t)
}
