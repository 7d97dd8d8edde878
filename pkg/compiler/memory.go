package compiler

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

// ZeroPageEntry is one `@zp` global's assigned byte range (spec.md §4.12).
type ZeroPageEntry struct {
	Symbol  *ast.Symbol
	Address uint16
	Size    int
}

// MapEntry is one `@map` global's fixed address range (spec.md §4.12).
type MapEntry struct {
	Symbol  *ast.Symbol
	Address uint16
	Size    int
}

// RAMEntry is one plain (unpinned) global's address in the generic RAM data
// region — spec.md §4.12's "ram"/"data" storage classes, which are summed
// for statistics rather than overlap-checked like zp/@map, since nothing
// else contends for this region. This also backs the IL Program's
// `globalData` field (spec.md §3 "IL Program"): every global reference the
// generator lowers has a concrete address by construction, never a deferred
// symbol.
type RAMEntry struct {
	Symbol  *ast.Symbol
	Address uint16
	Size    int
}

func (e MapEntry) end() uint16      { return e.Address + uint16(e.Size) - 1 }
func (e ZeroPageEntry) end() uint16 { return e.Address + uint16(e.Size) - 1 }

// GlobalMemoryLayout is the whole-program output of the Memory-Layout
// Builder (spec.md §4.12, §6 "Output").
type GlobalMemoryLayout struct {
	ZeroPage []ZeroPageEntry
	Mapped   []MapEntry
	RAM      []RAMEntry
	// ZeroPageBytesUsed / ZeroPageBytesFree summarize allocator usage against
	// the target's ZeroPageWindow.
	ZeroPageBytesUsed int
	ZeroPageBytesFree int
	// RAMBytesUsed is the total size of every plain global (spec.md §4.12
	// step 3: "Sum ram and data storage for statistics").
	RAMBytesUsed int
	ModuleCount  int
}

// MemoryLayoutBuilder assigns `@zp` globals packed bytes in a target's zero
// page window and verifies `@map` globals don't collide with each other or
// with the zero-page allocation (spec.md §4.12).
type MemoryLayoutBuilder struct {
	target target.Target
	diags  *diag.Collector

	zpCandidates []*ast.VariableDecl
	mapped       []*ast.VariableDecl
	ramGlobals   []*ast.VariableDecl
	modules      map[string]bool

	// occupancy records zero-page bytes already handed out, indexed relative
	// to ZeroPageWindow.Start. Overflow is decided by Finalize's running
	// cursor and overlaps by range comparisons, not by this bitset.
	occupancy *bitset.BitSet
}

// NewMemoryLayoutBuilder returns a builder allocating against t's zero-page
// window.
func NewMemoryLayoutBuilder(t target.Target) *MemoryLayoutBuilder {
	return &MemoryLayoutBuilder{
		target:    t,
		diags:     diag.NewCollector(),
		occupancy: bitset.New(uint(t.ZeroPageBudget())),
		modules:   make(map[string]bool),
	}
}

// Diagnostics returns every diagnostic recorded so far.
func (m *MemoryLayoutBuilder) Diagnostics() []diag.Diagnostic {
	return m.diags.All()
}

// AddGlobal registers a module-scope variable declaration: `@zp` and `@map`
// globals get address-checked allocation, plain globals are queued for the
// generic RAM data region.
func (m *MemoryLayoutBuilder) AddGlobal(d *ast.VariableDecl) {
	if d.Symbol == nil {
		return
	}
	m.modules[d.Symbol.SourceModule] = true
	switch d.Symbol.Storage {
	case ast.StorageZeroPage:
		m.zpCandidates = append(m.zpCandidates, d)
	case ast.StorageMapped:
		m.mapped = append(m.mapped, d)
	default:
		m.ramGlobals = append(m.ramGlobals, d)
	}
}

// Finalize assigns zero-page addresses and checks `@map` overlaps,
// returning the whole-program layout and recording diagnostics for any
// overflow/overlap found. Allocation order is deterministic: descending by
// size, with module name then declaration order breaking ties (spec.md
// §4.12).
func (m *MemoryLayoutBuilder) Finalize() *GlobalMemoryLayout {
	layout := &GlobalMemoryLayout{}

	sort.SliceStable(m.zpCandidates, func(i, j int) bool {
		si, sj := zpSize(m.zpCandidates[i]), zpSize(m.zpCandidates[j])
		if si != sj {
			return si > sj
		}
		return declOrderKey(m.zpCandidates[i]) < declOrderKey(m.zpCandidates[j])
	})

	base := m.target.ZeroPageWindow.Start
	budget := m.target.ZeroPageBudget()
	cursor := 0
	for _, d := range m.zpCandidates {
		size := zpSize(d)
		if cursor+size > budget {
			m.diags.Add(diag.New(diag.CodeZpOverflow, diag.Error, d.Location(),
				"zero-page allocation for %q would exceed the %d-byte zero-page window", d.Name, budget))
			continue
		}
		addr := base + uint16(cursor)
		for i := 0; i < size; i++ {
			m.occupancy.Set(uint(cursor + i))
		}
		cursor += size
		d.Symbol.Storage = ast.StorageZeroPage
		d.Symbol.MapAddress = addr
		layout.ZeroPage = append(layout.ZeroPage, ZeroPageEntry{Symbol: d.Symbol, Address: addr, Size: size})
	}
	layout.ZeroPageBytesUsed = cursor
	layout.ZeroPageBytesFree = budget - cursor

	sort.SliceStable(m.mapped, func(i, j int) bool {
		return declOrderKey(m.mapped[i]) < declOrderKey(m.mapped[j])
	})
	for _, d := range m.mapped {
		size := 1
		if d.Symbol.Type != nil {
			size = d.Symbol.Type.Size()
		}
		entry := MapEntry{Symbol: d.Symbol, Address: d.MapAddress, Size: size}
		for _, other := range layout.Mapped {
			if rangesOverlap(entry.Address, entry.end(), other.Address, other.end()) {
				m.diags.Add(diag.New(diag.CodeMapOverlap, diag.Error, d.Location(),
					"@map range for %q ($%04X-$%04X) overlaps @map range for %q ($%04X-$%04X)",
					d.Name, entry.Address, entry.end(), other.Symbol.Name, other.Address, other.end()))
				break
			}
		}
		for _, zp := range layout.ZeroPage {
			if rangesOverlap(entry.Address, entry.end(), zp.Address, zp.end()) {
				m.diags.Add(diag.New(diag.CodeZpMapOverlap, diag.Error, d.Location(),
					"@map range for %q ($%04X-$%04X) overlaps the zero-page allocation for %q",
					d.Name, entry.Address, entry.end(), zp.Symbol.Name))
				break
			}
		}
		layout.Mapped = append(layout.Mapped, entry)
	}

	sort.SliceStable(m.ramGlobals, func(i, j int) bool {
		return declOrderKey(m.ramGlobals[i]) < declOrderKey(m.ramGlobals[j])
	})
	ramCursor := m.target.FrameRegion.End + 1
	for _, d := range m.ramGlobals {
		size := zpSize(d) // same "declared type size, default 1" rule.
		d.Symbol.MapAddress = ramCursor
		layout.RAM = append(layout.RAM, RAMEntry{Symbol: d.Symbol, Address: ramCursor, Size: size})
		layout.RAMBytesUsed += size
		ramCursor += uint16(size)
	}

	layout.ModuleCount = len(m.modules)
	return layout
}

func zpSize(d *ast.VariableDecl) int {
	if d.Symbol != nil && d.Symbol.Type != nil {
		s := d.Symbol.Type.Size()
		if s > 0 {
			return s
		}
	}
	return 1
}

func rangesOverlap(aStart, aEnd, bStart, bEnd uint16) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// declOrderKey gives a stable tie-break ordering: module name (if tracked
// via SourceModule) then source location, approximating spec.md §4.12's
// "module name, then declaration order".
func declOrderKey(d *ast.VariableDecl) string {
	mod := ""
	if d.Symbol != nil {
		mod = d.Symbol.SourceModule
	}
	loc := d.Location()
	return mod + "|" + loc.String()
}
