package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/compiler"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

func zpGlobal(name string, t ast.TypeInfo) *ast.VariableDecl {
	sym := &ast.Symbol{Name: name, Kind: ast.SymbolVariable, Type: t, Storage: ast.StorageZeroPage}
	return &ast.VariableDecl{Name: name, Storage: ast.StorageZeroPage, Symbol: sym}
}

func mappedGlobal(name string, addr uint16, t ast.TypeInfo) *ast.VariableDecl {
	sym := &ast.Symbol{Name: name, Kind: ast.SymbolVariable, Type: t, Storage: ast.StorageMapped, MapAddress: addr}
	return &ast.VariableDecl{Name: name, Storage: ast.StorageMapped, MapAddress: addr, Symbol: sym}
}

func TestMemoryLayoutZeroPageOverflowReportsError(t *testing.T) {
	tgt := target.C64()
	b := compiler.NewMemoryLayoutBuilder(tgt)

	budget := tgt.ZeroPageBudget()
	// One word-sized global per two bytes of budget, plus one more than fits.
	for i := 0; i < budget/2+1; i++ {
		b.AddGlobal(zpGlobal(string(rune('a'+i)), ast.Word))
	}

	layout := b.Finalize()
	assert.LessOrEqual(t, layout.ZeroPageBytesUsed, budget)

	diags := b.Diagnostics()
	require.NotEmpty(t, diags)
	assert.Equal(t, diag.CodeZpOverflow, diags[len(diags)-1].Code)
	assert.Equal(t, diag.Error, diags[len(diags)-1].Severity)
}

func TestMemoryLayoutMapOverlapReportsError(t *testing.T) {
	tgt := target.C64()
	b := compiler.NewMemoryLayoutBuilder(tgt)

	b.AddGlobal(mappedGlobal("border", 0xD020, ast.Byte))
	b.AddGlobal(mappedGlobal("overlap", 0xD020, ast.Byte))

	b.Finalize()

	diags := b.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeMapOverlap, diags[0].Code)
	assert.Equal(t, diag.Error, diags[0].Severity)
}

func TestMemoryLayoutNoOverlapIsClean(t *testing.T) {
	tgt := target.C64()
	b := compiler.NewMemoryLayoutBuilder(tgt)

	b.AddGlobal(zpGlobal("counter", ast.Byte))
	b.AddGlobal(mappedGlobal("border", 0xD020, ast.Byte))
	b.AddGlobal(&ast.VariableDecl{Name: "plain", Symbol: &ast.Symbol{Name: "plain", Kind: ast.SymbolVariable, Type: ast.Byte, Storage: ast.StorageDefault}})

	layout := b.Finalize()
	assert.Empty(t, b.Diagnostics())
	assert.Len(t, layout.ZeroPage, 1)
	assert.Len(t, layout.Mapped, 1)
	assert.Len(t, layout.RAM, 1)
}
