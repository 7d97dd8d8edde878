package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/compiler"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

func callStmt(callee *ast.Symbol) ast.Statement {
	return &ast.ExpressionStmt{
		Expr: &ast.CallExpr{
			Callee: &ast.IdentifierExpr{Name: callee.Name, Symbol: callee},
		},
	}
}

func TestCallGraphDetectsDirectRecursion(t *testing.T) {
	self := &ast.Symbol{Name: "loop", Kind: ast.SymbolFunction}
	f := &ast.FunctionDecl{Name: "loop", Symbol: self, Body: block(callStmt(self))}

	b := compiler.NewCallGraphBuilder()
	b.AddFunction(f)
	g := b.Graph()

	assert.True(t, g.IsDirectlyRecursive(self))
	assert.True(t, g.IsRecursive(self))

	diags := g.RecursionDiagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeRecursionInfo, diags[0].Code)
	assert.Equal(t, diag.Info, diags[0].Severity)
}

func TestCallGraphDetectsIndirectRecursion(t *testing.T) {
	aSym := &ast.Symbol{Name: "a", Kind: ast.SymbolFunction}
	bSym := &ast.Symbol{Name: "b", Kind: ast.SymbolFunction}
	aDecl := &ast.FunctionDecl{Name: "a", Symbol: aSym, Body: block(callStmt(bSym))}
	bDecl := &ast.FunctionDecl{Name: "b", Symbol: bSym, Body: block(callStmt(aSym))}

	builder := compiler.NewCallGraphBuilder()
	builder.AddFunction(aDecl)
	builder.AddFunction(bDecl)
	g := builder.Graph()

	assert.False(t, g.IsDirectlyRecursive(aSym))
	assert.True(t, g.IsRecursive(aSym))
	assert.True(t, g.IsRecursive(bSym))
}

func TestCallGraphMaxCallDepthForNonRecursiveChain(t *testing.T) {
	leaf := &ast.Symbol{Name: "leaf", Kind: ast.SymbolFunction}
	mid := &ast.Symbol{Name: "mid", Kind: ast.SymbolFunction}
	top := &ast.Symbol{Name: "top", Kind: ast.SymbolFunction}

	leafDecl := &ast.FunctionDecl{Name: "leaf", Symbol: leaf, Body: block()}
	midDecl := &ast.FunctionDecl{Name: "mid", Symbol: mid, Body: block(callStmt(leaf))}
	topDecl := &ast.FunctionDecl{Name: "top", Symbol: top, Body: block(callStmt(mid))}

	b := compiler.NewCallGraphBuilder()
	b.AddFunction(leafDecl)
	b.AddFunction(midDecl)
	b.AddFunction(topDecl)
	g := b.Graph()

	assert.Equal(t, 0, g.MaxCallDepth(leaf))
	assert.Equal(t, 2, g.MaxCallDepth(top))
}

func TestCallGraphUnreachableFromRoot(t *testing.T) {
	reachable := &ast.Symbol{Name: "reachable", Kind: ast.SymbolFunction}
	orphan := &ast.Symbol{Name: "orphan", Kind: ast.SymbolFunction}
	root := &ast.Symbol{Name: "main", Kind: ast.SymbolFunction}

	rootDecl := &ast.FunctionDecl{Name: "main", Symbol: root, Body: block(callStmt(reachable))}
	reachableDecl := &ast.FunctionDecl{Name: "reachable", Symbol: reachable, Body: block()}
	orphanDecl := &ast.FunctionDecl{Name: "orphan", Symbol: orphan, Body: block()}

	b := compiler.NewCallGraphBuilder()
	b.AddFunction(rootDecl)
	b.AddFunction(reachableDecl)
	b.AddFunction(orphanDecl)
	g := b.Graph()

	unreached := g.UnreachableFrom(root)
	require.Len(t, unreached, 1)
	assert.Equal(t, "orphan", unreached[0].Name)
}
