package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/compiler"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

func fn(name string, body *ast.BlockStmt) *ast.FunctionDecl {
	return &ast.FunctionDecl{
		Name:       name,
		Body:       body,
		ReturnType: ast.Void,
		Symbol:     &ast.Symbol{Name: name, Kind: ast.SymbolFunction},
	}
}

func block(stmts ...ast.Statement) *ast.BlockStmt {
	return &ast.BlockStmt{Statements: stmts}
}

func TestCFGHasExactlyOneEntryAndOneExit(t *testing.T) {
	f := fn("straight", block(&ast.ReturnStmt{}))

	cfg, diags := compiler.NewCFGBuilder(f).Build(f)
	assert.Empty(t, diags)

	entries, exits := 0, 0
	for _, n := range cfg.Nodes {
		switch n.Kind {
		case compiler.CFGEntry:
			entries++
		case compiler.CFGExit:
			exits++
		}
	}
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, exits)
}

func TestCFGReportsCodeAfterReturnAsUnreachable(t *testing.T) {
	deadAssign := &ast.AssignmentStmt{
		Target: &ast.IdentifierExpr{Name: "x"},
		Value:  &ast.IntLiteralExpr{Value: 1},
	}
	f := fn("deadcode", block(&ast.ReturnStmt{}, deadAssign))

	_, diags := compiler.NewCFGBuilder(f).Build(f)

	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeUnreachableCode, diags[0].Code)
	assert.Equal(t, diag.Warning, diags[0].Severity)
}

func TestCFGIfWithBothBranchesReturningHasNoFallthrough(t *testing.T) {
	ifStmt := &ast.IfStmt{
		Condition: &ast.IdentifierExpr{Name: "cond"},
		Then:      block(&ast.ReturnStmt{}),
		Else:      block(&ast.ReturnStmt{}),
	}
	f := fn("bothreturn", block(ifStmt))

	cfg, diags := compiler.NewCFGBuilder(f).Build(f)
	assert.Empty(t, diags)

	exit := cfg.Nodes[cfg.ExitID]
	assert.GreaterOrEqual(t, len(exit.Predecessors), 2)
}
