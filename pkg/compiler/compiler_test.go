package compiler_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/compiler"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
	"github.com/blendsdk/blend65-sub017/pkg/target"
)

func discardEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestCompileResolvesForwardReferenceAcrossModules(t *testing.T) {
	double := &ast.FunctionDecl{
		Name:       "double",
		IsExported: true,
		Parameters: []ast.ParamDecl{{Name: "x", TypeAnnotation: ast.Byte}},
		ReturnType: ast.Byte,
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.ReturnStmt{Value: &ast.IdentifierExpr{Name: "x"}},
		}},
	}
	util := &ast.Program{ModuleName: "util", Declarations: []ast.Declaration{double}}

	run := &ast.FunctionDecl{
		Name:       "run",
		ReturnType: ast.Byte,
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.ReturnStmt{Value: &ast.CallExpr{
				Callee: &ast.IdentifierExpr{Name: "double"},
				Args:   []ast.Expression{&ast.IntLiteralExpr{Value: 5}},
			}},
		}},
	}
	imp := &ast.ImportDecl{ModuleName: "util", Names: []string{"double"}}
	main := &ast.Program{ModuleName: "main", Declarations: []ast.Declaration{imp, run}}

	programs := map[string]*ast.Program{"main": main, "util": util}

	result := compiler.Compile(programs, target.C64(), compiler.DefaultOptions(), discardEntry())

	for _, d := range result.Diagnostics {
		assert.NotEqual(t, diag.Error, d.Severity, "unexpected error: %s", d.String())
	}
	require.True(t, result.Success)
	assert.True(t, result.Modules["main"].Success)
	assert.True(t, result.Modules["util"].Success)
}

func TestCompileRejectsConstReassignment(t *testing.T) {
	constDecl := &ast.VariableDecl{
		Name:        "Limit",
		IsConst:     true,
		Initializer: &ast.IntLiteralExpr{Value: 5},
	}
	run := &ast.FunctionDecl{
		Name:       "run",
		ReturnType: ast.Void,
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.AssignmentStmt{
				Target: &ast.IdentifierExpr{Name: "Limit"},
				Value:  &ast.IntLiteralExpr{Value: 10},
			},
			&ast.ReturnStmt{},
		}},
	}
	main := &ast.Program{ModuleName: "main", Declarations: []ast.Declaration{constDecl, run}}

	result := compiler.Compile(map[string]*ast.Program{"main": main}, target.C64(), compiler.DefaultOptions(), discardEntry())

	require.False(t, result.Success)
	assert.False(t, result.Modules["main"].Success)

	var found bool
	for _, d := range result.Diagnostics {
		if d.Code == diag.CodeConstReassignment {
			found = true
			assert.Equal(t, diag.Error, d.Severity)
		}
	}
	assert.True(t, found, "expected a CodeConstReassignment diagnostic")
}
