package diag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
	"github.com/blendsdk/blend65-sub017/pkg/diag"
)

func TestCollectorOrdersByInsertion(t *testing.T) {
	c := diag.NewCollector()
	c.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, ast.SourceLocation{}, "first"))
	c.Add(diag.New(diag.CodeUnreachableCode, diag.Warning, ast.SourceLocation{}, "second"))
	c.Add(diag.New(diag.CodeRecursionInfo, diag.Info, ast.SourceLocation{}, "third"))

	got := c.All()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, "third", got[2].Message)
}

func TestCollectorHasErrorsOnlyOnErrorSeverity(t *testing.T) {
	c := diag.NewCollector()
	c.Add(diag.New(diag.CodeRecursionInfo, diag.Info, ast.SourceLocation{}, "informational"))
	c.Add(diag.New(diag.CodeUnreachableCode, diag.Warning, ast.SourceLocation{}, "warning"))
	assert.False(t, c.HasErrors())

	c.Add(diag.New(diag.CodeTypeMismatch, diag.Error, ast.SourceLocation{}, "boom"))
	assert.True(t, c.HasErrors())
}

func TestCollectorMergePreservesOtherOrder(t *testing.T) {
	main := diag.NewCollector()
	main.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, ast.SourceLocation{}, "main-1"))

	worker := diag.NewCollector()
	worker.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, ast.SourceLocation{}, "worker-1"))
	worker.Add(diag.New(diag.CodeSymbolNotFound, diag.Error, ast.SourceLocation{}, "worker-2"))

	main.Merge(worker)

	got := main.All()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"main-1", "worker-1", "worker-2"}, []string{got[0].Message, got[1].Message, got[2].Message})
}

func TestDiagnosticStringIncludesSuggestionWhenPresent(t *testing.T) {
	d := diag.New(diag.CodeTypeMismatch, diag.Error, ast.SourceLocation{}, "cannot assign word to byte")
	plain := d.String()
	assert.NotContains(t, plain, "suggestion:")

	withSuggestion := d.WithSuggestion("add an explicit cast")
	assert.Contains(t, withSuggestion.String(), "suggestion: add an explicit cast")
}
