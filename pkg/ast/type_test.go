package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
)

func TestCheckCompatibilityByteWidensToWord(t *testing.T) {
	assert.Equal(t, ast.Compatible, ast.CheckCompatibility(ast.Byte, ast.Word))
}

func TestCheckCompatibilityWordNarrowsToByteRequiresConversion(t *testing.T) {
	assert.Equal(t, ast.RequiresConversion, ast.CheckCompatibility(ast.Word, ast.Byte))
}

func TestCheckCompatibilityBoolIsIsolatedFromNumerics(t *testing.T) {
	assert.Equal(t, ast.Incompatible, ast.CheckCompatibility(ast.Bool, ast.Byte))
	assert.Equal(t, ast.Incompatible, ast.CheckCompatibility(ast.Byte, ast.Bool))
}

func TestCheckCompatibilityIdenticalTypes(t *testing.T) {
	assert.Equal(t, ast.Identical, ast.CheckCompatibility(ast.Word, ast.Word))
}

func TestFixedArrayCompatibleWithDynamicArrayOfSameElement(t *testing.T) {
	fixed := ast.NewFixedArrayType(ast.Byte, 4)
	dynamic := ast.NewDynamicArrayType(ast.Byte)
	assert.Equal(t, ast.Compatible, ast.CheckCompatibility(fixed, dynamic))
	assert.Equal(t, ast.Incompatible, ast.CheckCompatibility(dynamic, fixed))
}

func TestFixedArrayLengthMismatchIsIncompatible(t *testing.T) {
	a := ast.NewFixedArrayType(ast.Byte, 4)
	b := ast.NewFixedArrayType(ast.Byte, 5)
	assert.Equal(t, ast.Incompatible, ast.CheckCompatibility(a, b))
}

func TestWidestNumericPrefersWord(t *testing.T) {
	assert.Equal(t, ast.Word, ast.WidestNumeric(ast.Byte, ast.Word))
	assert.Equal(t, ast.Byte, ast.WidestNumeric(ast.Byte, ast.Byte))
}

func TestEnumTypeIdenticalByNameOnly(t *testing.T) {
	a := &ast.EnumType{Name: "Color", Members: map[string]int{"Red": 0}}
	b := &ast.EnumType{Name: "Color", Members: map[string]int{"Red": 0}}
	c := &ast.EnumType{Name: "Suit", Members: map[string]int{"Red": 0}}
	assert.True(t, a.Identical(b))
	assert.False(t, a.Identical(c))
}
