package ast

// VariableDecl declares a variable or constant, at module or local scope.
// It doubles as a Statement so it can appear directly in a BlockStmt's
// statement list (a local `let`/`const` declaration), and as a Declaration
// when it appears at module scope as a `@zp`/`@map` global.
type VariableDecl struct {
	base
	Name           string
	TypeAnnotation TypeInfo // nil if omitted in source (spec.md §4.6 MissingTypeAnnotation).
	Initializer    Expression
	IsConst        bool
	Storage        StorageClass
	MapAddress     uint16 // valid only when Storage == StorageMapped.
	IsExported     bool
	Symbol         *Symbol // filled in by the Symbol-Table Builder (C5).
}

func (*VariableDecl) Kind() NodeKind    { return KindVariableDecl }
func (*VariableDecl) declarationNode()  {}
func (*VariableDecl) statementNode()    {}

// ParamDecl is one entry of a FunctionDecl's parameter list.
type ParamDecl struct {
	Name           string
	TypeAnnotation TypeInfo
	Symbol         *Symbol
}

// FunctionDecl declares a function. Parameters are declared in the body's
// scope (spec.md §4.5); Body is nil for an intrinsic/extern declaration.
type FunctionDecl struct {
	base
	Name       string
	Parameters []ParamDecl
	ReturnType TypeInfo
	Body       *BlockStmt
	IsExported bool
	Symbol     *Symbol
}

func (*FunctionDecl) Kind() NodeKind   { return KindFunctionDecl }
func (*FunctionDecl) declarationNode() {}

// EnumMemberDecl is one `Name[= Value]` entry of an EnumDecl.
type EnumMemberDecl struct {
	Name   string
	Value  *int // nil if defaulted to previous+1 starting at 0 (spec.md §4.6).
	Symbol *Symbol
}

// EnumDecl declares a named enumeration type.
type EnumDecl struct {
	base
	Name       string
	Members    []EnumMemberDecl
	IsExported bool
	Type       *EnumType
}

func (*EnumDecl) Kind() NodeKind   { return KindEnumDecl }
func (*EnumDecl) declarationNode() {}

// TypeDecl declares a type alias (`type Name = Aliased;`).
type TypeDecl struct {
	base
	Name       string
	Aliased    TypeInfo
	IsExported bool
}

func (*TypeDecl) Kind() NodeKind   { return KindTypeDecl }
func (*TypeDecl) declarationNode() {}

// ImportDecl is `import a, b, c from Mod;` or `import * from Mod;`
// (Wildcard == true).
type ImportDecl struct {
	base
	ModuleName string
	Names      []string // empty when Wildcard is true.
	Wildcard   bool
}

func (*ImportDecl) Kind() NodeKind   { return KindImportDecl }
func (*ImportDecl) declarationNode() {}

// Program is the root of one module's AST: the parsed output for a single
// source file/module (spec.md §3 "Module").
type Program struct {
	base
	ModuleName   string
	Declarations []Declaration
}

func (*Program) Kind() NodeKind { return KindProgram }
