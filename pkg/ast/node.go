package ast

// NodeKind discriminates the concrete variant of a Node. Kept as a small
// closed enum (rather than Go's type-switch-on-interface-alone) so passes
// can build dispatch tables keyed by kind, per spec.md §9's "single visitor
// struct ... dispatch table keyed by AST-node kind" design note.
type NodeKind int

const (
	KindProgram NodeKind = iota

	// Declarations.
	KindVariableDecl
	KindFunctionDecl
	KindEnumDecl
	KindTypeDecl
	KindImportDecl

	// Statements.
	KindBlockStmt
	KindIfStmt
	KindWhileStmt
	KindForStmt
	KindDoWhileStmt
	KindMatchStmt
	KindReturnStmt
	KindBreakStmt
	KindContinueStmt
	KindExpressionStmt
	KindAssignmentStmt

	// Expressions.
	KindIdentifierExpr
	KindIntLiteralExpr
	KindBoolLiteralExpr
	KindStringLiteralExpr
	KindBinaryExpr
	KindUnaryExpr
	KindCallExpr
	KindIndexExpr
	KindMemberExpr
	KindSizeofExpr
	KindLengthExpr
)

var nodeKindNames = [...]string{
	"Program",
	"VariableDecl", "FunctionDecl", "EnumDecl", "TypeDecl", "ImportDecl",
	"BlockStmt", "IfStmt", "WhileStmt", "ForStmt", "DoWhileStmt", "MatchStmt",
	"ReturnStmt", "BreakStmt", "ContinueStmt", "ExpressionStmt", "AssignmentStmt",
	"IdentifierExpr", "IntLiteralExpr", "BoolLiteralExpr", "StringLiteralExpr",
	"BinaryExpr", "UnaryExpr", "CallExpr", "IndexExpr", "MemberExpr",
	"SizeofExpr", "LengthExpr",
}

func (k NodeKind) String() string {
	if int(k) < 0 || int(k) >= len(nodeKindNames) {
		return "UnknownKind"
	}
	return nodeKindNames[k]
}

// Node is implemented by every Declaration, Statement and Expression
// variant. The AST is immutable once constructed; Meta is the one mutable
// surface every analysis pass is allowed to write to.
type Node interface {
	Kind() NodeKind
	Location() SourceLocation
	Meta() *Metadata
}

// Declaration is a Node that introduces a new binding at module or function
// scope (variable, function, enum, type alias, import).
type Declaration interface {
	Node
	declarationNode()
}

// Statement is a Node appearing in a function body's statement sequence.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that evaluates to a value.
type Expression interface {
	Node
	expressionNode()
}

// base provides the fields and methods common to every concrete node type.
// Embedding it satisfies the Node interface's Location/Meta methods;
// concrete types still implement Kind() themselves so the constant is
// visible at the declaration site.
type base struct {
	Loc  SourceLocation
	meta Metadata
}

func (b *base) Location() SourceLocation { return b.Loc }
func (b *base) Meta() *Metadata          { return &b.meta }
