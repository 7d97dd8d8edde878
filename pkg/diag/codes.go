package diag

// Stable diagnostic codes for every taxonomy entry in spec.md §7. These
// strings are part of the compiler's external contract (spec.md §6): they
// must never be renumbered or renamed across versions, so downstream
// tooling (editor integrations, test suites) can match on them.
const (
	// --- Symbol ---
	CodeDuplicateDeclaration      Code = "S010"
	CodeSymbolNotFound            Code = "S020"
	CodeUnknownType               Code = "S021"
	CodeConstRequiresInitializer  Code = "S022"
	CodeConstReassignment         Code = "S023"
	CodeMissingTypeAnnotation     Code = "S030"

	// --- Type ---
	CodeTypeMismatch          Code = "T010"
	CodeReturnTypeMismatch    Code = "T011"
	CodeArgumentTypeMismatch  Code = "T012"
	CodeArgumentCountMismatch Code = "T013"
	CodeInvalidLValue         Code = "T014"
	CodeInvalidOperator       Code = "T015"
	CodeNumericOverflow       Code = "T016"

	// --- Control-flow ---
	CodeControlFlowOutsideLoop Code = "C010"
	CodeUnreachableCode        Code = "UNREACHABLE_CODE"
	CodeMayNotReturn           Code = "C012"

	// --- Module ---
	CodeModuleNotFound    Code = "MODULE_NOT_FOUND"
	CodeSymbolNotExported Code = "M011"
	CodeNoExports         Code = "NO_EXPORTS"
	CodeImportConflict    Code = "M013"

	// --- Memory ---
	CodeZpOverflow        Code = "ZP_OVERFLOW"
	CodeMapOverlap        Code = "MAP_OVERLAP"
	CodeZpMapOverlap      Code = "MEM012"
	CodeSelfModifyingCode Code = "MEM013"

	// --- Frame ---
	CodeFrameOverflow Code = "FRAME_OVERFLOW"
	CodeRecursionInfo Code = "RecursionInfo"
)
