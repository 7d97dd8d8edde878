package compiler

// OptimizationLevel, together with Options.EnableOptimizations, decides
// whether the IL Generator unrolls loops (see unrollEnabled); hints are
// computed and attached at every level (spec.md §6 "Input": "compile
// options (optimization level O0-O3, ...)").
type OptimizationLevel int

const (
	O0 OptimizationLevel = iota
	O1
	O2
	O3
)

func (l OptimizationLevel) String() string {
	switch l {
	case O0:
		return "O0"
	case O1:
		return "O1"
	case O2:
		return "O2"
	case O3:
		return "O3"
	default:
		return "?"
	}
}

// Options is the compile-options tuple spec.md §6 names as part of the
// middle-end's input (optimization level, source maps, optimization-facing
// analyses). The middle-end itself is single-threaded and purely sequential
// (spec.md §5: "There is no cooperative scheduling"); there is no
// concurrency knob here to turn.
type Options struct {
	OptimizationLevel   OptimizationLevel
	EmitSourceMaps      bool
	EnableOptimizations bool
}

// DefaultOptions returns O0, no source maps, optimizations disabled — the
// conservative baseline spec.md §5 describes as the default execution
// model.
func DefaultOptions() Options {
	return Options{OptimizationLevel: O0}
}

// unrollEnabled reports whether Options permit the IL Generator (C14) to
// consume LoopInfo.UnrollCandidate rather than always emitting the
// conservative tested/branching lowering. Unrolling trades code size for
// speed, so it is gated behind both an optimization level above the
// baseline and the EnableOptimizations switch, mirroring how
// HintAnalyzer's recommendations are advisory until a caller opts in.
func (o Options) unrollEnabled() bool {
	return o.EnableOptimizations && o.OptimizationLevel >= O1
}
