package diag

// Collector is the single ordered diagnostics channel shared by every pass
// (spec.md §5 "A diagnostic channel is write-only for analyzers; it is
// ordered by insertion."). Compile runs its passes sequentially (spec.md §5:
// "There is no cooperative scheduling"), so a Collector is only ever
// accessed from the one goroutine driving a compile at a time; per-module
// worker Collectors (one per Compile pass iteration) are merged into the
// top-level one once each finishes.
type Collector struct {
	items []Diagnostic
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{items: make([]Diagnostic, 0, 16)}
}

// Add appends d to the ordered stream.
func (c *Collector) Add(d Diagnostic) {
	c.items = append(c.items, d)
}

// All returns a snapshot of every diagnostic recorded so far, in insertion
// order.
func (c *Collector) All() []Diagnostic {
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// HasErrors reports whether any Error-severity diagnostic was recorded. Per
// spec.md §7, the compilation fails iff this is true.
func (c *Collector) HasErrors() bool {
	for _, d := range c.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics recorded so far.
func (c *Collector) Len() int {
	return len(c.items)
}

// Merge appends another Collector's diagnostics to this one, preserving the
// other's internal order (used to fold a per-module worker's diagnostics
// back into the top-level stream once it completes).
func (c *Collector) Merge(other *Collector) {
	for _, d := range other.All() {
		c.Add(d)
	}
}
