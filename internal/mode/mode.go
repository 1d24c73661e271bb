// Package mode holds the run-wide execution switch consulted by every mutating operation.
package mode

// Mode decides whether external systems are mutated. It is fixed for a run and gates the
// database and the secret store identically.
type Mode int

const (
	// Live applies every change.
	Live Mode = iota
	// DryRun computes and reports every change without applying any.
	DryRun
)

// FromDryRun maps the --dry-run flag to a Mode
func FromDryRun(dryRun bool) Mode {
	if dryRun {
		return DryRun
	}
	return Live
}

// IsDryRun reports whether mutations must be skipped
func (m Mode) IsDryRun() bool {
	return m == DryRun
}

func (m Mode) String() string {
	if m == DryRun {
		return "dry-run"
	}
	return "live"
}
