// Package coreutil holds small pieces of infrastructure shared by every
// mid-end package: an arena pool, a bitset, and the debug/validation
// toggles that gate tracing and invariant checks.
package coreutil

// These consts gate verbose tracing and expensive validation across the
// mid-end. Instead of threading a logger through every pass, we follow the
// same compile-time-flag approach the core pipeline uses elsewhere: flip a
// const, rebuild, and the relevant pass starts printing to stdout.

// ----- Debug logging -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	LoweringLoggingEnabled = false
	DataflowLoggingEnabled = false
	CCPLoggingEnabled      = false
	ADLoggingEnabled       = false
	JacobianLoggingEnabled = false
)

// ----- Validations -----
// These consts must be enabled by default until the passes they guard have
// had a long fuzzing run with them on.

const (
	CFGValidationEnabled = true
	SSAValidationEnabled = true
)
