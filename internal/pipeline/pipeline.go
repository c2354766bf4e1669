// Package pipeline ties the mid-end's stages together end to end: lower,
// then conditional constant propagation to a fixed point, then
// differentiation and Jacobian assembly, then a second propagation pass to
// reduce the derivative expressions just emitted.
//
// A Job owns every piece of mutable state its compilation touches: its own
// diagnostics.Sink, its own *ssa.CFG built fresh by internal/lower. It
// reads nothing but the (immutable, shared-safe) hir.Module and the known
// parameter values it was given. Running many Jobs over the same Module
// concurrently, one goroutine per Job, is therefore safe and deterministic.
package pipeline

import (
	"github.com/pkg/errors"

	"github.com/erusyd/openvaf-core/internal/ccp"
	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/jacobian"
	"github.com/erusyd/openvaf-core/internal/lower"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Job is one compilation request: a module plus whichever module
// parameters the caller has fixed to a compile-time value.
type Job struct {
	Module      *hir.Module
	KnownParams map[hir.ParameterID]hir.Const
}

// Result is the pipeline's output: the lowered and simplified CFG, the
// Jacobian, and the residual (the final accumulated value of every module
// output, the same map internal/lower populates into CFG.Outputs).
type Result struct {
	CFG         *ssa.CFG
	Jacobian    *jacobian.Matrix
	Residual    map[ssa.PlaceKind]ssa.LocalID
	Diagnostics []diagnostics.Report
}

// Run executes j in isolation: its own Sink, its own CFG. Any error,
// whether a lowering diagnostic, an autodiff failure, or a Jacobian
// assembly failure, discards the whole partial result rather than
// returning it half-built.
func (j Job) Run() (*Result, error) {
	return Compile(j.Module, j.KnownParams)
}

// Compile is Job.Run's underlying entry point, exposed directly for callers
// that don't need the Job wrapper.
func Compile(m *hir.Module, knownParams map[hir.ParameterID]hir.Const) (*Result, error) {
	sink := diagnostics.NewSink()

	cfg := lower.Lower(m, sink)
	if sink.HasErrors() {
		return nil, errors.Errorf("lowering %q: %d error(s)", m.Name, countErrors(sink))
	}

	known := translateKnownParams(cfg, knownParams)
	ccp.Run(cfg, known)

	mat, err := jacobian.Assemble(cfg, m, sink)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %q", m.Name)
	}
	if sink.HasErrors() {
		return nil, errors.Errorf("compiling %q: %d error(s)", m.Name, countErrors(sink))
	}

	// autodiff emits each chain-rule term as its own instruction; a second
	// CCP pass is what actually collapses that chain down to a reduced
	// expression (e.g. `b + 1` rather than `(1*b + a*0) + 1`). mat.Finalize
	// must run after this pass, not before, so a matrix entry that only
	// folds to zero once this second pass completes is still pruned, and so
	// this pass's own folding cannot collapse an entry still under
	// construction before Finalize strips its protective opt barrier.
	ccp.Run(cfg, known)
	mat.Finalize(cfg)

	return &Result{
		CFG:         cfg,
		Jacobian:    mat,
		Residual:    cfg.Outputs,
		Diagnostics: sink.Reports(),
	}, nil
}

// translateKnownParams resolves the caller's hir.ParameterID-keyed fixed
// values against cfg.Params, the only place a lowered CFG records which
// ssa.ParamID a given module parameter turned into (internal/lower
// allocates these lazily, one per distinct parameter actually referenced,
// so a parameter the module never reads has no ssa.ParamID and is silently
// dropped here: fixing it to a constant would be a no-op anyway).
func translateKnownParams(cfg *ssa.CFG, known map[hir.ParameterID]hir.Const) map[ssa.ParamID]hir.Const {
	if len(known) == 0 {
		return nil
	}
	out := make(map[ssa.ParamID]hir.Const, len(known))
	for i, p := range cfg.Params {
		if p.Tag != ssa.ParamModuleParameter {
			continue
		}
		if c, ok := known[p.Parameter]; ok {
			out[ssa.ParamID(i)] = c
		}
	}
	return out
}

func countErrors(sink *diagnostics.Sink) int {
	n := 0
	for _, r := range sink.Reports() {
		if r.Severity == diagnostics.SeverityError {
			n++
		}
	}
	return n
}
