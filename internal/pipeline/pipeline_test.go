package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// buildResistor mirrors internal/jacobian's own fixture: `I(a,b) <+
// V(a,b)/r;`, used here to exercise the whole lower, CCP, Jacobian, CCP
// sequence end to end.
func buildResistor() (*hir.Module, hir.ParameterID) {
	b := hir.NewBuilder("resistor")
	elec := b.AddDiscipline(hir.Discipline{Name: "electrical"})
	a := b.AddNode("a")
	bNode := b.AddNode("b")
	br := b.AddBranch(hir.Nodes(a, bNode), elec)
	r := b.AddParameter("r", hir.TypeReal, hir.RealConst(1000))

	v := b.BranchAccess(br, hir.AccessPotential)
	rhs := b.Binary(hir.BinaryDiv, v, b.ParamRef(r))
	contribute := b.Contribute(hir.OutputKind{Branch: br}, rhs)
	b.SetAnalog([]hir.StmtID{contribute})
	return b.Build(), r
}

func TestCompile_EndToEnd(t *testing.T) {
	m, r := buildResistor()
	res, err := Compile(m, map[hir.ParameterID]hir.Const{r: hir.RealConst(1000)})
	require.NoError(t, err)
	require.Empty(t, res.Diagnostics)
	require.NoError(t, res.CFG.Validate())
	require.Len(t, res.Jacobian.Entries, 4)
	require.Len(t, res.Residual, 1)
}

// TestCompile_AssemblyErrorsDiscardPartialResult checks that when a
// voltage contribution can't be stamped, the whole job's result is
// discarded rather than returned half-built.
func TestCompile_AssemblyErrorsDiscardPartialResult(t *testing.T) {
	b := hir.NewBuilder("vsrc")
	elec := b.AddDiscipline(hir.Discipline{Name: "electrical"})
	a := b.AddNode("a")
	bNode := b.AddNode("b")
	br := b.AddBranch(hir.Nodes(a, bNode), elec)

	contribute := b.Contribute(hir.OutputKind{Voltage: true, Branch: br}, b.Const(hir.RealConst(5)))
	b.SetAnalog([]hir.StmtID{contribute})

	res, err := Compile(b.Build(), nil)
	require.Error(t, err)
	require.Nil(t, res)
}

// TestCompile_DeterministicAcrossConcurrentJobs checks that pass results
// are deterministic given identical HIR and known-parameter inputs, and
// that running many jobs over the same immutable Module concurrently is
// safe since each Job owns its own Sink and builds its own fresh CFG.
func TestCompile_DeterministicAcrossConcurrentJobs(t *testing.T) {
	m, r := buildResistor()
	known := map[hir.ParameterID]hir.Const{r: hir.RealConst(1000)}

	const n = 16
	results := make([]*Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = Compile(m, known)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
	}

	first := results[0].Jacobian
	for i := 1; i < n; i++ {
		require.Equal(t, len(first.Entries), len(results[i].Jacobian.Entries))
		for key := range first.Entries {
			_, ok := results[i].Jacobian.Entries[key]
			require.True(t, ok, "job %d missing entry %v present in job 0", i, key)
		}
	}
}
