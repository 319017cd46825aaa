package api

import (
	"context"
	"errors"
	"testing"
)

// simulationStub mimics the shape of a molecular-dynamics style protocol:
// a couple of merge-managed numeric inputs, one equality-gated input, and
// a coordinate reference wired from upstream.
type simulationStub struct {
	*ProtocolBase
}

func newSimulationStub(id string) *simulationStub {
	return &simulationStub{
		ProtocolBase: NewProtocolBase(id, "RunSimulation",
			[]InputSpec{
				{Name: "steps", Policy: MergeGreatest, Default: 1000},
				{Name: "output_frequency", Policy: MergeSmallest, Default: 500},
				{Name: "ensemble", Policy: MergeExactlyEqual, Default: "NPT"},
				{Name: "input_coordinates"},
				{Name: "observables"},
			},
			[]OutputSpec{
				{Name: "trajectory_path"},
				{Name: "final_coordinates"},
			}),
	}
}

func (p *simulationStub) Execute(ctx context.Context, workDir string, resources ComputeResources) (map[string]any, error) {
	if err := p.SetOutput("trajectory_path", workDir+"/trajectory.dcd"); err != nil {
		return nil, err
	}
	if err := p.SetOutput("final_coordinates", workDir+"/output.pdb"); err != nil {
		return nil, err
	}
	return p.OutputMap(), nil
}

func mustSet(t *testing.T, p Protocol, property string, value any) {
	t.Helper()
	if err := p.SetValue(NewPathAddress(property), value); err != nil {
		t.Fatalf("SetValue(%s) failed: %v", property, err)
	}
}

func TestValueAndSetValueContract(t *testing.T) {
	p := newSimulationStub("npt_production")

	v, err := p.Value(NewPathAddress("steps"))
	if err != nil {
		t.Fatalf("Value(steps) failed: %v", err)
	}
	if v != 1000 {
		t.Fatalf("expected default 1000, got %v", v)
	}

	mustSet(t, p, "steps", 2000)
	v, _ = p.Value(NewPathAddress("steps", "npt_production"))
	if v != 2000 {
		t.Fatalf("expected 2000 via bound address, got %v", v)
	}

	// Unknown property.
	var unknown *UnknownPropertyError
	_, err = p.Value(NewPathAddress("no_such_property"))
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPropertyError, got %v", err)
	}

	// Wrong node id.
	_, err = p.Value(NewPathAddress("steps", "some_other_node"))
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPropertyError for foreign node, got %v", err)
	}

	// Outputs are read-only through SetValue.
	var readOnly *ReadOnlyOutputError
	err = p.SetValue(NewPathAddress("trajectory_path"), "/tmp/t.dcd")
	if !errors.As(err, &readOnly) {
		t.Fatalf("expected ReadOnlyOutputError, got %v", err)
	}
}

func TestNestedAccessorTraversal(t *testing.T) {
	p := newSimulationStub("stats")

	mustSet(t, p, "observables", map[string]any{
		"potential_energy": []any{-120.5, -118.2},
	})

	addr := NewPathAddress("observables").Key("potential_energy").Index(1)
	v, err := p.Value(addr)
	if err != nil {
		t.Fatalf("nested Value failed: %v", err)
	}
	if v != -118.2 {
		t.Fatalf("expected -118.2, got %v", v)
	}

	if err := p.SetValue(addr, -117.9); err != nil {
		t.Fatalf("nested SetValue failed: %v", err)
	}
	v, _ = p.Value(addr)
	if v != -117.9 {
		t.Fatalf("expected updated -117.9, got %v", v)
	}

	// Indexing into a scalar is a resolution failure, not a panic.
	_, err = p.Value(NewPathAddress("steps").Index(0))
	if !IsAddressResolutionError(err) {
		t.Fatalf("expected AddressResolutionError, got %v", err)
	}

	// Out-of-range index.
	_, err = p.Value(NewPathAddress("observables").Key("potential_energy").Index(9))
	if !IsAddressResolutionError(err) {
		t.Fatalf("expected AddressResolutionError for out-of-range index, got %v", err)
	}
}

func TestDependenciesCollectReferences(t *testing.T) {
	p := newSimulationStub("npt_production")

	coords := NewPathAddress("final_coordinates", "npt_equilibration")
	mustSet(t, p, "input_coordinates", coords)
	mustSet(t, p, "observables", []any{
		NewPathAddress("value", "extract_density"),
		42.0,
		NewPathAddress("value", "extract_density"), // duplicate
	})

	deps := p.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 unique dependencies, got %d: %v", len(deps), deps)
	}
	if !deps[0].Equal(coords) {
		t.Fatalf("expected first dependency %q, got %q", coords.String(), deps[0].String())
	}
	if deps[1].Origin() != "extract_density" {
		t.Fatalf("expected dependency on extract_density, got %q", deps[1].String())
	}

	// Self references are not dependencies.
	mustSet(t, p, "input_coordinates", NewPathAddress("trajectory_path", "npt_production"))
	deps = p.Dependencies()
	if len(deps) != 1 {
		t.Fatalf("expected self reference to be dropped, got %v", deps)
	}
}

func TestCanMergeRequiresTypeAndEquality(t *testing.T) {
	a := newSimulationStub("production_a")
	b := newSimulationStub("production_b")

	if !a.CanMerge(b) {
		t.Fatalf("identical protocols should merge")
	}

	// Different ensemble: ExactlyEqual gate fails before Merge is tried.
	mustSet(t, b, "ensemble", "NVT")
	if a.CanMerge(b) {
		t.Fatalf("protocols with differing ExactlyEqual inputs must not merge")
	}

	// Different declared type never merges, input equality notwithstanding.
	other := NewProtocolBase("production_c", "RunOtherThing",
		[]InputSpec{{Name: "ensemble", Policy: MergeExactlyEqual, Default: "NPT"}}, nil)
	stub := &simulationStub{ProtocolBase: other}
	if a.CanMerge(stub) {
		t.Fatalf("protocols of different types must not merge")
	}

	// Merging disabled on either side wins.
	c := newSimulationStub("production_d")
	c.SetAllowMerging(false)
	if a.CanMerge(c) || c.CanMerge(a) {
		t.Fatalf("allowMerging=false should veto the merge")
	}
}

func TestMergeAppliesPolicies(t *testing.T) {
	a := newSimulationStub("survivor")
	b := newSimulationStub("duplicate")

	mustSet(t, a, "steps", 20)
	mustSet(t, b, "steps", 50)
	mustSet(t, a, "output_frequency", 400)
	mustSet(t, b, "output_frequency", 250)
	mustSet(t, a, "input_coordinates", "a.pdb")
	mustSet(t, b, "input_coordinates", "b.pdb")

	if !a.CanMerge(b) {
		t.Fatalf("expected protocols to be mergeable")
	}

	subs, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("plain protocols should produce no extra substitutions, got %v", subs)
	}

	steps, _ := a.Value(NewPathAddress("steps"))
	if steps != 50 {
		t.Fatalf("Greatest policy: expected 50, got %v", steps)
	}

	freq, _ := a.Value(NewPathAddress("output_frequency"))
	if freq != 250 {
		t.Fatalf("Smallest policy: expected 250, got %v", freq)
	}

	// Unmanaged input untouched.
	coords, _ := a.Value(NewPathAddress("input_coordinates"))
	if coords != "a.pdb" {
		t.Fatalf("Unmanaged input was rewritten to %v", coords)
	}
}

func TestAppendInstanceTagRewritesIDAndReferences(t *testing.T) {
	p := newSimulationStub("npt_production")
	mustSet(t, p, "input_coordinates", NewPathAddress("final_coordinates", "npt_equilibration"))

	p.AppendInstanceTag("f81d4fae")

	if p.ID() != "f81d4fae|npt_production" {
		t.Fatalf("unexpected tagged id %q", p.ID())
	}

	v, err := p.Value(NewPathAddress("input_coordinates", p.ID()))
	if err != nil {
		t.Fatalf("Value after tagging failed: %v", err)
	}
	ref := v.(PathAddress)
	if ref.Origin() != "f81d4fae|npt_equilibration" {
		t.Fatalf("reference not tagged: %q", ref.String())
	}

	// Tagging twice changes nothing.
	p.AppendInstanceTag("f81d4fae")
	if p.ID() != "f81d4fae|npt_production" {
		t.Fatalf("double tagging changed id to %q", p.ID())
	}
}

func TestRetargetRewritesInputReferences(t *testing.T) {
	p := newSimulationStub("analysis")
	mustSet(t, p, "input_coordinates", NewPathAddress("final_coordinates", "duplicate"))

	p.Retarget("duplicate", "survivor")

	v, _ := p.Value(NewPathAddress("input_coordinates"))
	if v.(PathAddress).Origin() != "survivor" {
		t.Fatalf("expected retargeted reference, got %q", v.(PathAddress).String())
	}
}

func TestExecuteProducesDeclaredOutputs(t *testing.T) {
	p := newSimulationStub("npt_production")

	outputs, err := p.Execute(context.Background(), "/tmp/work", ComputeResources{Threads: 1})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outputs["trajectory_path"] != "/tmp/work/trajectory.dcd" {
		t.Fatalf("unexpected trajectory output: %v", outputs["trajectory_path"])
	}

	// Outputs become readable through Value afterwards.
	v, err := p.Value(NewPathAddress("final_coordinates"))
	if err != nil {
		t.Fatalf("Value(final_coordinates) failed: %v", err)
	}
	if v != "/tmp/work/output.pdb" {
		t.Fatalf("unexpected final coordinates: %v", v)
	}
}
