package graph

import (
	"strings"
	"testing"

	"github.com/jpekkanen/estiva/pkg/api"
)

type stubProtocol struct {
	*api.ProtocolBase
}

func newBuildCoordinates(id, substance string) api.Protocol {
	p := &stubProtocol{
		ProtocolBase: api.NewProtocolBase(id, "BuildCoordinates",
			[]api.InputSpec{
				{Name: "substance", Policy: api.MergeExactlyEqual},
				{Name: "max_molecules", Policy: api.MergeGreatest, Default: 1000},
			},
			[]api.OutputSpec{{Name: "coordinates"}}),
	}
	if err := p.SetValue(api.NewPathAddress("substance"), substance); err != nil {
		panic(err)
	}
	return p
}

func newSimulation(id string, coordinates api.PathAddress, steps int) api.Protocol {
	p := &stubProtocol{
		ProtocolBase: api.NewProtocolBase(id, "RunSimulation",
			[]api.InputSpec{
				{Name: "input_coordinates", Policy: api.MergeExactlyEqual},
				{Name: "steps", Policy: api.MergeGreatest},
			},
			[]api.OutputSpec{{Name: "trajectory"}}),
	}
	if err := p.SetValue(api.NewPathAddress("input_coordinates"), coordinates); err != nil {
		panic(err)
	}
	if err := p.SetValue(api.NewPathAddress("steps"), steps); err != nil {
		panic(err)
	}
	return p
}

func newExtract(id, observable string, trajectory api.PathAddress) api.Protocol {
	p := &stubProtocol{
		ProtocolBase: api.NewProtocolBase(id, "ExtractObservable",
			[]api.InputSpec{
				{Name: "observable", Policy: api.MergeExactlyEqual},
				{Name: "trajectory"},
			},
			[]api.OutputSpec{{Name: "value"}}),
	}
	if err := p.SetValue(api.NewPathAddress("observable"), observable); err != nil {
		panic(err)
	}
	if err := p.SetValue(api.NewPathAddress("trajectory"), trajectory); err != nil {
		panic(err)
	}
	return p
}

// estimationWorkflow builds the three node chain
// build_coordinates -> run_simulation -> extract, for one observable.
func estimationWorkflow(t *testing.T, propertyID, substance, observable string, steps int) *Workflow {
	t.Helper()

	build := newBuildCoordinates("build_coordinates", substance)
	sim := newSimulation("run_simulation",
		api.NewPathAddress("coordinates", "build_coordinates"), steps)
	extract := newExtract("extract_"+observable, observable,
		api.NewPathAddress("trajectory", "run_simulation"))

	w, err := NewWorkflow(propertyID, substance,
		[]api.Protocol{build, sim, extract},
		api.NewPathAddress("value", "extract_"+observable))
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}
	if err := w.ApplyInstanceTag(); err != nil {
		t.Fatalf("ApplyInstanceTag failed: %v", err)
	}
	return w
}

func TestApplyInstanceTag(t *testing.T) {
	w := estimationWorkflow(t, "p1", "O{1.0}", "density", 2000)

	if w.InstanceID == "" {
		t.Fatalf("instance id not assigned")
	}
	for _, p := range w.Protocols {
		if !strings.HasPrefix(p.ID(), w.InstanceID+"|") {
			t.Fatalf("node id %q missing instance tag", p.ID())
		}
	}
	if !strings.HasPrefix(w.FinalValue.Origin(), w.InstanceID+"|") {
		t.Fatalf("final value %q missing instance tag", w.FinalValue.String())
	}

	if err := w.ApplyInstanceTag(); err == nil {
		t.Fatalf("expected error on second tagging")
	}
}

func TestAddWorkflowCollapsesSharedChain(t *testing.T) {
	g := NewGraph()

	// Two observables of the same substance share the coordinate build
	// and the simulation; only the extraction differs.
	density := estimationWorkflow(t, "p_density", "O{1.0}", "density", 2000)
	enthalpy := estimationWorkflow(t, "p_enthalpy", "O{1.0}", "enthalpy", 5000)

	if err := g.AddWorkflow(density); err != nil {
		t.Fatalf("AddWorkflow(density) failed: %v", err)
	}
	if err := g.AddWorkflow(enthalpy); err != nil {
		t.Fatalf("AddWorkflow(enthalpy) failed: %v", err)
	}

	nodes := g.Protocols()
	if len(nodes) != 4 {
		ids := make([]string, len(nodes))
		for i, p := range nodes {
			ids[i] = p.ID()
		}
		t.Fatalf("expected 4 surviving nodes (build, sim, 2 extracts), got %d: %v", len(nodes), ids)
	}

	// Greatest policy folded the step counts onto the surviving sim.
	var sim api.Protocol
	for _, p := range nodes {
		if p.TypeName() == "RunSimulation" {
			sim = p
		}
	}
	if sim == nil {
		t.Fatalf("no surviving simulation node")
	}
	steps, err := sim.Value(api.NewPathAddress("steps"))
	if err != nil {
		t.Fatalf("Value(steps) failed: %v", err)
	}
	if steps != 5000 {
		t.Fatalf("expected merged steps 5000, got %v", steps)
	}

	// The second workflow's extraction now references the survivor.
	extract, ok := g.Node(enthalpy.Protocols[2].ID())
	if !ok {
		t.Fatalf("enthalpy extraction missing from graph")
	}
	traj, err := extract.Value(api.NewPathAddress("trajectory", extract.ID()))
	if err != nil {
		t.Fatalf("Value(trajectory) failed: %v", err)
	}
	if traj.(api.PathAddress).Origin() != sim.ID() {
		t.Fatalf("extraction references %q, want survivor %q",
			traj.(api.PathAddress).Origin(), sim.ID())
	}

	// Final value addresses survived untouched; the extracts differ.
	if density.FinalValue.Equal(enthalpy.FinalValue) {
		t.Fatalf("distinct extracts should keep distinct final values")
	}
}

func TestAddWorkflowKeepsDistinctChainsApart(t *testing.T) {
	g := NewGraph()

	water := estimationWorkflow(t, "p1", "O{1.0}", "density", 2000)
	ethanol := estimationWorkflow(t, "p2", "CCO{1.0}", "density", 2000)

	if err := g.AddWorkflow(water); err != nil {
		t.Fatalf("AddWorkflow failed: %v", err)
	}
	if err := g.AddWorkflow(ethanol); err != nil {
		t.Fatalf("AddWorkflow failed: %v", err)
	}

	// Different substances: ExactlyEqual gate on the build blocks the
	// whole chain from collapsing.
	if len(g.Protocols()) != 6 {
		t.Fatalf("expected 6 nodes for two distinct chains, got %d", len(g.Protocols()))
	}
}

func TestNodeFollowsReplacements(t *testing.T) {
	g := NewGraph()

	a := estimationWorkflow(t, "p1", "O{1.0}", "density", 2000)
	b := estimationWorkflow(t, "p2", "O{1.0}", "density", 2000)

	mergedBuildID := b.Protocols[0].ID()

	if err := g.AddWorkflow(a); err != nil {
		t.Fatalf("AddWorkflow failed: %v", err)
	}
	if err := g.AddWorkflow(b); err != nil {
		t.Fatalf("AddWorkflow failed: %v", err)
	}

	// Identical workflows collapse entirely.
	if len(g.Protocols()) != 3 {
		t.Fatalf("expected full collapse to 3 nodes, got %d", len(g.Protocols()))
	}

	survivor, ok := g.Node(mergedBuildID)
	if !ok {
		t.Fatalf("merged-away id no longer resolvable")
	}
	if survivor.ID() != a.Protocols[0].ID() {
		t.Fatalf("replacement resolved to %q, want %q", survivor.ID(), a.Protocols[0].ID())
	}

	// The second workflow's final value was rewritten to the survivor.
	if b.FinalValue.Origin() != a.FinalValue.Origin() {
		t.Fatalf("final value not retargeted: %q vs %q",
			b.FinalValue.String(), a.FinalValue.String())
	}
}

func TestExecutionOrderLeafFirst(t *testing.T) {
	g := NewGraph()
	w := estimationWorkflow(t, "p1", "O{1.0}", "density", 2000)
	if err := g.AddWorkflow(w); err != nil {
		t.Fatalf("AddWorkflow failed: %v", err)
	}

	order, err := g.ExecutionOrder()
	if err != nil {
		t.Fatalf("ExecutionOrder failed: %v", err)
	}

	position := make(map[string]int, len(order))
	for i, p := range order {
		position[p.ID()] = i
	}
	for _, p := range order {
		for _, dep := range p.Dependencies() {
			if position[dep.Origin()] >= position[p.ID()] {
				t.Fatalf("dependency %q ordered after %q", dep.Origin(), p.ID())
			}
		}
	}
}

func TestNewWorkflowValidation(t *testing.T) {
	build := newBuildCoordinates("build", "O{1.0}")
	dupe := newBuildCoordinates("build", "O{1.0}")
	if _, err := NewWorkflow("p", "O{1.0}",
		[]api.Protocol{build, dupe}, api.NewPathAddress("coordinates", "build")); err == nil {
		t.Fatalf("expected error for duplicate node ids")
	}

	dangling := newSimulation("sim", api.NewPathAddress("coordinates", "missing"), 100)
	if _, err := NewWorkflow("p", "O{1.0}",
		[]api.Protocol{dangling}, api.NewPathAddress("trajectory", "sim")); err == nil {
		t.Fatalf("expected error for dangling dependency")
	}

	lone := newBuildCoordinates("build2", "O{1.0}")
	if _, err := NewWorkflow("p", "O{1.0}",
		[]api.Protocol{lone}, api.NewPathAddress("value", "elsewhere")); err == nil {
		t.Fatalf("expected error for final value outside workflow")
	}
}

func TestAddWorkflowRejectsCycle(t *testing.T) {
	first := newExtract("first", "density", api.NewPathAddress("value", "second"))
	second := newExtract("second", "density", api.NewPathAddress("value", "first"))

	w, err := NewWorkflow("p", "O{1.0}",
		[]api.Protocol{first, second}, api.NewPathAddress("value", "first"))
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}

	if err := NewGraph().AddWorkflow(w); err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
}
