package estiva

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkflowBuilderBuild(t *testing.T) {
	prepare := newPrepareSystem("prepare_system")
	require.NoError(t, prepare.SetValue(NewPathAddress("substance"), "O{1.0}"))

	density := newComputeDensity("compute_density")
	require.NoError(t, density.SetValue(NewPathAddress("coordinates"),
		NewPathAddress("coordinates", "prepare_system")))

	w, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		Protocol(prepare).
		Protocol(density).
		FinalValue("value", "compute_density").
		Uncertainty("value", "compute_density").
		StoreOutput("data_directory", "compute_density").
		Build()
	require.NoError(t, err)

	require.Equal(t, "density-298K", w.PropertyID)
	require.Equal(t, "O{1.0}", w.SubstanceID)
	require.Len(t, w.Protocols, 2)
	require.Equal(t, "compute_density/value", w.FinalValue.String())
	require.Equal(t, "compute_density/value", w.Uncertainty.String())
	require.Len(t, w.OutputsToStore, 1)
	require.Equal(t, "compute_density/data_directory", w.OutputsToStore[0].String())
}

func TestWorkflowBuilderNilProtocolPanics(t *testing.T) {
	require.Panics(t, func() {
		NewWorkflowBuilder("density-298K", "O{1.0}").Protocol(nil)
	})
}

func TestWorkflowBuilderRequiresProtocols(t *testing.T) {
	_, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		FinalValue("value", "compute_density").
		Build()
	require.ErrorContains(t, err, "no protocols")
}

func TestWorkflowBuilderRequiresFinalValue(t *testing.T) {
	_, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		Protocol(newPrepareSystem("prepare_system")).
		Build()
	require.ErrorContains(t, err, "no final value")
}

func TestWorkflowBuilderRejectsUnknownFinalValueNode(t *testing.T) {
	_, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		Protocol(newPrepareSystem("prepare_system")).
		FinalValue("value", "compute_density").
		Build()
	require.Error(t, err)
}

func TestWorkflowBuilderFromSchema(t *testing.T) {
	reg := NewProtocolRegistry()
	require.NoError(t, reg.Register("PrepareSystem", func(id string) Protocol {
		return newPrepareSystem(id)
	}))

	b, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		FromSchema(reg, &ProtocolSchema{
			ID:   "prepare_system",
			Type: "PrepareSystem",
			Inputs: map[string]any{
				"substance": "O{1.0}",
			},
		})
	require.NoError(t, err)

	w, err := b.FinalValue("coordinates", "prepare_system").Build()
	require.NoError(t, err)
	require.Len(t, w.Protocols, 1)

	value, err := w.Protocols[0].Value(NewPathAddress("substance"))
	require.NoError(t, err)
	require.Equal(t, "O{1.0}", value)
}

func TestWorkflowBuilderFromSchemaUnknownType(t *testing.T) {
	reg := NewProtocolRegistry()
	_, err := NewWorkflowBuilder("density-298K", "O{1.0}").
		FromSchema(reg, &ProtocolSchema{ID: "x", Type: "NoSuchType"})
	require.Error(t, err)
}
