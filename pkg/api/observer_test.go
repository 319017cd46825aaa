package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCounts(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	req := NewEstimationRequest("req-1", "ff-1", nil)

	m.OnRequestStarted(ctx, req)
	m.OnLayerScheduled(ctx, req, "simulation", 3)
	m.OnLayerCompleted(ctx, req, "simulation", 100*time.Millisecond)
	m.OnLayerScheduled(ctx, req, "reweighting", 1)
	m.OnLayerCompleted(ctx, req, "reweighting", 300*time.Millisecond)
	m.OnAggregationFailure(ctx, req, errors.New("boom"))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.RequestsStarted)
	assert.Equal(t, int64(0), snap.RequestsFinished)
	assert.Equal(t, int64(1), snap.PendingRequests)
	assert.Equal(t, int64(2), snap.LayersScheduled)
	assert.Equal(t, int64(2), snap.LayersCompleted)
	assert.Equal(t, int64(1), snap.AggregationFailures)
	assert.Equal(t, 200*time.Millisecond, snap.AvgLayerDuration)

	m.OnRequestFinished(ctx, req)
	snap = m.Snapshot()
	assert.Equal(t, int64(1), snap.RequestsFinished)
	assert.Equal(t, int64(0), snap.PendingRequests)
}

type recordingObserver struct {
	NoopObserver
	events []string
}

func (r *recordingObserver) OnRequestStarted(ctx context.Context, req *EstimationRequest) {
	r.events = append(r.events, "started:"+req.ID)
}

func (r *recordingObserver) OnLayerCompleted(ctx context.Context, req *EstimationRequest, layer string, d time.Duration) {
	r.events = append(r.events, "layer:"+layer)
}

func TestCompositeObserverFansOut(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}

	combined := NewCompositeObserver(first, nil, second)

	ctx := context.Background()
	req := NewEstimationRequest("req-1", "ff-1", nil)
	combined.OnRequestStarted(ctx, req)
	combined.OnLayerCompleted(ctx, req, "simulation", time.Second)

	require.Equal(t, []string{"started:req-1", "layer:simulation"}, first.events)
	require.Equal(t, first.events, second.events)
}

func TestCompositeObserverCollapses(t *testing.T) {
	// No observers: the composite degrades to a no-op.
	obs := NewCompositeObserver(nil, nil)
	_, isNoop := obs.(NoopObserver)
	require.True(t, isNoop)

	// A single observer is returned unwrapped.
	single := &recordingObserver{}
	require.Same(t, Observer(single), NewCompositeObserver(single))
}
