package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelprof/dispatch-profiler/internal/engine"
	"github.com/accelprof/dispatch-profiler/internal/trace"
)

func TestOpen_SingleGroup(t *testing.T) {
	e := New()
	sess, err := e.Open(0, []engine.Feature{{Name: "SQ_WAVES", Kind: engine.KindMetric}})
	require.NoError(t, err)
	defer sess.Close()

	count, err := sess.GroupCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	group, err := sess.Group(0)
	require.NoError(t, err)
	require.NoError(t, group.RefreshData())
	assert.Equal(t, sess, group.Session())

	_, err = sess.Group(1)
	assert.Error(t, err)
}

func TestGetMetrics_Deterministic(t *testing.T) {
	e := New()
	features := []engine.Feature{{Name: "GRBM_COUNT", Kind: engine.KindMetric}}

	values := make([]uint64, 2)
	for i := range values {
		sess, err := e.Open(3, features)
		require.NoError(t, err)
		require.NoError(t, sess.GetMetrics())
		results := sess.Results()
		require.Len(t, results, 1)
		assert.Equal(t, engine.DataUint64, results[0].Kind)
		values[i] = results[0].Value
		require.NoError(t, sess.Close())
	}

	// Same feature on the same device yields the same value.
	assert.Equal(t, values[0], values[1])
}

func TestGetMetrics_CopiedTrace(t *testing.T) {
	e := New(WithChunkSizes(7, 16, 3))
	sess, err := e.Open(0, []engine.Feature{{Name: "THREAD_TRACE", Kind: engine.KindTrace, CopyData: true}})
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.GetMetrics())

	results := sess.Results()
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Trace)

	chunks, size, err := trace.Demux(results[0].Trace.Data, results[0].Trace.InstanceCount, results[0].Trace.Capacity)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, uint64(26), size)
	assert.Len(t, chunks[0].Data, 7)
	assert.Len(t, chunks[1].Data, 16)
	assert.Len(t, chunks[2].Data, 3)
}

func TestIterateTraceChunks(t *testing.T) {
	e := New(WithChunkSizes(4, 8))
	sess, err := e.Open(0, []engine.Feature{{Name: "THREAD_TRACE", Kind: engine.KindTrace}})
	require.NoError(t, err)
	defer sess.Close()

	var sizes []int
	err = sess.IterateTraceChunks(func(chunk engine.TraceChunk) error {
		sizes = append(sizes, len(chunk.Data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, sizes)
}

func TestClose_Accounting(t *testing.T) {
	e := New()
	sess, err := e.Open(0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, e.OpenSessions())

	require.NoError(t, sess.Close())
	assert.Equal(t, 0, e.OpenSessions())

	// Double close is a collaborator inconsistency.
	assert.Error(t, sess.Close())
}

func TestOpenError(t *testing.T) {
	e := New(WithOpenError(errors.New("device lost")))
	_, err := e.Open(0, nil)
	require.Error(t, err)
	assert.Equal(t, "device lost", e.ErrorString())
}
