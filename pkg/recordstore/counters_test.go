package recordstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats.json"), map[string]any{})
	require.NoError(t, err)
	return s
}

func TestUpdateCounters_SequentialAccumulation(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	const n = 7
	for i := 0; i < n; i++ {
		require.NoError(t, s.UpdateCounters(ctx, "metadata", map[string]float64{"total": 1}))
	}

	var doc map[string]any
	require.NoError(t, s.Read(ctx, &doc))
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, float64(n), meta["total"])
}

func TestUpdateCounters_CreatesNestedPath(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateCounters(ctx, "agents.reviewer.stats", map[string]float64{
		"tasks":    1,
		"failures": 0,
	}))
	require.NoError(t, s.UpdateCounters(ctx, "agents.reviewer.stats", map[string]float64{
		"tasks":    1,
		"failures": 1,
	}))

	var doc map[string]any
	require.NoError(t, s.Read(ctx, &doc))
	stats := doc["agents"].(map[string]any)["reviewer"].(map[string]any)["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["tasks"])
	assert.Equal(t, float64(1), stats["failures"])
}

func TestUpdateCounters_RootPath(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateCounters(ctx, "", map[string]float64{"total_runs": 2.5}))

	var doc map[string]any
	require.NoError(t, s.Read(ctx, &doc))
	assert.Equal(t, 2.5, doc["total_runs"])
}

func TestUpdateCounters_NegativeDelta(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateCounters(ctx, "m", map[string]float64{"open": 3}))
	require.NoError(t, s.UpdateCounters(ctx, "m", map[string]float64{"open": -1}))

	var doc map[string]any
	require.NoError(t, s.Read(ctx, &doc))
	assert.Equal(t, float64(2), doc["m"].(map[string]any)["open"])
}

func TestUpdateCounters_NonNumericField(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, map[string]any{
		"metadata": map[string]any{"total": "twelve"},
	}))

	err := s.UpdateCounters(ctx, "metadata", map[string]float64{"total": 1})
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestUpdateCounters_PathThroughNonObject(t *testing.T) {
	s := counterStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, map[string]any{"metadata": "flat"}))

	err := s.UpdateCounters(ctx, "metadata.nested", map[string]float64{"total": 1})
	assert.ErrorIs(t, err, ErrNotAnObject)
}

func TestUpdateCounters_NonObjectDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := Open(path, map[string]any{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 3]`), 0600))

	err = s.UpdateCounters(context.Background(), "metadata", map[string]float64{"total": 1})
	assert.ErrorIs(t, err, ErrNotAnObject)
}

func TestUpdateCounters_EmptyDeltasIsNoop(t *testing.T) {
	s := counterStore(t)
	require.NoError(t, s.UpdateCounters(context.Background(), "metadata", nil))

	var doc map[string]any
	require.NoError(t, s.Read(context.Background(), &doc))
	assert.Empty(t, doc)
}

func TestUpdateCounters_StartsFromDefaultSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := Open(path, map[string]any{
		"version":  float64(1),
		"metadata": map[string]any{"total": float64(10)},
	})
	require.NoError(t, err)
	ctx := context.Background()

	// Truncate out-of-band; the skeleton should seed the rebuilt document.
	require.NoError(t, os.Truncate(path, 0))
	require.NoError(t, s.UpdateCounters(ctx, "metadata", map[string]float64{"total": 1}))

	var doc map[string]any
	require.NoError(t, s.Read(ctx, &doc))
	assert.Equal(t, float64(1), doc["version"])
	assert.Equal(t, float64(11), doc["metadata"].(map[string]any)["total"])
}
