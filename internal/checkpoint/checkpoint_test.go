package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileManagerRoundTrip(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	outputDir := "/data/batch-7"

	_, err = mgr.Load(ctx, outputDir)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	cp := &Checkpoint{
		OutputDir: outputDir,
		Encoding:  ".msgpack.gz",
		Completed: []string{"chair_42", "table_7"},
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, mgr.Save(ctx, cp))

	loaded, err := mgr.Load(ctx, outputDir)
	require.NoError(t, err)
	assert.Equal(t, cp.Completed, loaded.Completed)
	assert.Equal(t, ".msgpack.gz", loaded.Encoding)

	// A different output directory has its own checkpoint.
	_, err = mgr.Load(ctx, "/data/other")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestCompletedSet(t *testing.T) {
	cp := &Checkpoint{Completed: []string{"a", "b"}}
	set := cp.CompletedSet()
	assert.True(t, set["a"])
	assert.True(t, set["b"])
	assert.False(t, set["c"])
}

func TestNoopManager(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, &Checkpoint{OutputDir: "/x"}))
	_, err = mgr.Load(ctx, "/x")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}
