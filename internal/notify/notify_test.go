package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Event {
	return Event{
		RunID:     "abc123",
		OutputDir: "/data/out",
		Assets:    10,
		Succeeded: 8,
		Failed:    2,
		Duration:  42.5,
		Producer:  Producer{Name: "meshforge", Version: "test"},
	}
}

func TestFileEmitterWritesBackup(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(Config{Enabled: true, BackupDir: dir})
	defer e.Close()

	require.NoError(t, e.EmitBatch(context.Background(), sampleEvent()))

	data, err := os.ReadFile(filepath.Join(dir, "run_abc123.json"))
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, 8, evt.Succeeded)
	assert.False(t, evt.EmittedAt.IsZero())
}

func TestHTTPEmitterPostsAndBacksUp(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	dir := t.TempDir()
	e := NewEmitter(Config{Enabled: true, Endpoint: srv.URL, BackupDir: dir})
	defer e.Close()

	require.NoError(t, e.EmitBatch(context.Background(), sampleEvent()))
	assert.Equal(t, "abc123", received.RunID)
	assert.Equal(t, 2, received.Failed)

	_, err := os.Stat(filepath.Join(dir, "run_abc123.json"))
	assert.NoError(t, err)
}

func TestHTTPEmitterEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEmitter(Config{Enabled: true, Endpoint: srv.URL, BackupDir: t.TempDir()})
	assert.Error(t, e.EmitBatch(context.Background(), sampleEvent()))
}

func TestNoopEmitter(t *testing.T) {
	e := NewEmitter(Config{Enabled: false})
	assert.NoError(t, e.EmitBatch(context.Background(), sampleEvent()))
	assert.NoError(t, e.Close())
}
