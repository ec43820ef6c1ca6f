package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])
	assert.Equal(t, float64(0), body["activeWorkers"])

	// Fresh workers count; a stale heartbeat does not.
	require.NoError(t, env.store.RegisterWorker(ctx, "w0"))
	require.NoError(t, env.store.RegisterWorker(ctx, "w1"))
	env.store.SetHeartbeat("w1", time.Now().Add(-time.Minute))

	rec = env.get(t, "/health")
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["activeWorkers"])
}

func TestWorkersListing(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.store.RegisterWorker(ctx, "w0"))
	require.NoError(t, env.store.RegisterWorker(ctx, "w1"))
	env.store.SetHeartbeat("w1", time.Now().Add(-time.Minute))
	require.NoError(t, env.store.SetWorkerInfo(ctx, "w0", map[string]string{"hostname": "host-a"}, time.Minute))

	rec := env.get(t, "/workers")
	require.Equal(t, http.StatusOK, rec.Code)

	workers := decodeBody(t, rec)["workers"].([]any)
	require.Len(t, workers, 2)

	byID := make(map[string]map[string]any)
	for _, w := range workers {
		view := w.(map[string]any)
		byID[view["id"].(string)] = view
	}

	require.Contains(t, byID, "w0")
	require.Contains(t, byID, "w1")
	assert.Equal(t, true, byID["w0"]["live"])
	assert.Equal(t, false, byID["w1"]["live"])
	assert.Equal(t, map[string]any{"hostname": "host-a"}, byID["w0"]["info"])
	assert.NotEmpty(t, byID["w0"]["lastHeartbeat"])
}
