package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Liveness(t *testing.T) {
	c, rec := newJSONContext(http.MethodGet, "/health", "")
	require.NoError(t, NewHealthHandler().Liveness(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDependenciesHandler_Readiness(t *testing.T) {
	h := NewHealthDependenciesHandler(map[string]Check{
		"mongodb": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return nil },
	})

	c, rec := newJSONContext(http.MethodGet, "/health/ready", "")
	require.NoError(t, h.Readiness(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"].Status)
}

func TestHealthDependenciesHandler_Degraded(t *testing.T) {
	h := NewHealthDependenciesHandler(map[string]Check{
		"mongodb": func(context.Context) error { return errors.New("no primary") },
		"redis":   func(context.Context) error { return nil },
	})

	c, rec := newJSONContext(http.MethodGet, "/health/ready", "")
	require.NoError(t, h.Readiness(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Dependencies["mongodb"].Status)
	assert.Equal(t, "no primary", resp.Dependencies["mongodb"].Error)
}

func TestHealthDependenciesHandler_NoChecks(t *testing.T) {
	c, rec := newJSONContext(http.MethodGet, "/health/ready", "")
	require.NoError(t, NewHealthDependenciesHandler(nil).Readiness(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
