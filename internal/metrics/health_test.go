package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealthChecker() {
	healthChecker.mu.Lock()
	healthChecker.components = make(map[string]ComponentHealth)
	healthChecker.mu.Unlock()
}

func TestGetHealth_HealthyWhenAllComponentsHealthy(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("hotstore", true, "connected")
	RegisterComponent("coldstore", true, "loaded")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["hotstore"])
}

func TestGetHealth_UnhealthyWhenAnyComponentUnhealthy(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("hotstore", false, "connection refused")

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Components["hotstore"], "connection refused")
}

func TestGetReadiness_NotReadyUntilCriticalComponentsRegistered(t *testing.T) {
	resetHealthChecker()

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)

	RegisterComponent("hotstore", true, "connected")
	RegisterComponent("coldstore", true, "loaded")

	readiness = GetReadiness()
	assert.Equal(t, "ready", readiness.Status)
}

func TestUpdateComponent_OverwritesPreviousState(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("hotstore", true, "connected")
	UpdateComponent("hotstore", false, "reconnecting")

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	require.Contains(t, health.Components, "hotstore")
	assert.Contains(t, health.Components["hotstore"], "reconnecting")
}
