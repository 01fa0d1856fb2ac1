// Package health implements the hot-store health monitor (component B): a
// single periodic ping task that classifies latency into healthy/degraded/
// unhealthy tiers and applies consecutive-failure hysteresis before
// flipping the official status, mirroring the retry-streak pattern used
// elsewhere in the engine for container health checks.
package health
