// Package coordination implements the coordination-mode manager
// (component K): it decides the current DISTRIBUTED/DEGRADED/ISOLATED
// regime from hot-store connection and health state, enforces a
// transition cooldown, and executes the edge action appropriate to each
// (from,to) pair — notifying peers over the hot store's pub/sub channel
// when available, or through a file-backed isolated handler otherwise.
// Demotion waits for a configured streak of worse readings; promotion to
// DISTRIBUTED happens on the first healthy reading.
package coordination
