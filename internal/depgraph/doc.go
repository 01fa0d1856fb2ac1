// Package depgraph implements the PR dependency graph (component G): a
// finite DAG keyed by PR id, with a reverse-edge (dependents) cache kept
// consistent with the forward edges, cycle detection at load time, and
// availability queries used by the scheduler and assignment manager.
package depgraph
