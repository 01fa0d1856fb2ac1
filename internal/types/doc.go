/*
Package types defines the core data structures shared across the orchestration
engine.

It holds the PR work-item model, its hot/cold state partition, file leases,
agent records, and the transition-rule tuples the state machine treats as
data. Every other package imports this one for its domain vocabulary; it
imports nothing from the rest of the engine.

# Core Types

  - PR: a unit of work with a durable cold state, an optional ephemeral hot
    state, dependencies, and file sets.
  - ColdState / HotState: the two halves of the state partition (§3).
  - Priority, Lease, Agent, TransitionRule: supporting vocabulary.

All types are JSON-serializable since both stores round-trip through JSON
(the cold document's frontmatter and the hot store's hash/string values).
*/
package types
