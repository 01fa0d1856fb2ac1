// Package statemachine implements the PR lifecycle state machine (component
// D): a stateless operator that validates a requested transition against
// the transitions table, emits the transition event before committing, and
// invokes the cold committer only when the rule requires it. A commit
// failure reverts the reported new state; an event-emission failure never
// fails the transition, it only lands in a bounded ring buffer.
package statemachine
