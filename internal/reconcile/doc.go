/*
Package reconcile implements consistency checking and repair between the
cold store (git, source of truth) and the hot store (Redis, ephemeral
cache plus agent assignment state): component N.

It recognizes four structural conflict kinds (a hot state surviving past
a terminal cold state, a cold-state cache entry that disagrees with git,
a PR git knows about with no cache entry yet, and a hot-store entry for a
PR git no longer knows about). Two further informational kinds (stale
agent heartbeats and concurrent-update races during resolution) are
declared for completeness; the detection pass does not produce them.
ReconcileAfterCrash runs the full sweep used at
startup, since hot state never survives a process restart.
*/
package reconcile
