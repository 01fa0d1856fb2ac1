/*
Package supervisor is the engine's process-lifecycle singleton. It
constructs every component (hot-store client, health monitor,
coordination-mode manager, state machine, lease manager, cold store,
reconciler, sync coordinator, agent registry, scheduler, assignment
manager, dependency graph) and starts/stops them in the dependency order
described in the concurrency model: hot-store connection, health
monitoring, coordination mode, state machine, lease manager, sync
coordinator (including crash recovery), agent registry, scheduler.
*/
package supervisor
