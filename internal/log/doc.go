/*
Package log provides structured logging for the orchestration engine using
zerolog.

It wraps zerolog to provide JSON-structured logging with component-specific
child loggers, configurable levels, and helpers for the identifiers that
recur across the engine (pr_id, agent_id). All logs include timestamps and
support filtering by severity for production debugging.

Initialize once via Init, then derive component loggers:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Str("pr_id", "PR-001").Msg("selected for scheduling")
*/
package log
