// Package assignment implements the agent assignment manager (component J):
// it filters agents eligible to take on new work, matches selected PRs
// against them using one of four strategies (first-available,
// load-balanced, capability-matched, round-robin), and records the
// resulting assignments with an estimated duration.
package assignment
