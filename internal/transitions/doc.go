// Package transitions holds the engine's closed, ordered transition table
// (§4.3, §4.4): the set of valid (from,to) edges between cold and hot
// states, whether each requires a cold-store commit, and a human
// description used in commit messages. The table is data; validate,
// availability, and commit-required checks all derive from it rather than
// branching in code.
package transitions
