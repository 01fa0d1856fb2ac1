// Package conflict implements the file-overlap conflict detector
// (component H): given a PR population's file sets, it builds a
// file-to-owners index and a pair-keyed conflicting-files matrix, caching
// positive results by pair key. DetectConflicts always clears prior state
// before rebuilding.
package conflict
