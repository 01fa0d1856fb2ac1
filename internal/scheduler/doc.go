// Package scheduler implements the MIS scheduler (component I): it selects
// a pairwise conflict-free, dependency-eligible PR set bounded by
// maxParallelPRs, offering a greedy priority/complexity-ordered algorithm
// (the default) and a maximal-by-degree algorithm that yields larger sets
// on dense conflict graphs. Results are cached by a hash of the sorted
// candidate id list until the cache TTL expires or InvalidateCache is
// called; the scheduler does not observe dependency-graph changes itself.
package scheduler
