// Package query walks spiral curves over positioned nodes to find matches.
//
// A query seeds a traversal from the nodes nearest its start position, then
// steps an angle along a spiral curve. At each step it gathers unvisited
// nodes near the curve position and filters them against the query criteria.
// Traversal order is deterministic for a given spec and node set.
//
// Spiral traversal is a heuristic search, not a complete spatial index: a
// matching node that no step passes near is never found. Results are cached
// by spec; a cached result is not invalidated when the node set changes.
package query
