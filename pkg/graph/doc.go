// Package graph builds and analyzes entity relationship graphs.
//
// A graph is derived from the canonical entities of a project and their
// co-occurrence in documents: two entities mentioned in the same document
// are associated, and the number of shared documents becomes the edge
// weight. Graphs are immutable snapshots; filtering, subgraph extraction,
// centrality, community detection and path finding all work on an already
// built graph and return new values.
package graph
