// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "sort"

// UnifiedGraph is the in-memory navigation graph for one root tree
// hierarchy. Node identifiers are node ids drawn from every tree in
// the hierarchy.
type UnifiedGraph struct {
	RootTreeID string
	TeamID     string

	nodes map[string]*NodeAttrs
	edges map[edgeKey]*EdgeAttrs

	// out preserves insertion order of targets per source so entry
	// point fallback and sibling expansion stay deterministic.
	out map[string][]string

	// nodeOrder preserves per-tree node insertion order; the first
	// node of a tree is its implicit entry point.
	nodeOrder map[string][]string
}

// NewUnifiedGraph creates an empty graph for a root tree.
func NewUnifiedGraph(rootTreeID, teamID string) *UnifiedGraph {
	return &UnifiedGraph{
		RootTreeID: rootTreeID,
		TeamID:     teamID,
		nodes:      make(map[string]*NodeAttrs),
		edges:      make(map[edgeKey]*EdgeAttrs),
		out:        make(map[string][]string),
		nodeOrder:  make(map[string][]string),
	}
}

// AddNode inserts or replaces a node.
func (g *UnifiedGraph) AddNode(attrs *NodeAttrs) {
	if _, exists := g.nodes[attrs.NodeID]; !exists {
		g.nodeOrder[attrs.TreeID] = append(g.nodeOrder[attrs.TreeID], attrs.NodeID)
	}
	g.nodes[attrs.NodeID] = attrs
}

// MergeNode overlays non-zero attributes onto an existing node, or
// adds the node when absent. Used by incremental patches.
func (g *UnifiedGraph) MergeNode(attrs *NodeAttrs) {
	existing, ok := g.nodes[attrs.NodeID]
	if !ok {
		g.AddNode(attrs)
		return
	}
	if attrs.Label != "" {
		existing.Label = attrs.Label
	}
	if attrs.NodeType != "" {
		existing.NodeType = attrs.NodeType
	}
	existing.IsEntryPoint = attrs.IsEntryPoint
	if attrs.ChildTreeID != "" {
		existing.ChildTreeID = attrs.ChildTreeID
	}
	if attrs.Verifications != nil {
		existing.Verifications = attrs.Verifications
	}
	if attrs.VerificationPassCondition != "" {
		existing.VerificationPassCondition = attrs.VerificationPassCondition
	}
	if attrs.Data != nil {
		existing.Data = attrs.Data
	}
	existing.Position = attrs.Position
}

// AddEdge inserts an edge, replacing any existing edge with the same
// (source, target) pair. One edge per ordered pair is an invariant.
func (g *UnifiedGraph) AddEdge(attrs *EdgeAttrs) {
	key := edgeKey{source: attrs.SourceNodeID, target: attrs.TargetNodeID}
	if _, exists := g.edges[key]; !exists {
		g.out[attrs.SourceNodeID] = append(g.out[attrs.SourceNodeID], attrs.TargetNodeID)
	}
	if attrs.Weight == 0 {
		attrs.Weight = DefaultEdgeWeight
	}
	g.edges[key] = attrs
}

// RemoveEdge deletes the (source, target) edge if present.
func (g *UnifiedGraph) RemoveEdge(source, target string) {
	key := edgeKey{source: source, target: target}
	if _, exists := g.edges[key]; !exists {
		return
	}
	delete(g.edges, key)
	targets := g.out[source]
	for i, t := range targets {
		if t == target {
			g.out[source] = append(targets[:i], targets[i+1:]...)
			break
		}
	}
}

// Node returns a node by id, or nil.
func (g *UnifiedGraph) Node(nodeID string) *NodeAttrs {
	return g.nodes[nodeID]
}

// Edge returns the (source, target) edge, or nil.
func (g *UnifiedGraph) Edge(source, target string) *EdgeAttrs {
	return g.edges[edgeKey{source: source, target: target}]
}

// OutEdges returns the outgoing edges of a node in insertion order.
func (g *UnifiedGraph) OutEdges(nodeID string) []*EdgeAttrs {
	targets := g.out[nodeID]
	edges := make([]*EdgeAttrs, 0, len(targets))
	for _, target := range targets {
		if e := g.edges[edgeKey{source: nodeID, target: target}]; e != nil {
			edges = append(edges, e)
		}
	}
	return edges
}

// Nodes returns every node, ordered by id for determinism.
func (g *UnifiedGraph) Nodes() []*NodeAttrs {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*NodeAttrs, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// Edges returns every edge, ordered by (source, target).
func (g *UnifiedGraph) Edges() []*EdgeAttrs {
	keys := make([]edgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].target < keys[j].target
	})
	out := make([]*EdgeAttrs, len(keys))
	for i, k := range keys {
		out[i] = g.edges[k]
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *UnifiedGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *UnifiedGraph) EdgeCount() int { return len(g.edges) }

// HasNode reports whether a node id exists.
func (g *UnifiedGraph) HasNode(nodeID string) bool {
	_, ok := g.nodes[nodeID]
	return ok
}

// EntryPoint returns the graph's first entry point: an explicit entry
// node of the root tree, else the root tree's first node, else nil.
func (g *UnifiedGraph) EntryPoint() *NodeAttrs {
	return g.treeEntryPoint(g.RootTreeID)
}

// treeEntryPoint resolves one tree's entry: the first explicitly
// flagged entry node in insertion order, falling back to the first
// node of the tree.
func (g *UnifiedGraph) treeEntryPoint(treeID string) *NodeAttrs {
	order := g.nodeOrder[treeID]
	for _, id := range order {
		if n := g.nodes[id]; n != nil && n.IsEntryPoint {
			return n
		}
	}
	if len(order) > 0 {
		return g.nodes[order[0]]
	}
	return nil
}

// NodesByLabel returns every node whose label matches exactly.
func (g *UnifiedGraph) NodesByLabel(label string) []*NodeAttrs {
	var out []*NodeAttrs
	for _, id := range g.sortedNodeIDs() {
		if g.nodes[id].Label == label {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

func (g *UnifiedGraph) sortedNodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
