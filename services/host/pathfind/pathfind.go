// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathfind plans routes through a unified navigation graph.
// Paths are weighted shortest paths; every edge defaults to weight 1,
// including sibling shortcuts and cross-tree virtual edges, so "fewest
// screens" and "cheapest path" coincide unless edge data says
// otherwise.
package pathfind

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/AleutianAI/DeviceLab/services/host/graph"
)

// Pathfinding errors.
var (
	// ErrNoEntryPoint is returned when the current position is unknown
	// and the graph has no entry point to start from.
	ErrNoEntryPoint = errors.New("pathfind: graph has no entry point")

	// ErrNoTarget is returned when neither a target node id nor a
	// label was given.
	ErrNoTarget = errors.New("pathfind: no target specified")
)

// TargetNotFoundError is returned when the requested target does not
// exist in the graph.
type TargetNotFoundError struct {
	Target string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("pathfind: target %q not found", e.Target)
}

// AmbiguousTargetError is returned when a target label matches more
// than one node.
type AmbiguousTargetError struct {
	Label   string
	NodeIDs []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("pathfind: label %q matches %d nodes", e.Label, len(e.NodeIDs))
}

// PathNotFoundError is returned when the target is unreachable from
// the start node.
type PathNotFoundError struct {
	FromNodeID string
	ToNodeID   string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("pathfind: no path from %s to %s", e.FromNodeID, e.ToNodeID)
}

// Transition is one step of a planned path.
type Transition struct {
	From *graph.NodeAttrs
	To   *graph.NodeAttrs
	Edge *graph.EdgeAttrs
}

// ResolveStart resolves the starting node: the current node when known
// to the graph, else the graph's entry point.
func ResolveStart(g *graph.UnifiedGraph, currentNodeID string) (*graph.NodeAttrs, error) {
	if currentNodeID != "" {
		if node := g.Node(currentNodeID); node != nil {
			return node, nil
		}
	}
	if entry := g.EntryPoint(); entry != nil {
		return entry, nil
	}
	return nil, ErrNoEntryPoint
}

// ResolveTarget resolves the target node: an explicit node id wins,
// else the unique node carrying the label.
func ResolveTarget(g *graph.UnifiedGraph, targetNodeID, targetLabel string) (*graph.NodeAttrs, error) {
	if targetNodeID != "" {
		if node := g.Node(targetNodeID); node != nil {
			return node, nil
		}
		return nil, &TargetNotFoundError{Target: targetNodeID}
	}
	if targetLabel == "" {
		return nil, ErrNoTarget
	}
	matches := g.NodesByLabel(targetLabel)
	switch len(matches) {
	case 0:
		return nil, &TargetNotFoundError{Target: targetLabel}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.NodeID
		}
		return nil, &AmbiguousTargetError{Label: targetLabel, NodeIDs: ids}
	}
}

// FindPath plans the shortest path from the current position to the
// target. An empty transition list means the device is already there.
func FindPath(g *graph.UnifiedGraph, currentNodeID, targetNodeID, targetLabel string) ([]Transition, error) {
	start, err := ResolveStart(g, currentNodeID)
	if err != nil {
		return nil, err
	}
	target, err := ResolveTarget(g, targetNodeID, targetLabel)
	if err != nil {
		return nil, err
	}
	if start.NodeID == target.NodeID {
		return []Transition{}, nil
	}
	return dijkstra(g, start, target)
}

// pqItem is one entry of the priority queue.
type pqItem struct {
	nodeID string
	dist   int
	index  int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool { return pq[i].dist < pq[j].dist }

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

func dijkstra(g *graph.UnifiedGraph, start, target *graph.NodeAttrs) ([]Transition, error) {
	dist := map[string]int{start.NodeID: 0}
	prev := map[string]*graph.EdgeAttrs{}
	visited := map[string]bool{}

	pq := &priorityQueue{{nodeID: start.NodeID, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*pqItem)
		if visited[current.nodeID] {
			continue
		}
		visited[current.nodeID] = true
		if current.nodeID == target.NodeID {
			break
		}
		for _, edge := range g.OutEdges(current.nodeID) {
			next := edge.TargetNodeID
			if visited[next] {
				continue
			}
			candidate := current.dist + edge.Weight
			if best, ok := dist[next]; !ok || candidate < best {
				dist[next] = candidate
				prev[next] = edge
				heap.Push(pq, &pqItem{nodeID: next, dist: candidate})
			}
		}
	}

	if !visited[target.NodeID] {
		return nil, &PathNotFoundError{FromNodeID: start.NodeID, ToNodeID: target.NodeID}
	}

	// Walk predecessors back to the start, then reverse.
	var reversed []Transition
	for at := target.NodeID; at != start.NodeID; {
		edge := prev[at]
		reversed = append(reversed, Transition{
			From: g.Node(edge.SourceNodeID),
			To:   g.Node(edge.TargetNodeID),
			Edge: edge,
		})
		at = edge.SourceNodeID
	}
	path := make([]Transition, len(reversed))
	for i := range reversed {
		path[i] = reversed[len(reversed)-1-i]
	}
	return path, nil
}
