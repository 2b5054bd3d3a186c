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

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// Build constructs the unified graph from a tree hierarchy. The first
// tree is the root; the rest are sub-trees in any order. Building is
// phased:
//
//  1. Nodes of every tree.
//  2. Intra-tree edges: forward, reverse and conditional admission.
//  3. Sibling shortcuts for parents that opted in.
//  4. Virtual ENTER_SUBTREE / EXIT_SUBTREE edges stitching sub-trees.
//  5. Sibling lists on conditional edges.
//
// Edges referencing nodes outside the hierarchy fail the build with
// ErrNodeNotFound; a dangling default_action_set_id fails with
// MissingActionSetError.
func Build(rootTreeID, teamID string, trees []datatypes.TreeData) (*UnifiedGraph, error) {
	if len(trees) == 0 {
		return nil, ErrEmptyHierarchy
	}
	g := NewUnifiedGraph(rootTreeID, teamID)

	for _, tree := range trees {
		if tree.TreeInfo.TreeDepth > datatypes.MaxTreeDepth {
			return nil, &DepthExceededError{
				TreeID: tree.TreeID,
				Depth:  tree.TreeInfo.TreeDepth,
				Max:    datatypes.MaxTreeDepth,
			}
		}
		addTreeNodes(g, tree)
	}
	for _, tree := range trees {
		if err := addTreeEdges(g, tree); err != nil {
			return nil, err
		}
	}
	for _, tree := range trees {
		addSiblingShortcuts(g, tree)
	}
	if err := stitchSubtrees(g); err != nil {
		return nil, err
	}
	annotateConditionalSiblings(g)

	slog.Debug("unified graph built",
		"root_tree_id", rootTreeID,
		"trees", len(trees),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount())
	return g, nil
}

func addTreeNodes(g *UnifiedGraph, tree datatypes.TreeData) {
	for i := range tree.Nodes {
		node := &tree.Nodes[i]
		g.AddNode(&NodeAttrs{
			NodeID:                    node.NodeID,
			Label:                     node.Label,
			NodeType:                  node.NodeType,
			IsEntryPoint:              node.IsEntryPoint(),
			TreeID:                    tree.TreeID,
			TreeName:                  tree.TreeInfo.Name,
			TreeDepth:                 tree.TreeInfo.TreeDepth,
			ChildTreeID:               node.ChildTreeID,
			Verifications:             node.Verifications,
			VerificationPassCondition: node.VerificationPassCondition,
			Position:                  node.Position,
			Data:                      node.Data,
		})
	}
}

// addTreeEdges admits one tree's edges. An edge is conditional when
// two or more edges leaving the same source share a default action set
// id: pressing the same button can land on different screens depending
// on device state. Conditional edges are admitted even when their own
// default set carries no actions, because execution borrows the
// actions from the first sibling that has them.
func addTreeEdges(g *UnifiedGraph, tree datatypes.TreeData) error {
	shared := sharedDefaultSets(tree.Edges)

	for i := range tree.Edges {
		edge := &tree.Edges[i]
		if !g.HasNode(edge.SourceNodeID) {
			return fmt.Errorf("%w: edge %s source %s", ErrNodeNotFound, edge.EdgeID, edge.SourceNodeID)
		}
		if !g.HasNode(edge.TargetNodeID) {
			return fmt.Errorf("%w: edge %s target %s", ErrNodeNotFound, edge.EdgeID, edge.TargetNodeID)
		}
		if edge.DefaultActionSetID != "" && edge.DefaultActionSet() == nil {
			return &MissingActionSetError{
				EdgeID:             edge.EdgeID,
				DefaultActionSetID: edge.DefaultActionSetID,
			}
		}

		conditional := shared[groupKey{source: edge.SourceNodeID, setID: edge.DefaultActionSetID}] > 1 &&
			edge.DefaultActionSetID != ""

		forward := len(edge.ActionSets) == 0 || conditional
		if set := edge.DefaultActionSet(); set != nil && len(set.Actions) > 0 {
			forward = true
		}
		if forward {
			g.AddEdge(&EdgeAttrs{
				EdgeID:                 edge.EdgeID,
				SourceNodeID:           edge.SourceNodeID,
				TargetNodeID:           edge.TargetNodeID,
				EdgeType:               edgeTypeOrDefault(edge.EdgeType),
				TreeID:                 tree.TreeID,
				TreeName:               tree.TreeInfo.Name,
				ActionSets:             edge.ActionSets,
				DefaultActionSetID:     edge.DefaultActionSetID,
				FinalWaitTime:          edge.FinalWaitTime,
				IsForwardEdge:          true,
				IsConditional:          conditional,
				EnableSiblingShortcuts: edge.SiblingShortcutsEnabled(),
				Data:                   edge.Data,
			})
		}

		if reverse := edge.ReverseActionSet(); reverse != nil && len(reverse.Actions) > 0 {
			g.AddEdge(&EdgeAttrs{
				EdgeID:             edge.EdgeID + "_reverse",
				SourceNodeID:       edge.TargetNodeID,
				TargetNodeID:       edge.SourceNodeID,
				EdgeType:           edgeTypeOrDefault(edge.EdgeType),
				TreeID:             tree.TreeID,
				TreeName:           tree.TreeInfo.Name,
				ActionSets:         []datatypes.ActionSet{*reverse},
				DefaultActionSetID: reverse.ID,
				FinalWaitTime:      edge.FinalWaitTime,
				IsReverseEdge:      true,
				Data:               edge.Data,
			})
		}
	}
	return nil
}

// groupKey identifies a conditional group: edges from one source that
// share a default action set.
type groupKey struct {
	source string
	setID  string
}

func sharedDefaultSets(edges []datatypes.Edge) map[groupKey]int {
	counts := make(map[groupKey]int)
	for i := range edges {
		if edges[i].DefaultActionSetID == "" {
			continue
		}
		counts[groupKey{source: edges[i].SourceNodeID, setID: edges[i].DefaultActionSetID}]++
	}
	return counts
}

// addSiblingShortcuts expands shortcut edges between the children of a
// parent whose outgoing edges opted in. Each shortcut copies the
// parent-to-target edge's action sets, so reaching a sibling replays
// the same press sequence the parent would use.
func addSiblingShortcuts(g *UnifiedGraph, tree datatypes.TreeData) {
	byParent := make(map[string][]*datatypes.Edge)
	for i := range tree.Edges {
		edge := &tree.Edges[i]
		if edge.SiblingShortcutsEnabled() {
			byParent[edge.SourceNodeID] = append(byParent[edge.SourceNodeID], edge)
		}
	}

	for parent, children := range byParent {
		if len(children) < 2 {
			continue
		}
		for _, from := range children {
			for _, to := range children {
				if from.TargetNodeID == to.TargetNodeID {
					continue
				}
				// A real edge between the siblings wins over a shortcut.
				if g.Edge(from.TargetNodeID, to.TargetNodeID) != nil {
					continue
				}
				g.AddEdge(&EdgeAttrs{
					EdgeID:             fmt.Sprintf("shortcut_%s_%s", from.TargetNodeID, to.TargetNodeID),
					SourceNodeID:       from.TargetNodeID,
					TargetNodeID:       to.TargetNodeID,
					EdgeType:           datatypes.EdgeTypeSiblingShortcut,
					TreeID:             tree.TreeID,
					TreeName:           tree.TreeInfo.Name,
					ActionSets:         to.ActionSets,
					DefaultActionSetID: to.DefaultActionSetID,
					FinalWaitTime:      to.FinalWaitTime,
					IsForwardEdge:      true,
					IsSiblingShortcut:  true,
					Data: map[string]any{
						"shortcut_parent": parent,
					},
				})
			}
		}
	}
}

// stitchSubtrees adds the virtual cross-tree edges. Every node that
// mounts a child tree gets an ENTER_SUBTREE edge to the child's entry
// point and an EXIT_SUBTREE edge back. Both carry a single synthetic
// action the executor recognizes as a position jump rather than a
// device command.
func stitchSubtrees(g *UnifiedGraph) error {
	for _, node := range g.Nodes() {
		if node.ChildTreeID == "" {
			continue
		}
		entry := g.treeEntryPoint(node.ChildTreeID)
		if entry == nil {
			return fmt.Errorf("%w: subtree %s mounted at %s has no nodes",
				ErrNodeNotFound, node.ChildTreeID, node.NodeID)
		}
		g.AddEdge(virtualEdge(datatypes.EdgeTypeEnterSubtree, datatypes.CommandEnterSubtree, node, entry))
		g.AddEdge(virtualEdge(datatypes.EdgeTypeExitSubtree, datatypes.CommandExitSubtree, entry, node))
	}
	return nil
}

func virtualEdge(edgeType, command string, source, target *NodeAttrs) *EdgeAttrs {
	setID := fmt.Sprintf("%s_%s_%s", command, source.NodeID, target.NodeID)
	return &EdgeAttrs{
		EdgeID:       fmt.Sprintf("%s_%s_%s", edgeType, source.NodeID, target.NodeID),
		SourceNodeID: source.NodeID,
		TargetNodeID: target.NodeID,
		EdgeType:     edgeType,
		TreeID:       source.TreeID,
		ActionSets: []datatypes.ActionSet{{
			ID:    setID,
			Label: edgeType,
			Actions: []datatypes.Action{{
				Command: command,
				Params: map[string]any{
					"target_tree_id": target.TreeID,
					"target_node_id": target.NodeID,
				},
			}},
		}},
		DefaultActionSetID: setID,
		IsForwardEdge:      true,
		IsVirtual:          true,
		SourceTreeID:       source.TreeID,
		TargetTreeID:       target.TreeID,
	}
}

// annotateConditionalSiblings records, on every conditional edge, the
// target nodes of the other edges in its group. Execution consults the
// list to borrow actions and to rank landing candidates without
// re-scanning the adjacency.
func annotateConditionalSiblings(g *UnifiedGraph) {
	groups := make(map[groupKey][]*EdgeAttrs)
	for _, edge := range g.Edges() {
		if !edge.IsConditional {
			continue
		}
		key := groupKey{source: edge.SourceNodeID, setID: edge.DefaultActionSetID}
		groups[key] = append(groups[key], edge)
	}
	for _, group := range groups {
		for _, edge := range group {
			siblings := make([]string, 0, len(group)-1)
			for _, other := range group {
				if other.TargetNodeID != edge.TargetNodeID {
					siblings = append(siblings, other.TargetNodeID)
				}
			}
			edge.SiblingNodeIDs = siblings
		}
	}
}

func edgeTypeOrDefault(edgeType string) string {
	if edgeType == "" {
		return datatypes.EdgeTypeNavigation
	}
	return edgeType
}
