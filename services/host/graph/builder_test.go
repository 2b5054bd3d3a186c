// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

func actions(commands ...string) []datatypes.Action {
	out := make([]datatypes.Action, len(commands))
	for i, c := range commands {
		out[i] = datatypes.Action{Command: "press_key", Params: map[string]any{"key": c}}
	}
	return out
}

// menuTree is a root tree: ENTRY -> home, home -> {settings, search},
// with a reverse action set on home->settings.
func menuTree() datatypes.TreeData {
	return datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true, Name: "main"},
		Nodes: []datatypes.Node{
			{NodeID: "n_entry", Label: "ENTRY"},
			{NodeID: "n_home", Label: "home"},
			{NodeID: "n_settings", Label: "settings"},
			{NodeID: "n_search", Label: "search"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_entry_home", SourceNodeID: "n_entry", TargetNodeID: "n_home",
				DefaultActionSetID: "as_entry",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_entry", Actions: actions("HOME")},
				},
			},
			{
				EdgeID: "e_home_settings", SourceNodeID: "n_home", TargetNodeID: "n_settings",
				DefaultActionSetID: "as_fwd",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_fwd", Actions: actions("RIGHT", "OK")},
					{ID: "as_rev", Actions: actions("BACK")},
				},
			},
			{
				EdgeID: "e_home_search", SourceNodeID: "n_home", TargetNodeID: "n_search",
				DefaultActionSetID: "as_search",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_search", Actions: actions("LEFT", "OK")},
					{ID: "as_search_rev"}, // empty reverse set: no reverse edge
				},
			},
		},
	}
}

func TestBuild_ForwardAndReverseEdges(t *testing.T) {
	g, err := Build("tree_root", "team1", []datatypes.TreeData{menuTree()})
	require.NoError(t, err)

	assert.Equal(t, 4, g.NodeCount())

	fwd := g.Edge("n_home", "n_settings")
	require.NotNil(t, fwd)
	assert.True(t, fwd.IsForwardEdge)
	assert.False(t, fwd.IsReverseEdge)
	assert.Len(t, fwd.ActionSets, 2)

	rev := g.Edge("n_settings", "n_home")
	require.NotNil(t, rev)
	assert.True(t, rev.IsReverseEdge)
	assert.Equal(t, "e_home_settings_reverse", rev.EdgeID)
	// The reverse edge carries only the reverse set.
	require.Len(t, rev.ActionSets, 1)
	assert.Equal(t, "as_rev", rev.ActionSets[0].ID)
	assert.True(t, rev.HasActions())

	// Empty reverse set produces no edge.
	assert.Nil(t, g.Edge("n_search", "n_home"))
}

func TestBuild_PlaceholderEdgeWithoutActionSets(t *testing.T) {
	tree := menuTree()
	tree.Edges = append(tree.Edges, datatypes.Edge{
		EdgeID: "e_placeholder", SourceNodeID: "n_settings", TargetNodeID: "n_search",
	})

	g, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	edge := g.Edge("n_settings", "n_search")
	require.NotNil(t, edge)
	assert.True(t, edge.IsForwardEdge)
	assert.False(t, edge.HasActions())
	assert.Equal(t, datatypes.EdgeTypeNavigation, edge.EdgeType)
	assert.Equal(t, DefaultEdgeWeight, edge.Weight)
}

func TestBuild_ConditionalEdges(t *testing.T) {
	// Two edges from n_home share default set as_ok: pressing OK lands
	// on either player or resume depending on device state. Only one
	// of them carries the actions.
	tree := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_player", Label: "player"},
			{NodeID: "n_resume", Label: "resume_dialog"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_home_player", SourceNodeID: "n_home", TargetNodeID: "n_player",
				DefaultActionSetID: "as_ok",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_ok", Actions: actions("OK")},
				},
			},
			{
				EdgeID: "e_home_resume", SourceNodeID: "n_home", TargetNodeID: "n_resume",
				DefaultActionSetID: "as_ok",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_ok"}, // no actions of its own
				},
			},
		},
	}

	g, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	player := g.Edge("n_home", "n_player")
	resume := g.Edge("n_home", "n_resume")
	require.NotNil(t, player)
	require.NotNil(t, resume)

	assert.True(t, player.IsConditional)
	assert.True(t, resume.IsConditional)

	// The actionless conditional edge is still admitted.
	assert.False(t, resume.HasActions())

	assert.Equal(t, []string{"n_resume"}, player.SiblingNodeIDs)
	assert.Equal(t, []string{"n_player"}, resume.SiblingNodeIDs)
}

func TestBuild_SiblingShortcuts(t *testing.T) {
	enabled := true
	tree := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_menu", Label: "menu", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_a", Label: "a"},
			{NodeID: "n_b", Label: "b"},
			{NodeID: "n_c", Label: "c"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_a", SourceNodeID: "n_menu", TargetNodeID: "n_a",
				DefaultActionSetID:     "as_a",
				EnableSiblingShortcuts: &enabled,
				ActionSets:             []datatypes.ActionSet{{ID: "as_a", Actions: actions("1")}},
			},
			{
				EdgeID: "e_b", SourceNodeID: "n_menu", TargetNodeID: "n_b",
				DefaultActionSetID:     "as_b",
				EnableSiblingShortcuts: &enabled,
				ActionSets:             []datatypes.ActionSet{{ID: "as_b", Actions: actions("2")}},
			},
			{
				EdgeID: "e_c", SourceNodeID: "n_menu", TargetNodeID: "n_c",
				DefaultActionSetID:     "as_c",
				EnableSiblingShortcuts: &enabled,
				ActionSets:             []datatypes.ActionSet{{ID: "as_c", Actions: actions("3")}},
			},
			// A real edge between siblings blocks the shortcut.
			{
				EdgeID: "e_ab", SourceNodeID: "n_a", TargetNodeID: "n_b",
				DefaultActionSetID: "as_ab",
				ActionSets:         []datatypes.ActionSet{{ID: "as_ab", Actions: actions("RIGHT")}},
			},
		},
	}

	g, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	// Three children: 3*2 ordered pairs, minus the real a->b edge.
	shortcuts := 0
	for _, e := range g.Edges() {
		if e.IsSiblingShortcut {
			shortcuts++
			assert.Equal(t, datatypes.EdgeTypeSiblingShortcut, e.EdgeType)
		}
	}
	assert.Equal(t, 5, shortcuts)

	// The shortcut copies the parent-to-target press sequence.
	shortcut := g.Edge("n_b", "n_c")
	require.NotNil(t, shortcut)
	assert.True(t, shortcut.IsSiblingShortcut)
	assert.Equal(t, "as_c", shortcut.DefaultActionSetID)

	real := g.Edge("n_a", "n_b")
	require.NotNil(t, real)
	assert.False(t, real.IsSiblingShortcut)
	assert.Equal(t, "e_ab", real.EdgeID)
}

func TestBuild_SubtreeStitching(t *testing.T) {
	root := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_settings", Label: "settings", ChildTreeID: "tree_settings"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_hs", SourceNodeID: "n_home", TargetNodeID: "n_settings",
				DefaultActionSetID: "as",
				ActionSets:         []datatypes.ActionSet{{ID: "as", Actions: actions("OK")}},
			},
		},
	}
	child := datatypes.TreeData{
		TreeID:   "tree_settings",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_settings", ParentTreeID: "tree_root", TreeDepth: 1},
		Nodes: []datatypes.Node{
			{NodeID: "n_wifi", Label: "wifi"},
			{NodeID: "n_display", Label: "display"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_wd", SourceNodeID: "n_wifi", TargetNodeID: "n_display",
				DefaultActionSetID: "as2",
				ActionSets:         []datatypes.ActionSet{{ID: "as2", Actions: actions("DOWN")}},
			},
		},
	}

	g, err := Build("tree_root", "team1", []datatypes.TreeData{root, child})
	require.NoError(t, err)

	// No explicit entry in the child tree: its first node is the entry.
	enter := g.Edge("n_settings", "n_wifi")
	require.NotNil(t, enter)
	assert.True(t, enter.IsVirtual)
	assert.Equal(t, datatypes.EdgeTypeEnterSubtree, enter.EdgeType)
	assert.Equal(t, "tree_root", enter.SourceTreeID)
	assert.Equal(t, "tree_settings", enter.TargetTreeID)
	require.True(t, enter.HasActions())
	assert.Equal(t, datatypes.CommandEnterSubtree, enter.DefaultActionSet().Actions[0].Command)

	exit := g.Edge("n_wifi", "n_settings")
	require.NotNil(t, exit)
	assert.True(t, exit.IsVirtual)
	assert.Equal(t, datatypes.EdgeTypeExitSubtree, exit.EdgeType)
	assert.Equal(t, datatypes.CommandExitSubtree, exit.DefaultActionSet().Actions[0].Command)
}

func TestBuild_EntryPointResolution(t *testing.T) {
	g, err := Build("tree_root", "team1", []datatypes.TreeData{menuTree()})
	require.NoError(t, err)

	entry := g.EntryPoint()
	require.NotNil(t, entry)
	assert.Equal(t, "n_entry", entry.NodeID)
	assert.True(t, entry.IsEntryPoint)
}

func TestBuild_Errors(t *testing.T) {
	t.Run("empty hierarchy", func(t *testing.T) {
		_, err := Build("tree_root", "team1", nil)
		assert.ErrorIs(t, err, ErrEmptyHierarchy)
	})

	t.Run("dangling edge target", func(t *testing.T) {
		tree := menuTree()
		tree.Edges[0].TargetNodeID = "n_ghost"
		_, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("missing default action set", func(t *testing.T) {
		tree := menuTree()
		tree.Edges[0].DefaultActionSetID = "as_missing"
		_, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
		var missing *MissingActionSetError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "e_entry_home", missing.EdgeID)
	})

	t.Run("depth exceeded", func(t *testing.T) {
		tree := menuTree()
		tree.TreeInfo.TreeDepth = datatypes.MaxTreeDepth + 1
		_, err := Build("tree_root", "team1", []datatypes.TreeData{tree})
		var depth *DepthExceededError
		require.ErrorAs(t, err, &depth)
		assert.Equal(t, datatypes.MaxTreeDepth, depth.Max)
	})
}

func TestGraph_RemoveEdgeAndPatch(t *testing.T) {
	g, err := Build("tree_root", "team1", []datatypes.TreeData{menuTree()})
	require.NoError(t, err)

	require.NotNil(t, g.Edge("n_home", "n_search"))
	g.RemoveEdge("n_home", "n_search")
	assert.Nil(t, g.Edge("n_home", "n_search"))
	for _, e := range g.OutEdges("n_home") {
		assert.NotEqual(t, "n_search", e.TargetNodeID)
	}

	g.MergeNode(&NodeAttrs{NodeID: "n_search", Label: "global_search", TreeID: "tree_root"})
	assert.Equal(t, "global_search", g.Node("n_search").Label)
	assert.Empty(t, g.NodesByLabel("search"))
	assert.Len(t, g.NodesByLabel("global_search"), 1)
}
