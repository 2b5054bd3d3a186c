// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pathfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/graph"
)

func press(keys ...string) []datatypes.Action {
	out := make([]datatypes.Action, len(keys))
	for i, k := range keys {
		out[i] = datatypes.Action{Command: "press_key", Params: map[string]any{"key": k}}
	}
	return out
}

func edge(id, source, target, setID string, actions []datatypes.Action, reverse []datatypes.Action) datatypes.Edge {
	sets := []datatypes.ActionSet{{ID: setID, Actions: actions}}
	if reverse != nil {
		sets = append(sets, datatypes.ActionSet{ID: setID + "_rev", Actions: reverse})
	}
	return datatypes.Edge{
		EdgeID: id, SourceNodeID: source, TargetNodeID: target,
		DefaultActionSetID: setID, ActionSets: sets,
	}
}

// twoTreeGraph: home -> live (mounts tree_live: fullscreen -> audio
// menu), home -> settings with reverse actions.
func twoTreeGraph(t *testing.T) *graph.UnifiedGraph {
	t.Helper()
	root := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_live", Label: "live", ChildTreeID: "tree_live"},
			{NodeID: "n_settings", Label: "settings"},
		},
		Edges: []datatypes.Edge{
			edge("e_hl", "n_home", "n_live", "as_live", press("RIGHT", "OK"), press("BACK")),
			edge("e_hs", "n_home", "n_settings", "as_settings", press("DOWN", "OK"), press("BACK")),
		},
	}
	live := datatypes.TreeData{
		TreeID:   "tree_live",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_live", ParentTreeID: "tree_root", TreeDepth: 1},
		Nodes: []datatypes.Node{
			{NodeID: "n_fullscreen", Label: "fullscreen"},
			{NodeID: "n_audio", Label: "audio_menu"},
		},
		Edges: []datatypes.Edge{
			edge("e_fa", "n_fullscreen", "n_audio", "as_audio", press("OK"), nil),
		},
	}
	g, err := graph.Build("tree_root", "team1", []datatypes.TreeData{root, live})
	require.NoError(t, err)
	return g
}

func TestFindPath_AcrossSubtree(t *testing.T) {
	g := twoTreeGraph(t)

	path, err := FindPath(g, "n_home", "", "audio_menu")
	require.NoError(t, err)
	require.Len(t, path, 3)

	assert.Equal(t, "n_live", path[0].To.NodeID)
	assert.Equal(t, datatypes.EdgeTypeEnterSubtree, path[1].Edge.EdgeType)
	assert.Equal(t, "n_fullscreen", path[1].To.NodeID)
	assert.Equal(t, "n_audio", path[2].To.NodeID)
}

func TestFindPath_EntryPointFallback(t *testing.T) {
	g := twoTreeGraph(t)

	// Unknown current position starts at the entry point.
	path, err := FindPath(g, "", "n_settings", "")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, "n_home", path[0].From.NodeID)

	// A stale node id nobody knows behaves the same.
	path, err = FindPath(g, "n_gone", "n_settings", "")
	require.NoError(t, err)
	assert.Equal(t, "n_home", path[0].From.NodeID)
}

func TestFindPath_AlreadyThere(t *testing.T) {
	g := twoTreeGraph(t)

	path, err := FindPath(g, "n_settings", "n_settings", "")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestFindPath_ReverseEdgeUsed(t *testing.T) {
	g := twoTreeGraph(t)

	path, err := FindPath(g, "n_settings", "n_live", "")
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.True(t, path[0].Edge.IsReverseEdge)
	assert.Equal(t, "n_home", path[0].To.NodeID)
}

func TestResolveTarget_Errors(t *testing.T) {
	g := twoTreeGraph(t)

	_, err := FindPath(g, "n_home", "n_ghost", "")
	var notFound *TargetNotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = FindPath(g, "n_home", "", "no_such_label")
	assert.ErrorAs(t, err, &notFound)

	_, err = FindPath(g, "n_home", "", "")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestResolveTarget_AmbiguousLabel(t *testing.T) {
	tree := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_a", Label: "details"},
			{NodeID: "n_b", Label: "details"},
		},
		Edges: []datatypes.Edge{
			edge("e_a", "n_home", "n_a", "as_a", press("1"), nil),
			edge("e_b", "n_home", "n_b", "as_b", press("2"), nil),
		},
	}
	g, err := graph.Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	_, err = FindPath(g, "n_home", "", "details")
	var ambiguous *AmbiguousTargetError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.NodeIDs, 2)
}

func TestFindPath_Disconnected(t *testing.T) {
	tree := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_island", Label: "island"},
		},
	}
	g, err := graph.Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	_, err = FindPath(g, "n_home", "n_island", "")
	var notFound *PathNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "n_island", notFound.ToNodeID)
}

func TestFindPath_NoEntryPoint(t *testing.T) {
	g := graph.NewUnifiedGraph("tree_root", "team1")
	_, err := FindPath(g, "", "n_x", "")
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestFindPath_ConditionalEdgeTraversable(t *testing.T) {
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
				EdgeID: "e_p", SourceNodeID: "n_home", TargetNodeID: "n_player",
				DefaultActionSetID: "as_ok",
				ActionSets:         []datatypes.ActionSet{{ID: "as_ok", Actions: press("OK")}},
			},
			{
				EdgeID: "e_r", SourceNodeID: "n_home", TargetNodeID: "n_resume",
				DefaultActionSetID: "as_ok",
				ActionSets:         []datatypes.ActionSet{{ID: "as_ok"}},
			},
		},
	}
	g, err := graph.Build("tree_root", "team1", []datatypes.TreeData{tree})
	require.NoError(t, err)

	// The actionless conditional edge is a legal path step.
	path, err := FindPath(g, "n_home", "n_resume", "")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.True(t, path[0].Edge.IsConditional)
	assert.False(t, path[0].Edge.HasActions())
}

func TestValidationSequence(t *testing.T) {
	root := datatypes.TreeData{
		TreeID:   "tree_root",
		TreeInfo: datatypes.NavigationTree{TreeID: "tree_root", IsRootTree: true},
		Nodes: []datatypes.Node{
			{NodeID: "n_home", Label: "home", NodeType: datatypes.NodeTypeEntry},
			{NodeID: "n_live", Label: "live", Verifications: []datatypes.Verification{
				{Command: "waitForTextToAppear", Expected: "LIVE"},
			}},
			{NodeID: "n_settings", Label: "settings"},
		},
		Edges: []datatypes.Edge{
			{
				EdgeID: "e_hl", SourceNodeID: "n_home", TargetNodeID: "n_live",
				DefaultActionSetID: "as_live",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_live", Label: "goto_live", Actions: press("OK"),
						UseVerificationsForKPI: true},
					{ID: "as_live_rev", Label: "goto_live", Actions: press("BACK"),
						KPIReferences: []string{"kpi_zap"}},
				},
			},
			{
				EdgeID: "e_hs", SourceNodeID: "n_home", TargetNodeID: "n_settings",
				DefaultActionSetID: "as_settings",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_settings", Label: "goto_settings", Actions: press("DOWN"),
						KPIReferences: []string{"kpi_settings"}},
				},
			},
			{
				// No KPI association: never part of the sequence.
				EdgeID: "e_sl", SourceNodeID: "n_settings", TargetNodeID: "n_live",
				DefaultActionSetID: "as_plain",
				ActionSets: []datatypes.ActionSet{
					{ID: "as_plain", Label: "plain_hop", Actions: press("UP")},
				},
			},
		},
	}
	g, err := graph.Build("tree_root", "team1", []datatypes.TreeData{root})
	require.NoError(t, err)

	steps := ValidationSequence(g, "tree_root")
	require.Len(t, steps, 2)

	byLabel := map[string]ValidationStep{}
	for _, s := range steps {
		// Forward direction wins when a label exists in both.
		assert.False(t, s.Edge.IsReverseEdge)
		byLabel[s.Label] = s
	}

	live := byLabel["goto_live"]
	require.NotNil(t, live.Edge)
	// use_verifications_for_kpi pulls the target node's verifications.
	require.Len(t, live.Verifications, 1)
	assert.Equal(t, "waitForTextToAppear", live.Verifications[0].Command)

	assert.Equal(t, []string{"kpi_settings"}, byLabel["goto_settings"].KPIReferences)
}
