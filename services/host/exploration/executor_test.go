// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package exploration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/cache"
	"github.com/AleutianAI/DeviceLab/services/host/controllers"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/navigation"
	"github.com/AleutianAI/DeviceLab/services/host/planner"
	"github.com/AleutianAI/DeviceLab/services/host/store"
	"github.com/AleutianAI/DeviceLab/services/host/tasks"
)

// ----- fakes -----------------------------------------------------------------

type fakeRemote struct {
	mu      sync.Mutex
	pressed []string
	dump    string // empty means no introspection
	failOn  map[string]int
}

func (f *fakeRemote) Kind() controllers.Kind { return controllers.KindRemote }

func (f *fakeRemote) Implementation() string { return controllers.ImplAndroidTV }

func (f *fakeRemote) HasUIDump() bool { return f.dump != "" }

func (f *fakeRemote) DumpUI(context.Context) (string, error) {
	if f.dump == "" {
		return "", errors.New("no dump")
	}
	return f.dump, nil
}

func (f *fakeRemote) ClickElement(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining, ok := f.failOn["click:"+target]; ok && remaining > 0 {
		f.failOn["click:"+target] = remaining - 1
		return errors.New("element not found")
	}
	f.pressed = append(f.pressed, "click:"+target)
	return nil
}

func (f *fakeRemote) TapCoordinates(context.Context, int, int) error { return nil }

func (f *fakeRemote) PressKey(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining, ok := f.failOn[key]; ok && remaining > 0 {
		f.failOn[key] = remaining - 1
		return errors.New("key press timed out")
	}
	f.pressed = append(f.pressed, key)
	return nil
}

func (f *fakeRemote) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pressed...)
}

type fakeAV struct{}

func (f *fakeAV) Kind() controllers.Kind { return controllers.KindAV }

func (f *fakeAV) Implementation() string { return controllers.ImplHDMIStream }

func (f *fakeAV) CaptureScreenshot(context.Context) (string, error) {
	return "/tmp/exploration_shot.png", nil
}

func (f *fakeAV) StreamPath() string { return "" }

type fakeControls struct {
	remote *fakeRemote
	av     *fakeAV
}

func (f *fakeControls) Remote() controllers.RemoteController { return f.remote }

func (f *fakeControls) AV() controllers.AVController { return f.av }

func (f *fakeControls) Web() controllers.WebController { return nil }

func (f *fakeControls) Power() controllers.PowerController { return nil }

func (f *fakeControls) AI() controllers.AIController { return nil }

func (f *fakeControls) Verifications() []controllers.VerificationController { return nil }

func (f *fakeControls) VerificationFor(string) controllers.VerificationController { return nil }

type fakeObjects struct{}

func (f *fakeObjects) UploadFiles(context.Context, []store.UploadRequest) (*store.UploadResult, error) {
	return &store.UploadResult{}, nil
}

func (f *fakeObjects) UploadNavigationScreenshot(_ context.Context, _, ui, filename string) (string, error) {
	return "https://bucket.example.com/navigation/" + ui + "/" + filename, nil
}

type fakePlanner struct {
	plan *datatypes.ExplorationPlan
	err  error
}

func (f *fakePlanner) PlanExploration(context.Context, planner.PlanRequest) (*datatypes.ExplorationPlan, error) {
	return f.plan, f.err
}

// memStore is an in-memory NavigationStore with real upsert and
// cascade-delete behavior.
type memStore struct {
	mu    sync.Mutex
	uis   map[string]*datatypes.UserInterface
	roots map[string]*datatypes.NavigationTree
	trees map[string]*datatypes.TreeData
	refs  []store.Reference
}

func (s *memStore) GetUserInterfaceByName(_ context.Context, name, _ string) (*datatypes.UserInterface, error) {
	if ui, ok := s.uis[name]; ok {
		return ui, nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetRootTreeForInterface(_ context.Context, uiID, _ string) (*datatypes.NavigationTree, error) {
	if root, ok := s.roots[uiID]; ok {
		return root, nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetTree(_ context.Context, treeID, _ string) (*datatypes.NavigationTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree, ok := s.trees[treeID]; ok {
		info := tree.TreeInfo
		return &info, nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetFullTree(_ context.Context, treeID, _ string) (*datatypes.TreeData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree, ok := s.trees[treeID]; ok {
		copied := *tree
		copied.Nodes = append([]datatypes.Node(nil), tree.Nodes...)
		copied.Edges = append([]datatypes.Edge(nil), tree.Edges...)
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetTreeNodes(_ context.Context, treeID, _ string) ([]datatypes.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree, ok := s.trees[treeID]; ok {
		return append([]datatypes.Node(nil), tree.Nodes...), nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetTreeEdges(_ context.Context, treeID, _ string) ([]datatypes.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree, ok := s.trees[treeID]; ok {
		return append([]datatypes.Edge(nil), tree.Edges...), nil
	}
	return nil, store.ErrNotFound
}

func (s *memStore) SaveNodesBatch(_ context.Context, treeID string, nodes []datatypes.Node, _ string) ([]datatypes.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[treeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, n := range nodes {
		replaced := false
		for i := range tree.Nodes {
			if tree.Nodes[i].NodeID == n.NodeID {
				tree.Nodes[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			tree.Nodes = append(tree.Nodes, n)
		}
	}
	return nodes, nil
}

func (s *memStore) SaveEdgesBatch(_ context.Context, treeID string, edges []datatypes.Edge, _ string) ([]datatypes.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[treeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, e := range edges {
		replaced := false
		for i := range tree.Edges {
			if tree.Edges[i].EdgeID == e.EdgeID {
				tree.Edges[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			tree.Edges = append(tree.Edges, e)
		}
	}
	return edges, nil
}

func (s *memStore) DeleteNode(_ context.Context, treeID, nodeID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[treeID]
	if !ok {
		return store.ErrNotFound
	}
	var nodes []datatypes.Node
	for _, n := range tree.Nodes {
		if n.NodeID != nodeID {
			nodes = append(nodes, n)
		}
	}
	tree.Nodes = nodes
	var edges []datatypes.Edge
	for _, e := range tree.Edges {
		if e.SourceNodeID != nodeID && e.TargetNodeID != nodeID {
			edges = append(edges, e)
		}
	}
	tree.Edges = edges
	return nil
}

func (s *memStore) DeleteEdge(_ context.Context, treeID, edgeID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[treeID]
	if !ok {
		return store.ErrNotFound
	}
	var edges []datatypes.Edge
	for _, e := range tree.Edges {
		if e.EdgeID != edgeID {
			edges = append(edges, e)
		}
	}
	tree.Edges = edges
	return nil
}

func (s *memStore) DeleteTreeCascade(_ context.Context, treeID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trees, treeID)
	return nil
}

func (s *memStore) SaveReference(_ context.Context, ref store.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = append(s.refs, ref)
	return nil
}

// ----- fixtures --------------------------------------------------------------

const (
	testTreeID = "tree_main"
	testTeamID = "team1"
	testUIName = "fire_tv_ui"
)

// textDump has visible text but no bounds or resource ids, which maps
// to the click_with_text strategy.
const textDump = `<node text="Home"/><node text="Live TV"/><node text="Settings"/>`

func fixtureStore() *memStore {
	return &memStore{
		uis: map[string]*datatypes.UserInterface{
			testUIName: {ID: "ui1", Name: testUIName},
		},
		roots: map[string]*datatypes.NavigationTree{
			"ui1": {TreeID: testTreeID, IsRootTree: true, UserInterfaceID: "ui1"},
		},
		trees: map[string]*datatypes.TreeData{
			testTreeID: {
				TreeID:   testTreeID,
				TreeInfo: datatypes.NavigationTree{TreeID: testTreeID, IsRootTree: true, UserInterfaceID: "ui1"},
				Nodes: []datatypes.Node{
					{NodeID: "n_home", Label: "Home", NodeType: datatypes.NodeTypeEntry},
				},
			},
		},
	}
}

type explorationFixture struct {
	exec   *Executor
	remote *fakeRemote
	st     *memStore
	plan   *fakePlanner
}

func newFixture(t *testing.T, dump string, plan *datatypes.ExplorationPlan) *explorationFixture {
	t.Helper()
	log := logging.New(logging.Config{Service: "exploration-test", Quiet: true})
	st := fixtureStore()
	remote := &fakeRemote{dump: dump, failOn: map[string]int{}}
	controls := &fakeControls{remote: remote, av: &fakeAV{}}
	fp := &fakePlanner{plan: plan}

	tc := cache.NewTreeCache(st)
	runner := tasks.NewRunner(log, "")
	nav := navigation.NewExecutor("device1", controls, st, tc, runner, log)
	engine := NewEngine(controls, &fakeObjects{}, fp, "fire_tv_4k", log)

	exec := NewExecutor("device1", st, tc, nav, engine, log)
	exec.settle = 0
	return &explorationFixture{exec: exec, remote: remote, st: st, plan: fp}
}

func defaultPlan() *datatypes.ExplorationPlan {
	return &datatypes.ExplorationPlan{
		MenuType: datatypes.MenuTypeHorizontal,
		Lines:    [][]string{{"Home", "Live TV", "Settings"}},
		Items:    []string{"Home", "Live TV", "Settings"},
	}
}

func startRequest() *datatypes.StartExplorationRequest {
	return &datatypes.StartExplorationRequest{
		DeviceID:          "device1",
		TreeID:            testTreeID,
		UserInterfaceName: testUIName,
		StartNode:         "home",
	}
}

func startExploration(t *testing.T, f *explorationFixture) {
	t.Helper()
	require.NoError(t, f.exec.Start(context.Background(), testTeamID, startRequest()))
	require.Equal(t, datatypes.ExplorationAwaitingApproval, f.exec.State())
}

func continueWith(t *testing.T, f *explorationFixture, items, screens []string) {
	t.Helper()
	require.NoError(t, f.exec.Continue(context.Background(), &datatypes.ContinueExplorationRequest{
		DeviceID:            "device1",
		SelectedItems:       items,
		SelectedScreenItems: screens,
	}))
	require.Equal(t, datatypes.ExplorationStructureCreated, f.exec.State())
}

func validateAll(t *testing.T, f *explorationFixture) {
	t.Helper()
	require.NoError(t, f.exec.StartValidation())
	for f.exec.State() == datatypes.ExplorationAwaitingValidation {
		require.NoError(t, f.exec.ValidateNextItem(context.Background()))
	}
	require.Equal(t, datatypes.ExplorationValidationComplete, f.exec.State())
}

// ----- tests -----------------------------------------------------------------

func TestStart_DetectsClickWithTextStrategy(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)

	ec := f.exec.Context()
	require.NotNil(t, ec)
	assert.Equal(t, datatypes.StrategyClickWithText, ec.Strategy)
	assert.True(t, ec.HasDumpUI)
	assert.Equal(t, []string{"home", "live_tv", "settings"}, ec.PredictedItems)
	assert.Contains(t, ec.ScreenshotURL, testUIName)
}

func TestStart_FallsBackToDpadWithoutDump(t *testing.T) {
	f := newFixture(t, "", defaultPlan())
	startExploration(t, f)

	ec := f.exec.Context()
	assert.Equal(t, datatypes.StrategyDpadWithScreenshot, ec.Strategy)
	assert.False(t, ec.HasDumpUI)
}

func TestStart_RejectedMidExploration(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)

	err := f.exec.Start(context.Background(), testTeamID, startRequest())
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, datatypes.ExplorationAwaitingApproval, invalid.From)
}

func TestStart_PlannerFailureEndsInFailed(t *testing.T) {
	f := newFixture(t, textDump, nil)
	f.plan.err = errors.New("model overloaded")

	err := f.exec.Start(context.Background(), testTeamID, startRequest())
	require.Error(t, err)
	assert.Equal(t, datatypes.ExplorationFailed, f.exec.State())
	assert.Contains(t, f.exec.Context().Error, "model overloaded")

	// A failed exploration can be restarted.
	f.plan.err = nil
	f.plan.plan = defaultPlan()
	require.NoError(t, f.exec.Start(context.Background(), testTeamID, startRequest()))
}

func TestContinue_CreatesClickStructure(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, nil)

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	require.Len(t, nodes, 3) // home + 2 created

	var labels []string
	for _, n := range nodes[1:] {
		labels = append(labels, n.Label)
	}
	assert.ElementsMatch(t, []string{"live_tv_temp", "settings_temp"}, labels)

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, "n_home", e.SourceNodeID)
		require.Len(t, e.ActionSets, 2)
		assert.Equal(t, "click_element", e.ActionSets[0].Actions[0].Command)
		assert.Equal(t, "press_key", e.ActionSets[1].Actions[0].Command)
		assert.Equal(t, "BACK", e.ActionSets[1].Actions[0].Params["key"])
	}

	ec := f.exec.Context()
	assert.Len(t, ec.CreatedNodeIDs, 2)
	assert.Len(t, ec.CreatedEdgeIDs, 2)
	assert.Equal(t, 2, ec.TotalSteps)
}

func TestContinue_CreatesDpadDualLayer(t *testing.T) {
	f := newFixture(t, "", defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, []string{"Live TV"})

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	// home + 2 focus nodes + 1 screen node
	require.Len(t, nodes, 4)

	var focusLabels, screenLabels []string
	for _, n := range nodes[1:] {
		if strings.Contains(n.Label, "_focus") {
			focusLabels = append(focusLabels, n.Label)
		} else {
			screenLabels = append(screenLabels, n.Label)
		}
	}
	assert.ElementsMatch(t, []string{"live_tv_focus_temp", "settings_focus_temp"}, focusLabels)
	assert.Equal(t, []string{"live_tv_temp"}, screenLabels)

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	// 2 focus chain edges + 1 OK edge
	require.Len(t, edges, 3)

	keys := map[string]int{}
	for _, e := range edges {
		key, _ := e.ActionSets[0].Actions[0].Params["key"].(string)
		keys[key]++
	}
	assert.Equal(t, map[string]int{"RIGHT": 2, "OK": 1}, keys)
}

func TestValidation_ClickFlowStampsEdges(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, nil)
	validateAll(t, f)

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	for _, e := range edges {
		for _, set := range e.ActionSets {
			assert.Equal(t, datatypes.ValidationSuccess, set.Actions[0].ValidationStatus)
			assert.NotEmpty(t, set.Actions[0].ValidatedAt)
		}
	}

	ec := f.exec.Context()
	assert.ElementsMatch(t, []string{"live_tv", "settings"}, ec.CompletedItems)
	assert.Empty(t, ec.FailedItems)
	require.Len(t, ec.VerificationData, 2)
	assert.NotEmpty(t, ec.VerificationData[0].Dump)
	assert.Contains(t, ec.VerificationData[0].ScreenshotURL, "live_tv.png")

	// Device saw click, BACK per item.
	keys := f.remote.keys()
	assert.Contains(t, keys, "click:Live TV")
	assert.Contains(t, keys, "BACK")
}

func TestValidation_FailedClickMarksItem(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	f.remote.failOn["click:Live TV"] = 1
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV"}, nil)

	require.NoError(t, f.exec.StartValidation())
	require.NoError(t, f.exec.ValidateNextItem(context.Background()))
	require.Equal(t, datatypes.ExplorationValidationComplete, f.exec.State())

	ec := f.exec.Context()
	assert.Equal(t, []string{"live_tv"}, ec.FailedItems)

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ValidationFailed, edges[0].ActionSets[0].Actions[0].ValidationStatus)
}

func TestValidation_DpadPressesChainKeys(t *testing.T) {
	f := newFixture(t, "", defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, []string{"Live TV"})
	validateAll(t, f)

	// Item 1 has a screen: RIGHT, OK, BACK. Item 2 is focus only: RIGHT.
	assert.Equal(t, []string{"RIGHT", "OK", "BACK", "RIGHT"}, f.remote.keys())
}

func TestValidation_LostDeviceStopsPhase(t *testing.T) {
	f := newFixture(t, "", defaultPlan())
	f.remote.failOn["BACK"] = 2
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, []string{"Live TV"})

	require.NoError(t, f.exec.StartValidation())
	err := f.exec.ValidateNextItem(context.Background())
	var stopped *ValidationStoppedError
	require.ErrorAs(t, err, &stopped)
	assert.Equal(t, "live_tv", stopped.Item)
	assert.Equal(t, datatypes.ExplorationValidationFailed, f.exec.State())
	assert.Equal(t, []string{"live_tv"}, f.exec.Context().FailedItems)
}

func TestValidation_ReturnNeedsFirstItemText(t *testing.T) {
	// The dump never shows "Live TV", only another selected item's
	// text, so BACK cannot be trusted to have returned to the menu.
	f := newFixture(t, `<node text="Home"/><node text="Settings"/>`, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, nil)

	require.NoError(t, f.exec.StartValidation())
	require.NoError(t, f.exec.ValidateNextItem(context.Background()))

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	var status string
	for _, e := range edges {
		if strings.Contains(e.ActionSets[0].Label, "live_tv") {
			status = e.ActionSets[0].Actions[0].ValidationStatus
		}
	}
	assert.Equal(t, datatypes.ValidationFailedRecovered, status)
	assert.Equal(t, []string{"live_tv"}, f.exec.Context().CompletedItems)
}

func TestNodeVerification_SuggestAndApprove(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV"}, nil)
	validateAll(t, f)

	require.NoError(t, f.exec.StartNodeVerification())
	require.Equal(t, datatypes.ExplorationAwaitingNodeVerification, f.exec.State())

	ec := f.exec.Context()
	require.Len(t, ec.SuggestedVerifications, 1)
	suggestion := ec.SuggestedVerifications[0]
	assert.Equal(t, "element_exists", suggestion.Verification.Command)

	// Operator swaps the suggestion for a text verification, which
	// must also create a named reference.
	suggestion.Verification = datatypes.Verification{
		Command:          "waitForTextToAppear",
		VerificationType: "text",
		Params:           map[string]any{"text": "Live TV"},
	}
	require.NoError(t, f.exec.ApproveNodeVerifications(context.Background(), &datatypes.ApproveNodeVerificationsRequest{
		DeviceID:              "device1",
		ApprovedVerifications: []datatypes.SuggestedVerification{suggestion},
	}))
	require.Equal(t, datatypes.ExplorationNodeVerificationComplete, f.exec.State())

	require.Len(t, f.st.refs, 1)
	assert.Equal(t, testUIName+"_live_tv_text", f.st.refs[0].Name)
	assert.Equal(t, "text", f.st.refs[0].Type)

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	var target *datatypes.Node
	for i := range nodes {
		if nodes[i].NodeID == suggestion.NodeID {
			target = &nodes[i]
		}
	}
	require.NotNil(t, target)
	require.Len(t, target.Verifications, 1)
	assert.Equal(t, testUIName+"_live_tv_text", target.Verifications[0].Params["reference_name"])
}

func TestFinalize_StripsTempLabels(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV"}, nil)
	validateAll(t, f)
	require.NoError(t, f.exec.StartNodeVerification())
	require.NoError(t, f.exec.ApproveNodeVerifications(context.Background(), &datatypes.ApproveNodeVerificationsRequest{
		DeviceID: "device1",
	}))

	nodesRenamed, edgesRenamed, err := f.exec.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, datatypes.ExplorationFinalized, f.exec.State())
	assert.Equal(t, 1, nodesRenamed)
	assert.Equal(t, 1, edgesRenamed)

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	for _, n := range nodes {
		assert.False(t, strings.HasSuffix(n.Label, datatypes.TempLabelSuffix), "node %s", n.Label)
	}
	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	for _, e := range edges {
		for _, set := range e.ActionSets {
			assert.False(t, strings.HasSuffix(set.Label, datatypes.TempLabelSuffix), "set %s", set.Label)
		}
	}
}

func TestCancel_DeletesCreatedStructure(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV", "Settings"}, nil)

	require.NoError(t, f.exec.Cancel(context.Background()))
	assert.Equal(t, datatypes.ExplorationCancelled, f.exec.State())

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n_home", nodes[0].NodeID)

	edges, err := f.st.GetTreeEdges(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestCancel_FromIdleRejected(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	var invalid *InvalidTransitionError
	require.ErrorAs(t, f.exec.Cancel(context.Background()), &invalid)
}

func TestCleanupTemp_RemovesLeftovers(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)
	continueWith(t, f, []string{"Live TV"}, nil)

	// Simulate a crashed run: no live context, temp rows in the store.
	removedNodes, removedEdges, err := f.exec.CleanupTemp(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	assert.Equal(t, 1, removedNodes)
	// The edge cascades with its node; nothing left for the edge pass.
	assert.Equal(t, 0, removedEdges)

	nodes, err := f.st.GetTreeNodes(context.Background(), testTreeID, testTeamID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestValidateNextItem_RequiresValidationState(t *testing.T) {
	f := newFixture(t, textDump, defaultPlan())
	startExploration(t, f)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, f.exec.ValidateNextItem(context.Background()), &invalid)
	assert.Equal(t, datatypes.ExplorationAwaitingApproval, invalid.From)
}
