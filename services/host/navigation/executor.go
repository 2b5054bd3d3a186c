// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package navigation executes planned paths on a live device. One
// Executor exists per device and owns that device's position tracking,
// preview cache and execution records; the graph itself lives in the
// shared tree cache.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/cache"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/graph"
	"github.com/AleutianAI/DeviceLab/services/host/pathfind"
	"github.com/AleutianAI/DeviceLab/services/host/store"
	"github.com/AleutianAI/DeviceLab/services/host/tasks"
)

// Metrics receives navigation outcome counters. The observability
// package provides the production implementation; nil disables
// recording.
type Metrics interface {
	RecordNavigation(deviceID, status string, seconds float64)
	RecordSteps(deviceID string, total, recovered int)
	ExecutionStarted()
	ExecutionFinished()
}

// LoadResult reports how a navigation tree was made available.
type LoadResult struct {
	RootTreeID string `json:"root_tree_id"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	FromCache  bool   `json:"from_cache"`
}

// execMeta is the navigation-specific context attached to a task
// record.
type execMeta struct {
	treeID          string
	targetNodeID    string
	targetNodeLabel string
}

// Executor is the per-device navigation singleton.
//
// Thread Safety:
//
//	Safe for concurrent use. The mutex guards position and execution
//	metadata; path previews have their own lock; graph state is owned
//	by the tree cache.
type Executor struct {
	deviceID string
	controls DeviceControls
	store    store.NavigationStore
	cache    *cache.TreeCache
	runner   *tasks.Runner
	actions  *ActionRunner
	verify   *VerificationRunner
	log      *logging.Logger
	metrics  Metrics

	mu            sync.Mutex
	currentNodeID string
	meta          map[string]execMeta

	previewMu sync.Mutex
	previews  map[string][]pathfind.Transition
}

// NewExecutor creates the executor for one device.
func NewExecutor(deviceID string, controls DeviceControls, st store.NavigationStore, tc *cache.TreeCache, runner *tasks.Runner, log *logging.Logger) *Executor {
	return &Executor{
		deviceID: deviceID,
		controls: controls,
		store:    st,
		cache:    tc,
		runner:   runner,
		actions:  NewActionRunner(controls),
		verify:   NewVerificationRunner(controls),
		log:      log.With("device_id", deviceID),
		meta:     make(map[string]execMeta),
		previews: make(map[string][]pathfind.Transition),
	}
}

// DeviceID returns the device this executor drives.
func (e *Executor) DeviceID() string { return e.deviceID }

// SetMetrics attaches an outcome recorder. Call before serving
// traffic; executions read the field without a lock.
func (e *Executor) SetMetrics(m Metrics) { e.metrics = m }

// CurrentNode returns the tracked position, empty when unknown.
func (e *Executor) CurrentNode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentNodeID
}

// SetCurrentNode overrides the tracked position.
func (e *Executor) SetCurrentNode(nodeID string) {
	e.mu.Lock()
	e.currentNodeID = nodeID
	e.mu.Unlock()
}

// LoadNavigationTree resolves a userinterface to its root tree and
// makes the unified graph available, building it from persistence on a
// cache miss.
func (e *Executor) LoadNavigationTree(ctx context.Context, userInterfaceName, teamID string) (*LoadResult, error) {
	ui, err := e.store.GetUserInterfaceByName(ctx, userInterfaceName, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &UserInterfaceNotFoundError{Name: userInterfaceName, TeamID: teamID}
		}
		return nil, fmt.Errorf("userinterface lookup: %w", err)
	}
	root, err := e.store.GetRootTreeForInterface(ctx, ui.ID, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NoRootTreeError{UserInterfaceID: ui.ID}
		}
		return nil, fmt.Errorf("root tree lookup: %w", err)
	}

	if entry, err := e.cache.GetByRoot(root.TreeID, teamID); err == nil {
		return &LoadResult{
			RootTreeID: root.TreeID,
			Nodes:      entry.Graph.NodeCount(),
			Edges:      entry.Graph.EdgeCount(),
			FromCache:  true,
		}, nil
	}

	entry, _, err := e.cache.Populate(ctx, root.TreeID, teamID, false, e.buildFromStore)
	if err != nil {
		return nil, err
	}
	return &LoadResult{
		RootTreeID: root.TreeID,
		Nodes:      entry.Graph.NodeCount(),
		Edges:      entry.Graph.EdgeCount(),
		FromCache:  false,
	}, nil
}

// buildFromStore fetches the full hierarchy below a root tree and
// builds the unified graph. Discovery follows child_tree_id mounts
// breadth-first, bounded by the maximum tree depth.
func (e *Executor) buildFromStore(ctx context.Context, rootTreeID, teamID string) (*graph.UnifiedGraph, error) {
	fetched := map[string]bool{}
	var trees []datatypes.TreeData
	queue := []string{rootTreeID}

	for depth := 0; depth <= datatypes.MaxTreeDepth && len(queue) > 0; depth++ {
		var next []string
		for _, treeID := range queue {
			if fetched[treeID] {
				continue
			}
			fetched[treeID] = true
			tree, err := e.store.GetFullTree(ctx, treeID, teamID)
			if err != nil {
				return nil, fmt.Errorf("fetch tree %s: %w", treeID, err)
			}
			trees = append(trees, *tree)
			for _, node := range tree.Nodes {
				if node.ChildTreeID != "" && !fetched[node.ChildTreeID] {
					next = append(next, node.ChildTreeID)
				}
			}
		}
		queue = next
	}

	return graph.Build(rootTreeID, teamID, trees)
}

// PopulateFromTrees caches a graph built from caller-provided tree
// data, bypassing persistence. Used by the populate endpoint.
func (e *Executor) PopulateFromTrees(ctx context.Context, teamID string, treesData []datatypes.TreeData, force bool) (*cache.Entry, bool, error) {
	if len(treesData) == 0 {
		return nil, false, graph.ErrEmptyHierarchy
	}
	rootTreeID := treesData[0].TreeID
	for _, tree := range treesData {
		if tree.TreeInfo.IsRootTree {
			rootTreeID = tree.TreeID
			break
		}
	}
	return e.cache.Populate(ctx, rootTreeID, teamID, force, func(context.Context, string, string) (*graph.UnifiedGraph, error) {
		return graph.Build(rootTreeID, teamID, treesData)
	})
}

// graphFor returns the cached graph for a tree id, loading it from
// persistence when needed.
func (e *Executor) graphFor(ctx context.Context, treeID, teamID string) (*graph.UnifiedGraph, error) {
	rootID, err := e.cache.ResolveRootTreeID(ctx, treeID, teamID)
	if err != nil {
		return nil, err
	}
	if entry, err := e.cache.GetByRoot(rootID, teamID); err == nil {
		return entry.Graph, nil
	}
	entry, _, err := e.cache.Populate(ctx, rootID, teamID, false, e.buildFromStore)
	if err != nil {
		return nil, err
	}
	return entry.Graph, nil
}

// ExecuteNavigation starts an async navigation and returns the
// execution id. The graph is resolved before launch so unknown trees
// fail the request instead of the background task.
func (e *Executor) ExecuteNavigation(ctx context.Context, treeID, teamID string, req *datatypes.ExecuteNavigationRequest) (string, error) {
	g, err := e.graphFor(ctx, treeID, teamID)
	if err != nil {
		return "", err
	}

	current := req.CurrentNodeID
	if current == "" {
		current = e.CurrentNode()
	}

	taskID := ""
	if req.AsyncExecution {
		taskID = req.TaskID
	}
	message := fmt.Sprintf("navigating to %s", firstNonEmpty(req.TargetNodeLabel, req.TargetNodeID))

	executionID := e.runner.Launch(ctx, message, taskID, func(ctx context.Context, update func(int, string)) (any, error) {
		start := time.Now()
		if e.metrics != nil {
			e.metrics.ExecutionStarted()
		}
		result := e.executePath(ctx, g, current, req.TargetNodeID, req.TargetNodeLabel, update)
		if e.metrics != nil {
			status := datatypes.ExecutionCompleted
			if !result.Success {
				status = datatypes.ExecutionError
			}
			recovered := 0
			for _, step := range result.Steps {
				if step.Recovered {
					recovered++
				}
			}
			e.metrics.RecordNavigation(e.deviceID, status, time.Since(start).Seconds())
			e.metrics.RecordSteps(e.deviceID, len(result.Steps), recovered)
			e.metrics.ExecutionFinished()
		}
		if !result.Success {
			return result, errors.New(result.Error)
		}
		return result, nil
	})

	e.mu.Lock()
	e.meta[executionID] = execMeta{
		treeID:          treeID,
		targetNodeID:    req.TargetNodeID,
		targetNodeLabel: req.TargetNodeLabel,
	}
	e.mu.Unlock()

	e.log.Info("navigation started",
		"execution_id", executionID,
		"tree_id", treeID,
		"target", firstNonEmpty(req.TargetNodeID, req.TargetNodeLabel))
	return executionID, nil
}

// executePath plans and walks the path, mutating the tracked position
// step by step.
func (e *Executor) executePath(ctx context.Context, g *graph.UnifiedGraph, current, targetID, targetLabel string, update func(int, string)) *datatypes.NavigationResult {
	path, err := pathfind.FindPath(g, current, targetID, targetLabel)
	if err != nil {
		return &datatypes.NavigationResult{Success: false, Error: err.Error()}
	}

	result := &datatypes.NavigationResult{Success: true, CurrentNode: current}
	if len(path) == 0 {
		result.CurrentNode = firstNonEmpty(targetID, result.CurrentNode)
		if targetLabel != "" {
			if target, rerr := pathfind.ResolveTarget(g, targetID, targetLabel); rerr == nil {
				result.CurrentNode = target.NodeID
			}
		}
		e.SetCurrentNode(result.CurrentNode)
		return result
	}

	for i, transition := range path {
		step, err := e.executeStep(ctx, g, i, transition)
		if step != nil {
			result.Steps = append(result.Steps, *step)
		}
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			result.CurrentNode = e.CurrentNode()
			return result
		}
		e.SetCurrentNode(transition.To.NodeID)
		result.CurrentNode = transition.To.NodeID
		update((i+1)*100/len(path), fmt.Sprintf("at %s", transition.To.Label))
	}
	return result
}

// executeStep runs one transition: action buckets with retry and
// failure fallbacks, then arrival verifications.
func (e *Executor) executeStep(ctx context.Context, g *graph.UnifiedGraph, index int, tr pathfind.Transition) (*datatypes.NavigationStep, error) {
	step := &datatypes.NavigationStep{
		From:   tr.From.NodeID,
		To:     tr.To.NodeID,
		EdgeID: tr.Edge.EdgeID,
	}

	if !tr.Edge.IsVirtual {
		set := e.effectiveActionSet(g, tr.Edge)
		if set == nil {
			return step, &StepFailedError{
				StepIndex: index, FromNodeID: tr.From.NodeID, ToNodeID: tr.To.NodeID,
				Cause: fmt.Errorf("edge %s has no executable action set", tr.Edge.EdgeID),
			}
		}
		step.ActionSet = set.ID
		step.ActionsRun = len(set.Actions)

		if err := e.actions.RunSet(ctx, set.Actions); err != nil {
			e.log.Warn("action set failed, trying retry bucket",
				"edge_id", tr.Edge.EdgeID, "error", err)
			recovered := false
			if len(set.RetryActions) > 0 {
				if rerr := e.actions.RunSet(ctx, set.RetryActions); rerr == nil {
					recovered = true
				}
			}
			if !recovered && len(set.FailureActions) > 0 {
				if ferr := e.actions.RunSet(ctx, set.FailureActions); ferr == nil {
					recovered = true
				}
			}
			if !recovered {
				return step, &StepFailedError{
					StepIndex: index, FromNodeID: tr.From.NodeID, ToNodeID: tr.To.NodeID,
					Cause: err,
				}
			}
			step.Recovered = true
		}
	}

	if verr := e.verify.RunAll(ctx, tr.To.NodeID, tr.To.Verifications, tr.To.PassCondition()); verr != nil {
		return step, verr
	}
	return step, nil
}

// effectiveActionSet picks the actions to run for an edge. Conditional
// edges with an empty default borrow from the first sibling edge whose
// shared set carries actions.
func (e *Executor) effectiveActionSet(g *graph.UnifiedGraph, edge *graph.EdgeAttrs) *datatypes.ActionSet {
	set := edge.DefaultActionSet()
	if edge.IsReverseEdge && set == nil && len(edge.ActionSets) > 0 {
		set = &edge.ActionSets[0]
	}
	if set != nil && len(set.Actions) > 0 {
		return set
	}
	if !edge.IsConditional {
		return set
	}
	for _, siblingID := range edge.SiblingNodeIDs {
		sibling := g.Edge(edge.SourceNodeID, siblingID)
		if sibling == nil {
			continue
		}
		if borrowed := sibling.DefaultActionSet(); borrowed != nil && len(borrowed.Actions) > 0 {
			return borrowed
		}
	}
	return set
}

// VerifyNode runs one node's verifications on the live device.
func (e *Executor) VerifyNode(ctx context.Context, teamID string, req *datatypes.VerifyNodeRequest) error {
	load, err := e.LoadNavigationTree(ctx, req.UserInterfaceName, teamID)
	if err != nil {
		return err
	}
	entry, err := e.cache.GetByRoot(load.RootTreeID, teamID)
	if err != nil {
		return err
	}
	node := entry.Graph.Node(req.NodeID)
	if node == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotInGraph, req.NodeID)
	}
	return e.verify.RunAll(ctx, node.NodeID, node.Verifications, node.PassCondition())
}

// GetExecutionStatus returns the live record for an execution.
func (e *Executor) GetExecutionStatus(executionID string) (*datatypes.ExecutionRecord, error) {
	record, err := e.runner.Get(executionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	meta := e.meta[executionID]
	e.mu.Unlock()

	return &datatypes.ExecutionRecord{
		ExecutionID:     record.ExecutionID,
		Status:          record.Status,
		TreeID:          meta.treeID,
		TargetNodeID:    meta.targetNodeID,
		TargetNodeLabel: meta.targetNodeLabel,
		Progress:        record.Progress,
		Message:         record.Message,
		StartTime:       record.StartTime,
		Result:          record.Result,
		Error:           record.Error,
	}, nil
}

// PreviewPath plans without executing, caching the result until the
// graph changes.
func (e *Executor) PreviewPath(ctx context.Context, treeID, teamID, currentNodeID, targetNodeID, targetLabel string) ([]pathfind.Transition, error) {
	key := strings.Join([]string{treeID, teamID, currentNodeID, targetNodeID, targetLabel}, "|")

	e.previewMu.Lock()
	if cached, ok := e.previews[key]; ok {
		e.previewMu.Unlock()
		return cached, nil
	}
	e.previewMu.Unlock()

	g, err := e.graphFor(ctx, treeID, teamID)
	if err != nil {
		return nil, err
	}
	path, err := pathfind.FindPath(g, currentNodeID, targetNodeID, targetLabel)
	if err != nil {
		return nil, err
	}

	e.previewMu.Lock()
	e.previews[key] = path
	e.previewMu.Unlock()
	return path, nil
}

// ClearPreviewCache drops every cached preview. Called by the patch
// hooks whenever graph attributes change.
func (e *Executor) ClearPreviewCache() {
	e.previewMu.Lock()
	e.previews = make(map[string][]pathfind.Transition)
	e.previewMu.Unlock()
}

// PatchNode applies a node patch to the cached graph and drops stale
// previews.
func (e *Executor) PatchNode(ctx context.Context, treeID, teamID string, node datatypes.Node, treeDepth int) error {
	rootID, err := e.cache.ResolveRootTreeID(ctx, treeID, teamID)
	if err != nil {
		return err
	}
	attrs := &graph.NodeAttrs{
		NodeID:                    node.NodeID,
		Label:                     node.Label,
		NodeType:                  node.NodeType,
		IsEntryPoint:              node.IsEntryPoint(),
		TreeID:                    treeID,
		TreeDepth:                 treeDepth,
		ChildTreeID:               node.ChildTreeID,
		Verifications:             node.Verifications,
		VerificationPassCondition: node.VerificationPassCondition,
		Position:                  node.Position,
		Data:                      node.Data,
	}
	if err := e.cache.PatchNode(rootID, teamID, attrs, false); err != nil {
		return err
	}
	e.ClearPreviewCache()
	return nil
}

// PatchEdge applies an edge patch to the cached graph and drops stale
// previews. The patched edge replaces any existing (source, target)
// edge wholesale.
func (e *Executor) PatchEdge(ctx context.Context, treeID, teamID string, edge datatypes.Edge) error {
	rootID, err := e.cache.ResolveRootTreeID(ctx, treeID, teamID)
	if err != nil {
		return err
	}
	attrs := &graph.EdgeAttrs{
		EdgeID:                 edge.EdgeID,
		SourceNodeID:           edge.SourceNodeID,
		TargetNodeID:           edge.TargetNodeID,
		EdgeType:               edge.EdgeType,
		TreeID:                 treeID,
		ActionSets:             edge.ActionSets,
		DefaultActionSetID:     edge.DefaultActionSetID,
		FinalWaitTime:          edge.FinalWaitTime,
		IsForwardEdge:          true,
		EnableSiblingShortcuts: edge.SiblingShortcutsEnabled(),
		Data:                   edge.Data,
	}
	if attrs.EdgeType == "" {
		attrs.EdgeType = datatypes.EdgeTypeNavigation
	}
	if err := e.cache.PatchEdge(rootID, teamID, attrs, false); err != nil {
		return err
	}
	e.ClearPreviewCache()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
