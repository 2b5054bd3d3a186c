// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exploration discovers a device's navigation structure with
// AI assistance. One executor exists per device; it owns a single
// optional context and a strict state machine, and every mutation of
// either happens under one lock. Device I/O and uploads run outside
// the lock.
package exploration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/cache"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/navigation"
	"github.com/AleutianAI/DeviceLab/services/host/store"
)

// defaultStartNode is assumed when the caller does not name one.
const defaultStartNode = "home"

// defaultSettleDelay lets the device UI settle after structure writes.
const defaultSettleDelay = 2 * time.Second

// itemPlan is the executor's private bookkeeping for one selected
// item: the ids it created and the dpad directions to reach it.
type itemPlan struct {
	raw   string // on-screen text
	clean string // sanitised node name

	focusNodeID  string // dpad only
	screenNodeID string // empty when the screen was not selected

	chainEdge *datatypes.Edge // click: start->screen; dpad: focus chain edge
	enterEdge *datatypes.Edge // dpad OK/BACK edge

	direction string // dpad: RIGHT, LEFT or DOWN
	reverse   string // dpad: LEFT, RIGHT or UP
	row       int
}

// Executor is the per-device exploration singleton.
type Executor struct {
	deviceID string
	st       store.NavigationStore
	cache    *cache.TreeCache
	nav      *navigation.Executor
	engine   *Engine
	verify   *navigation.VerificationRunner
	log      *logging.Logger

	// settle is overridable so tests do not sleep.
	settle time.Duration

	mu    sync.Mutex
	state datatypes.ExplorationState
	ec    *datatypes.ExplorationContext
	items []itemPlan
}

// NewExecutor creates the exploration executor for one device.
func NewExecutor(deviceID string, st store.NavigationStore, tc *cache.TreeCache, nav *navigation.Executor, engine *Engine, log *logging.Logger) *Executor {
	return &Executor{
		deviceID: deviceID,
		st:       st,
		cache:    tc,
		nav:      nav,
		engine:   engine,
		verify:   navigation.NewVerificationRunner(engine.controls),
		log:      log.With("device_id", deviceID),
		settle:   defaultSettleDelay,
		state:    datatypes.ExplorationIdle,
	}
}

// State returns the current machine state.
func (x *Executor) State() datatypes.ExplorationState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Context returns a copy of the current context, or nil when no
// exploration exists.
func (x *Executor) Context() *datatypes.ExplorationContext {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ec == nil {
		return nil
	}
	copied := *x.ec
	return &copied
}

// transition moves the machine, enforcing the table.
func (x *Executor) transition(to datatypes.ExplorationState) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.transitionLocked(to)
}

func (x *Executor) transitionLocked(to datatypes.ExplorationState) error {
	if !canTransition(x.state, to) {
		return &InvalidTransitionError{From: x.state, To: to}
	}
	x.log.Info("exploration state change", "from", x.state, "to", to)
	x.state = to
	if x.ec != nil {
		x.ec.UpdatedAt = time.Now()
	}
	return nil
}

// fail records the error on the context and moves to failed.
func (x *Executor) fail(err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ec != nil {
		x.ec.Error = err.Error()
		x.ec.UpdatedAt = time.Now()
	}
	if canTransition(x.state, datatypes.ExplorationFailed) {
		x.log.Error("exploration failed", "state", x.state, "error", err)
		x.state = datatypes.ExplorationFailed
	}
	return err
}

// Start begins a new exploration: phase 0 strategy detection followed
// by phase 1 planning. On success the machine waits for operator
// approval of the plan.
func (x *Executor) Start(ctx context.Context, teamID string, req *datatypes.StartExplorationRequest) error {
	x.mu.Lock()
	if !startableStates[x.state] {
		from := x.state
		x.mu.Unlock()
		return &InvalidTransitionError{From: from, To: datatypes.ExplorationAnalysis}
	}
	startNode := req.StartNode
	if startNode == "" {
		startNode = defaultStartNode
	}
	x.ec = &datatypes.ExplorationContext{
		ExplorationID:     uuid.NewString(),
		OriginalPrompt:    req.OriginalPrompt,
		TreeID:            req.TreeID,
		UserInterfaceName: req.UserInterfaceName,
		TeamID:            teamID,
		StartNode:         startNode,
		StartedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	x.items = nil
	x.state = datatypes.ExplorationAnalysis
	ec := x.ec
	x.mu.Unlock()

	if err := x.engine.DetectStrategy(ctx, ec); err != nil {
		return x.fail(err)
	}
	if err := x.engine.AnalyzeAndPlan(ctx, ec); err != nil {
		return x.fail(err)
	}
	return x.transition(datatypes.ExplorationAwaitingApproval)
}

// Continue is phase 2a: the operator approved the plan and selected
// items; create the tree structure for them in two batch writes.
func (x *Executor) Continue(ctx context.Context, req *datatypes.ContinueExplorationRequest) error {
	x.mu.Lock()
	if x.state != datatypes.ExplorationAwaitingApproval {
		from := x.state
		x.mu.Unlock()
		return &InvalidTransitionError{From: from, To: datatypes.ExplorationStructureCreated}
	}
	ec := x.ec
	ec.SelectedItems = req.SelectedItems
	ec.SelectedScreenItems = req.SelectedScreenItems
	x.mu.Unlock()

	startNodeID, err := x.findStartNode(ctx, ec)
	if err != nil {
		return x.fail(err)
	}

	var nodes []datatypes.Node
	var edges []datatypes.Edge
	var items []itemPlan
	switch ec.Strategy {
	case datatypes.StrategyDpadWithScreenshot:
		nodes, edges, items = x.buildDpadStructure(ec, startNodeID)
	default:
		nodes, edges, items = x.buildClickStructure(ec, startNodeID)
	}

	if _, err := x.st.SaveNodesBatch(ctx, ec.TreeID, nodes, ec.TeamID); err != nil {
		return x.fail(fmt.Errorf("exploration: node batch write: %w", err))
	}
	if _, err := x.st.SaveEdgesBatch(ctx, ec.TreeID, edges, ec.TeamID); err != nil {
		return x.fail(fmt.Errorf("exploration: edge batch write: %w", err))
	}
	x.invalidateTree(ctx, ec)
	x.settleDelay(ctx)

	x.mu.Lock()
	x.items = items
	for _, n := range nodes {
		ec.CreatedNodeIDs = append(ec.CreatedNodeIDs, n.NodeID)
	}
	for _, e := range edges {
		ec.CreatedEdgeIDs = append(ec.CreatedEdgeIDs, e.EdgeID)
	}
	ec.TotalSteps = len(items)
	x.mu.Unlock()

	x.log.Info("exploration structure created",
		"nodes", len(nodes), "edges", len(edges), "strategy", ec.Strategy)
	return x.transition(datatypes.ExplorationStructureCreated)
}

// StartValidation arms phase 2b.
func (x *Executor) StartValidation() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.transitionLocked(datatypes.ExplorationAwaitingValidation); err != nil {
		return err
	}
	x.ec.ValidationIdx = 0
	return nil
}

// findStartNode resolves the configured start node label to its id
// within the exploration tree.
func (x *Executor) findStartNode(ctx context.Context, ec *datatypes.ExplorationContext) (string, error) {
	nodes, err := x.st.GetTreeNodes(ctx, ec.TreeID, ec.TeamID)
	if err != nil {
		return "", fmt.Errorf("exploration: list tree nodes: %w", err)
	}
	clean := CleanNodeName(ec.StartNode)
	for _, n := range nodes {
		if n.NodeID == ec.StartNode || CleanNodeName(n.Label) == clean {
			return n.NodeID, nil
		}
	}
	return "", fmt.Errorf("exploration: start node %q not found in tree %s", ec.StartNode, ec.TreeID)
}

// invalidateTree drops the cached graph for the exploration tree.
func (x *Executor) invalidateTree(ctx context.Context, ec *datatypes.ExplorationContext) {
	rootID, err := x.cache.ResolveRootTreeID(ctx, ec.TreeID, ec.TeamID)
	if err != nil {
		x.log.Warn("cache invalidation skipped", "tree_id", ec.TreeID, "error", err)
		return
	}
	x.cache.Invalidate(rootID, ec.TeamID)
	x.nav.ClearPreviewCache()
}

func (x *Executor) settleDelay(ctx context.Context) {
	if x.settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(x.settle):
	}
}

// recordStep appends to the step history under the lock.
func (x *Executor) recordStep(item, action string, success bool, message string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ec == nil {
		return
	}
	x.ec.StepHistory = append(x.ec.StepHistory, datatypes.StepRecord{
		Step:      len(x.ec.StepHistory) + 1,
		Item:      item,
		Action:    action,
		Success:   success,
		Message:   message,
		Timestamp: time.Now(),
	})
	if success {
		x.ec.LastSuccess = action
	} else {
		x.ec.LastFailure = action
	}
	x.ec.UpdatedAt = time.Now()
}
