// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

func TestExecuteNavigation_RequiresTeamID(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodPost, "/host/navigation/execute/"+testTreeID,
		datatypes.ExecuteNavigationRequest{DeviceID: testDeviceID, TargetNodeID: "n_settings"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "team_id query parameter is required")
}

func TestExecuteNavigation_RejectsAmbiguousTargetSelector(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodPost, teamPath("/host/navigation/execute/"+testTreeID),
		datatypes.ExecuteNavigationRequest{
			DeviceID:        testDeviceID,
			TargetNodeID:    "n_settings",
			TargetNodeLabel: "settings",
		})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "mutually exclusive")
}

func TestExecuteNavigation_UnknownDevice(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodPost, teamPath("/host/navigation/execute/"+testTreeID),
		datatypes.ExecuteNavigationRequest{DeviceID: "device9", TargetNodeID: "n_settings"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteNavigation_UnknownTree(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodPost, teamPath("/host/navigation/execute/tree_missing"),
		datatypes.ExecuteNavigationRequest{DeviceID: testDeviceID, TargetNodeID: "n_settings"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteNavigation_AlreadyAtTarget(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodPost, teamPath("/host/navigation/execute/"+testTreeID),
		datatypes.ExecuteNavigationRequest{
			DeviceID:      testDeviceID,
			TargetNodeID:  "n_settings",
			CurrentNodeID: "n_settings",
		})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	executionID, ok := body["execution_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, executionID)

	// A zero-step path completes as soon as the background task runs.
	statusPath := "/host/navigation/execution/" + executionID + "/status?device_id=" + testDeviceID
	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, statusPath, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		execution := decodeBody(t, rec)["execution"].(map[string]any)
		return execution["status"] == datatypes.ExecutionCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecutionStatus_UnknownExecution(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodGet,
		"/host/navigation/execution/no-such-id/status?device_id="+testDeviceID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewPath_PlansWithoutExecuting(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodGet,
		"/host/navigation/preview/"+testTreeID+"/n_settings?team_id="+testTeamID+"&device_id="+testDeviceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["step_count"])
}

func TestPreviewPath_UnknownTarget(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodGet,
		"/host/navigation/preview/"+testTreeID+"/n_missing?team_id="+testTeamID+"&device_id="+testDeviceID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadTree_ResolvesUserInterface(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodGet,
		"/host/navigation/load/fire_tv_ui?team_id="+testTeamID+"&device_id="+testDeviceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tree := decodeBody(t, rec)["tree"].(map[string]any)
	assert.Equal(t, testTreeID, tree["root_tree_id"])
	assert.Equal(t, float64(2), tree["nodes"])
	assert.Equal(t, false, tree["from_cache"])
}

func TestLoadTree_UnknownUserInterface(t *testing.T) {
	h, _ := newTestHost(t)
	router := newTestRouter(h)

	rec := doJSON(t, router, http.MethodGet,
		"/host/navigation/load/missing_ui?team_id="+testTeamID+"&device_id="+testDeviceID, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestValidationSequence_ListsStampedEdges(t *testing.T) {
	h, st := newTestHost(t)
	router := newTestRouter(h)

	st.mu.Lock()
	st.trees[testTreeID].Edges = append(st.trees[testTreeID].Edges, datatypes.Edge{
		EdgeID:       "e_temp",
		SourceNodeID: "n_home",
		TargetNodeID: "n_live_tv",
		Label:        "open_live_tv_temp",
		ActionSets: []datatypes.ActionSet{{
			ID: "as_temp",
			Actions: []datatypes.Action{{
				Command:          "press_key",
				ValidationStatus: datatypes.ValidationSuccess,
				ValidatedAt:      "2026-08-24T10:00:00Z",
			}},
		}},
	})
	st.mu.Unlock()

	rec := doJSON(t, router, http.MethodGet,
		teamPath("/host/navigation/validation-sequence/"+testTreeID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	sequence, ok := body["sequence"].([]any)
	require.True(t, ok)
	require.Len(t, sequence, 1)
	entry := sequence[0].(map[string]any)
	assert.Equal(t, "e_temp", entry["edge_id"])
	assert.Equal(t, datatypes.ValidationSuccess, entry["validation_status"])
}
