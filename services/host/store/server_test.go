// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

func TestServerStore_GetTreeAndTeamScope(t *testing.T) {
	var gotPath, gotTeam, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTeam = r.URL.Query().Get("team_id")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(datatypes.NavigationTree{TreeID: "tree1", IsRootTree: true})
	}))
	defer srv.Close()

	s, err := NewServerStore(srv.URL, "secret-token")
	require.NoError(t, err)

	tree, err := s.GetTree(context.Background(), "tree1", "team1")
	require.NoError(t, err)
	assert.True(t, tree.IsRootTree)
	assert.Equal(t, "/server/navigation/trees/tree1", gotPath)
	assert.Equal(t, "team1", gotTeam)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestServerStore_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewServerStore(srv.URL, "")
	require.NoError(t, err)

	_, err = s.GetUserInterfaceByName(context.Background(), "missing_ui", "team1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServerStore_SaveNodesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var nodes []datatypes.Node
		require.NoError(t, json.NewDecoder(r.Body).Decode(&nodes))
		_ = json.NewEncoder(w).Encode(nodes)
	}))
	defer srv.Close()

	s, err := NewServerStore(srv.URL, "")
	require.NoError(t, err)

	saved, err := s.SaveNodesBatch(context.Background(), "tree1",
		[]datatypes.Node{{NodeID: "n1", Label: "home"}}, "team1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "n1", saved[0].NodeID)
}

func TestServerStore_ErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "tree is locked", http.StatusConflict)
	}))
	defer srv.Close()

	s, err := NewServerStore(srv.URL, "")
	require.NoError(t, err)

	err = s.DeleteTreeCascade(context.Background(), "tree1", "team1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "tree is locked")
}

func TestNewServerStore_RequiresBaseURL(t *testing.T) {
	_, err := NewServerStore("", "")
	assert.Error(t, err)
}
