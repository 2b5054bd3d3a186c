// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostClient_CallDecodesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	}))
	defer srv.Close()

	var out map[string]any
	client := newHostClient(srv.URL)
	require.NoError(t, client.call(context.Background(), http.MethodGet, "/health", nil, nil, &out))
	assert.Equal(t, "healthy", out["status"])
}

func TestHostClient_CallSendsBodyAndQuery(t *testing.T) {
	var gotTeam, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTeam = r.URL.Query().Get("team_id")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	q := url.Values{}
	q.Set("team_id", "team1")
	client := newHostClient(srv.URL)
	err := client.call(context.Background(), http.MethodPost, "/host/ai-generation/cleanup-temp",
		q, map[string]any{"tree_id": "tree1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "team1", gotTeam)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "tree1", gotBody["tree_id"])
}

func TestHostClient_ErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "team_id query parameter is required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newHostClient(srv.URL)
	err := client.call(context.Background(), http.MethodGet, "/health", nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "team_id")
}
