// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// serverTimeout bounds one request to the server's persistence API.
const serverTimeout = 15 * time.Second

// ServerStore implements NavigationStore over the server's REST API.
// The host process owns no database; every read and write goes through
// the server, which fronts the actual persistence layer.
type ServerStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewServerStore creates a client for the server persistence API.
func NewServerStore(baseURL, token string) (*ServerStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("store: server base URL is required")
	}
	return &ServerStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: serverTimeout},
	}, nil
}

func (s *ServerStore) GetUserInterfaceByName(ctx context.Context, name, teamID string) (*datatypes.UserInterface, error) {
	var ui datatypes.UserInterface
	path := "/server/navigation/userinterface/" + url.PathEscape(name)
	if err := s.get(ctx, path, teamID, &ui); err != nil {
		return nil, err
	}
	return &ui, nil
}

func (s *ServerStore) GetRootTreeForInterface(ctx context.Context, userInterfaceID, teamID string) (*datatypes.NavigationTree, error) {
	var tree datatypes.NavigationTree
	path := "/server/navigation/userinterface/" + url.PathEscape(userInterfaceID) + "/root-tree"
	if err := s.get(ctx, path, teamID, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (s *ServerStore) GetTree(ctx context.Context, treeID, teamID string) (*datatypes.NavigationTree, error) {
	var tree datatypes.NavigationTree
	if err := s.get(ctx, "/server/navigation/trees/"+url.PathEscape(treeID), teamID, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (s *ServerStore) GetFullTree(ctx context.Context, treeID, teamID string) (*datatypes.TreeData, error) {
	var tree datatypes.TreeData
	if err := s.get(ctx, "/server/navigation/trees/"+url.PathEscape(treeID)+"/full", teamID, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (s *ServerStore) GetTreeNodes(ctx context.Context, treeID, teamID string) ([]datatypes.Node, error) {
	var nodes []datatypes.Node
	if err := s.get(ctx, "/server/navigation/trees/"+url.PathEscape(treeID)+"/nodes", teamID, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *ServerStore) GetTreeEdges(ctx context.Context, treeID, teamID string) ([]datatypes.Edge, error) {
	var edges []datatypes.Edge
	if err := s.get(ctx, "/server/navigation/trees/"+url.PathEscape(treeID)+"/edges", teamID, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

func (s *ServerStore) SaveNodesBatch(ctx context.Context, treeID string, nodes []datatypes.Node, teamID string) ([]datatypes.Node, error) {
	var saved []datatypes.Node
	path := "/server/navigation/trees/" + url.PathEscape(treeID) + "/nodes/batch"
	if err := s.do(ctx, http.MethodPost, path, teamID, nodes, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ServerStore) SaveEdgesBatch(ctx context.Context, treeID string, edges []datatypes.Edge, teamID string) ([]datatypes.Edge, error) {
	var saved []datatypes.Edge
	path := "/server/navigation/trees/" + url.PathEscape(treeID) + "/edges/batch"
	if err := s.do(ctx, http.MethodPost, path, teamID, edges, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ServerStore) DeleteNode(ctx context.Context, treeID, nodeID, teamID string) error {
	path := "/server/navigation/trees/" + url.PathEscape(treeID) + "/nodes/" + url.PathEscape(nodeID)
	return s.do(ctx, http.MethodDelete, path, teamID, nil, nil)
}

func (s *ServerStore) DeleteEdge(ctx context.Context, treeID, edgeID, teamID string) error {
	path := "/server/navigation/trees/" + url.PathEscape(treeID) + "/edges/" + url.PathEscape(edgeID)
	return s.do(ctx, http.MethodDelete, path, teamID, nil, nil)
}

func (s *ServerStore) DeleteTreeCascade(ctx context.Context, treeID, teamID string) error {
	return s.do(ctx, http.MethodDelete, "/server/navigation/trees/"+url.PathEscape(treeID), teamID, nil, nil)
}

func (s *ServerStore) SaveReference(ctx context.Context, ref Reference) error {
	return s.do(ctx, http.MethodPost, "/server/verification/references", ref.TeamID, ref, nil)
}

// get is a GET with the team scope attached.
func (s *ServerStore) get(ctx context.Context, path, teamID string, out any) error {
	return s.do(ctx, http.MethodGet, path, teamID, nil, out)
}

// do runs one request against the server API. 404 maps to ErrNotFound
// so callers can errors.Is on it.
func (s *ServerStore) do(ctx context.Context, method, path, teamID string, body, out any) error {
	target := s.baseURL + path
	if teamID != "" {
		target += "?team_id=" + url.QueryEscape(teamID)
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("store: encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("store: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("store: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("store: %s %s: server returned %d: %s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("store: decode %s %s: %w", method, path, err)
	}
	return nil
}
