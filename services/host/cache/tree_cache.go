// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache holds built navigation graphs in memory, keyed by
// (root tree, team). Graphs are expensive to assemble, so entries live
// for 24 hours and concurrent builds of the same hierarchy collapse
// into one through singleflight.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
	"github.com/AleutianAI/DeviceLab/services/host/graph"
	"github.com/AleutianAI/DeviceLab/services/host/store"
)

// BuildFunc assembles the unified graph for one root tree.
type BuildFunc func(ctx context.Context, rootTreeID, teamID string) (*graph.UnifiedGraph, error)

// TreeCache caches unified navigation graphs.
//
// Thread Safety:
//
//	Safe for concurrent use. The RWMutex guards the entry map and LRU
//	list; each entry's own mutex serializes patches against its graph.
type TreeCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*Entry
	lru     *list.List
	flight  singleflight.Group
	store   store.NavigationStore
	options Options

	hits       int64
	misses     int64
	evictions  int64
	buildCount int64
	errorCount int64
}

// NewTreeCache creates a cache over the given store. The store is only
// used to canonicalise tree ids to their root.
func NewTreeCache(st store.NavigationStore, opts ...Option) *TreeCache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &TreeCache{
		entries: make(map[cacheKey]*Entry),
		lru:     list.New(),
		store:   st,
		options: options,
	}
}

// ResolveRootTreeID canonicalises any tree id in a hierarchy to the
// root tree id the cache is keyed by. Parent links are followed at
// most MaxTreeDepth times so corrupt data cannot loop forever.
func (c *TreeCache) ResolveRootTreeID(ctx context.Context, treeID, teamID string) (string, error) {
	current := treeID
	for i := 0; i <= datatypes.MaxTreeDepth; i++ {
		tree, err := c.store.GetTree(ctx, current, teamID)
		if err != nil {
			return "", fmt.Errorf("%w: tree %s: %v", ErrRootNotResolved, current, err)
		}
		if tree.IsRootTree || tree.ParentTreeID == "" {
			return tree.TreeID, nil
		}
		current = tree.ParentTreeID
	}
	return "", fmt.Errorf("%w: parent chain from %s exceeds depth %d",
		ErrRootNotResolved, treeID, datatypes.MaxTreeDepth)
}

// Get returns the cached graph for a tree id, canonicalising to the
// root first. Expired entries count as misses and are dropped.
func (c *TreeCache) Get(ctx context.Context, treeID, teamID string) (*Entry, error) {
	rootID, err := c.ResolveRootTreeID(ctx, treeID, teamID)
	if err != nil {
		return nil, err
	}
	return c.getByRoot(rootID, teamID)
}

// GetByRoot returns the cached graph for an already-canonical root id.
func (c *TreeCache) GetByRoot(rootTreeID, teamID string) (*Entry, error) {
	return c.getByRoot(rootTreeID, teamID)
}

func (c *TreeCache) getByRoot(rootTreeID, teamID string) (*Entry, error) {
	key := cacheKey{rootTreeID: rootTreeID, teamID: teamID}

	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrEntryNotFound
	}
	if c.isExpired(entry) {
		c.mu.RUnlock()
		c.removeExpired(key)
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrEntryNotFound
	}
	atomic.StoreInt64(&entry.LastAccessMilli, time.Now().UnixMilli())
	c.mu.RUnlock()

	c.touchLRU(entry)
	atomic.AddInt64(&c.hits, 1)
	return entry, nil
}

// Populate builds and caches the graph for a root tree. Populating an
// already-cached hierarchy is a no-op returning the existing entry
// unless force is set. Concurrent populates of the same key collapse
// into one build.
//
// The second return value reports whether this call built the graph.
func (c *TreeCache) Populate(ctx context.Context, rootTreeID, teamID string, force bool, build BuildFunc) (*Entry, bool, error) {
	key := cacheKey{rootTreeID: rootTreeID, teamID: teamID}

	if !force {
		if entry, err := c.getByRoot(rootTreeID, teamID); err == nil {
			return entry, false, nil
		}
	}

	flightKey := rootTreeID + "|" + teamID
	built := false
	result, err, shared := c.flight.Do(flightKey, func() (any, error) {
		// Re-check under singleflight: a concurrent populate may have
		// landed between our miss and this call.
		if !force {
			if entry, err := c.getByRoot(rootTreeID, teamID); err == nil {
				return entry, nil
			}
		}
		g, err := build(ctx, rootTreeID, teamID)
		if err != nil {
			atomic.AddInt64(&c.errorCount, 1)
			return nil, err
		}
		built = true
		return c.insert(key, g), nil
	})
	if err != nil {
		return nil, false, err
	}
	entry := result.(*Entry)

	slog.Debug("cache populate",
		"root_tree_id", rootTreeID,
		"team_id", teamID,
		"built", built && !shared,
		"nodes", entry.Graph.NodeCount(),
		"edges", entry.Graph.EdgeCount())
	return entry, built, nil
}

func (c *TreeCache) insert(key cacheKey, g *graph.UnifiedGraph) *Entry {
	now := time.Now().UnixMilli()
	entry := &Entry{
		RootTreeID:      key.rootTreeID,
		TeamID:          key.teamID,
		Graph:           g,
		BuiltAtMilli:    now,
		LastAccessMilli: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeEntryLocked(key, old)
	}
	c.evictIfNeededLocked()
	entry.lruElement = c.lru.PushFront(key)
	c.entries[key] = entry
	atomic.AddInt64(&c.buildCount, 1)
	return entry
}

// Invalidate drops the entry for a root tree. Missing entries are not
// an error.
func (c *TreeCache) Invalidate(rootTreeID, teamID string) {
	key := cacheKey{rootTreeID: rootTreeID, teamID: teamID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.removeEntryLocked(key, entry)
	}
}

// Clear drops every entry.
func (c *TreeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		c.removeEntryLocked(key, entry)
	}
}

// RefreshTTL resets the entry's build time, extending its life by a
// full TTL. Returns false when no live entry exists.
func (c *TreeCache) RefreshTTL(rootTreeID, teamID string) bool {
	key := cacheKey{rootTreeID: rootTreeID, teamID: teamID}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	now := time.Now().UnixMilli()
	entry.BuiltAtMilli = now
	atomic.StoreInt64(&entry.LastAccessMilli, now)
	return true
}

// CheckStatus reports the cache state for a root tree without counting
// as a hit or a miss.
func (c *TreeCache) CheckStatus(rootTreeID, teamID string) Status {
	key := cacheKey{rootTreeID: rootTreeID, teamID: teamID}

	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{RootTreeID: rootTreeID, TeamID: teamID}
	entry, ok := c.entries[key]
	if !ok {
		return status
	}

	builtAt := time.UnixMilli(entry.BuiltAtMilli)
	status.Cached = !c.isExpired(entry)
	status.StaleInMemory = !status.Cached
	status.NodeCount = entry.Graph.NodeCount()
	status.EdgeCount = entry.Graph.EdgeCount()
	status.BuiltAt = builtAt
	status.LastAccess = time.UnixMilli(atomic.LoadInt64(&entry.LastAccessMilli))
	if c.options.MaxAge > 0 {
		status.ExpiresAt = builtAt.Add(c.options.MaxAge)
		if remaining := time.Until(status.ExpiresAt); remaining > 0 {
			status.TTLSeconds = int64(remaining.Seconds())
		}
	}
	return status
}

// PatchNode merges node attributes into a cached graph, or removes the
// node's representation when remove is set. The hierarchy must already
// be cached.
func (c *TreeCache) PatchNode(rootTreeID, teamID string, node *graph.NodeAttrs, remove bool) error {
	entry, err := c.getByRoot(rootTreeID, teamID)
	if err != nil {
		return err
	}
	entry.WithGraph(func(g *graph.UnifiedGraph) {
		if remove {
			for _, e := range g.OutEdges(node.NodeID) {
				g.RemoveEdge(e.SourceNodeID, e.TargetNodeID)
			}
			for _, e := range g.Edges() {
				if e.TargetNodeID == node.NodeID {
					g.RemoveEdge(e.SourceNodeID, e.TargetNodeID)
				}
			}
			return
		}
		g.MergeNode(node)
	})
	return nil
}

// PatchEdge upserts or removes an edge in a cached graph.
func (c *TreeCache) PatchEdge(rootTreeID, teamID string, edge *graph.EdgeAttrs, remove bool) error {
	entry, err := c.getByRoot(rootTreeID, teamID)
	if err != nil {
		return err
	}
	entry.WithGraph(func(g *graph.UnifiedGraph) {
		if remove {
			g.RemoveEdge(edge.SourceNodeID, edge.TargetNodeID)
			return
		}
		g.AddEdge(edge)
	})
	return nil
}

// Stats returns cumulative counters.
func (c *TreeCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		EntryCount: len(c.entries),
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Evictions:  atomic.LoadInt64(&c.evictions),
		BuildCount: atomic.LoadInt64(&c.buildCount),
		ErrorCount: atomic.LoadInt64(&c.errorCount),
	}
}

func (c *TreeCache) isExpired(entry *Entry) bool {
	if c.options.MaxAge == 0 {
		return false
	}
	return time.Since(time.UnixMilli(entry.BuiltAtMilli)) > c.options.MaxAge
}

func (c *TreeCache) touchLRU(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.lruElement != nil {
		c.lru.MoveToFront(entry.lruElement)
	}
}

func (c *TreeCache) removeExpired(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok && c.isExpired(entry) {
		c.removeEntryLocked(key, entry)
	}
}

func (c *TreeCache) removeEntryLocked(key cacheKey, entry *Entry) {
	if entry.lruElement != nil {
		c.lru.Remove(entry.lruElement)
		entry.lruElement = nil
	}
	delete(c.entries, key)
}

func (c *TreeCache) evictIfNeededLocked() {
	for len(c.entries) >= c.options.MaxEntries {
		back := c.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(cacheKey)
		if entry, ok := c.entries[key]; ok {
			c.removeEntryLocked(key, entry)
			atomic.AddInt64(&c.evictions, 1)
		} else {
			c.lru.Remove(back)
		}
	}
}
